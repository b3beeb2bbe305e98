package dirty

import "context"

// DirtyTracker is the minimal interface for recording modified byte ranges.
// The patch ledger only needs to report what it touched.
type DirtyTracker interface {
	// Add marks a byte range as dirty. off is relative to the image base.
	Add(off, length int)
}

// FlushableTracker extends DirtyTracker with flushing, for components that
// decide when patches are persisted (patch batches).
type FlushableTracker interface {
	DirtyTracker

	Flush(ctx context.Context, mode FlushMode) error
}
