// Package dirty tracks which byte ranges of a file-backed image have been
// patched and flushes them to disk.
//
// The tracker keeps a list of raw ranges, coalesces them into page-aligned
// ranges at flush time and flushes each with msync on linux. Images that are
// not mapped from a file have nothing to flush; their ranges are simply
// dropped.
package dirty

import (
	"context"
	"sort"

	"github.com/joshuapare/hookkit/image"
)

const (
	// defaultRangeCapacity is the pre-allocated capacity for dirty ranges.
	defaultRangeCapacity = 64

	// standardPageSize is the typical OS page size (4KB).
	standardPageSize = 4096
)

// FlushMode controls durability of a flush.
type FlushMode int

const (
	// FlushDataOnly writes dirty pages back with msync and stops there.
	FlushDataOnly FlushMode = iota

	// FlushFull also syncs the file descriptor once the pages are written.
	FlushFull
)

// Range is a dirty byte range, as offsets from the start of the image.
type Range struct {
	Off int64
	Len int64
}

// Tracker accumulates dirty ranges and flushes them.
//
// NOT thread-safe. Only one goroutine should use it at a time.
type Tracker struct {
	img      *image.Image
	ranges   []Range
	pageSize int64
}

// NewTracker creates a dirty tracker for img.
func NewTracker(img *image.Image) *Tracker {
	return &Tracker{
		img:      img,
		ranges:   make([]Range, 0, defaultRangeCapacity),
		pageSize: standardPageSize,
	}
}

// Add records a dirty range. It only appends; alignment and merging happen
// at flush time.
func (t *Tracker) Add(off, length int) {
	if length <= 0 {
		return
	}
	t.ranges = append(t.ranges, Range{
		Off: int64(off),
		Len: int64(length),
	})
}

// Pending reports whether there are ranges waiting to be flushed.
func (t *Tracker) Pending() bool { return len(t.ranges) > 0 }

// Flush writes every dirty range back to the image's file and clears the
// list. With FlushFull the file descriptor is synced as well.
//
// The context is checked before each step. If cancelled part way, some
// ranges may have been flushed and the list is kept so a later Flush
// retries all of them.
func (t *Tracker) Flush(ctx context.Context, mode FlushMode) error {
	if len(t.ranges) == 0 {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	data := t.img.Bytes()
	if len(data) == 0 || t.img.FD() < 0 {
		// nothing backs this image
		t.ranges = t.ranges[:0]
		return nil
	}

	if err := t.flushRanges(ctx, data); err != nil {
		return err
	}

	if mode == FlushFull {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fdatasync(t.img.FD()); err != nil {
			return err
		}
	}

	t.ranges = t.ranges[:0]
	return nil
}

// Reset clears all tracked ranges without flushing them.
func (t *Tracker) Reset() {
	t.ranges = t.ranges[:0]
}

// DebugRanges returns a copy of the raw, uncoalesced ranges.
func (t *Tracker) DebugRanges() []Range {
	result := make([]Range, len(t.ranges))
	copy(result, t.ranges)
	return result
}

// DebugCoalescedRanges returns the page-aligned ranges a flush would write.
func (t *Tracker) DebugCoalescedRanges() []Range {
	return t.coalesce()
}

// coalesce page-aligns all ranges, sorts them, and merges overlapping or
// adjacent ones. Ranges are clamped to the image.
func (t *Tracker) coalesce() []Range {
	if len(t.ranges) == 0 {
		return nil
	}
	limit := int64(t.img.Len())

	aligned := make([]Range, 0, len(t.ranges))
	for _, r := range t.ranges {
		start := (r.Off / t.pageSize) * t.pageSize

		end := r.Off + r.Len
		if end%t.pageSize != 0 {
			end = ((end / t.pageSize) + 1) * t.pageSize
		}
		if end > limit {
			end = limit
		}
		if start >= end {
			continue
		}

		aligned = append(aligned, Range{Off: start, Len: end - start})
	}
	if len(aligned) == 0 {
		return nil
	}

	sort.Slice(aligned, func(i, j int) bool {
		return aligned[i].Off < aligned[j].Off
	})

	merged := make([]Range, 0, len(aligned))
	current := aligned[0]
	for _, next := range aligned[1:] {
		if next.Off <= current.Off+current.Len {
			end := current.Off + current.Len
			if nextEnd := next.Off + next.Len; nextEnd > end {
				end = nextEnd
			}
			current.Len = end - current.Off
			continue
		}
		merged = append(merged, current)
		current = next
	}
	merged = append(merged, current)

	return merged
}
