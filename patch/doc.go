// Package patch records reversible byte writes into a host image.
//
// # Overview
//
// A Ledger captures the original bytes of every range it overwrites, so the
// write can be undone later:
//
//	l := patch.NewLedger(img, nil)
//	h, err := l.Write(addr, []byte{0x90, 0x90}, "skip_loading")
//	...
//	l.Undo(h)   // original bytes are back
//	l.Undo(h)   // no-op
//
// At detach, UndoAll restores every active record newest first.
//
// # Ownership
//
// A byte is either untouched or owned by exactly one active record. Writing
// over an owned byte is a bug in the calling feature, not a runtime
// condition, and the ledger panics with an error wrapping ErrOverlap before
// changing any memory. Features that need to rewrite a site use Replace.
//
// # Handles
//
// Handles are small values indexing an arena of records. A handle stays
// valid for the lifetime of the ledger; undoing it only marks the record
// inactive.
//
// # Related Packages
//
//   - github.com/joshuapare/hookkit/patch/tx: groups of writes applied all or nothing
//   - github.com/joshuapare/hookkit/image/dirty: persistence of patched pages
package patch
