package patch

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/joshuapare/hookkit/image"
	"github.com/joshuapare/hookkit/image/dirty"
)

var (
	// ErrOverlap indicates a write over bytes that an active patch already
	// owns. Ledger methods panic with an error wrapping it.
	ErrOverlap = errors.New("patch: range overlaps an active patch")

	// ErrBadHandle indicates a handle this ledger never issued.
	ErrBadHandle = errors.New("patch: unknown handle")

	// ErrEmpty indicates a write of zero bytes.
	ErrEmpty = errors.New("patch: empty write")

	// ErrValue indicates a value with no fixed-size encoding.
	ErrValue = errors.New("patch: value has no fixed size")
)

// Handle identifies one patch record. The zero Handle is never issued.
type Handle struct {
	id uint32
}

// Valid reports whether h was issued by a ledger.
func (h Handle) Valid() bool { return h.id != 0 }

func (h Handle) String() string { return fmt.Sprintf("patch#%d", h.id) }

// Record describes one write through the ledger.
type Record struct {
	Addr     uint64
	Original []byte
	Applied  []byte
	Owner    string
	Active   bool
}

// Len returns the number of bytes the record covers.
func (r Record) Len() int { return len(r.Applied) }

// End returns the first address past the record.
func (r Record) End() uint64 { return r.Addr + uint64(len(r.Applied)) }

// Ledger writes bytes into an image and remembers what was there before.
// Every patched byte belongs to exactly one active record; writing over it
// again without undoing first is a programming error and panics.
//
// Records live in an arena indexed by handle, in order of application.
//
// NOT thread-safe.
type Ledger struct {
	img     *image.Image
	dt      dirty.DirtyTracker
	records []Record
	owners  map[uint64]uint32 // patched address -> handle id
}

// NewLedger creates a ledger over img. dt may be nil; when set, every write
// and restore is reported to it.
func NewLedger(img *image.Image, dt dirty.DirtyTracker) *Ledger {
	return &Ledger{
		img:    img,
		dt:     dt,
		owners: make(map[uint64]uint32),
	}
}

// Image returns the image the ledger writes to.
func (l *Ledger) Image() *image.Image { return l.img }

// Write saves the bytes at [addr, addr+len(b)), replaces them with b and
// returns a handle for undoing it. It panics if the range overlaps an
// active patch; nothing is written in that case.
func (l *Ledger) Write(addr uint64, b []byte, owner string) (Handle, error) {
	if len(b) == 0 {
		return Handle{}, ErrEmpty
	}
	l.checkOverlap(addr, len(b), 0)

	current, err := l.img.View(addr, len(b))
	if err != nil {
		return Handle{}, fmt.Errorf("patch: %s at %#x: %w", owner, addr, err)
	}
	original := slices.Clone(current)
	applied := slices.Clone(b)

	if _, err := l.img.WriteAt(applied, addr); err != nil {
		return Handle{}, fmt.Errorf("patch: %s at %#x: %w", owner, addr, err)
	}

	l.records = append(l.records, Record{
		Addr:     addr,
		Original: original,
		Applied:  applied,
		Owner:    owner,
		Active:   true,
	})
	id := uint32(len(l.records))
	for i := range applied {
		l.owners[addr+uint64(i)] = id
	}
	l.markDirty(addr, len(applied))

	return Handle{id: id}, nil
}

// WriteValue encodes v little-endian (as the host's x86 code expects) and
// writes it at addr. v must have a fixed size: a number, bool, or array or
// struct of them.
func (l *Ledger) WriteValue(addr uint64, v any, owner string) (Handle, error) {
	var b bytes.Buffer
	if err := binary.Write(&b, binary.LittleEndian, v); err != nil {
		return Handle{}, fmt.Errorf("%w: %T", ErrValue, v)
	}
	return l.Write(addr, b.Bytes(), owner)
}

// Fill writes n copies of value at addr, e.g. 0x90 to turn an instruction
// into NOPs.
func (l *Ledger) Fill(addr uint64, n int, value byte, owner string) (Handle, error) {
	if n <= 0 {
		return Handle{}, ErrEmpty
	}
	return l.Write(addr, bytes.Repeat([]byte{value}, n), owner)
}

// Undo restores the original bytes of h. Undoing an inactive record is a
// no-op. If the restore fails the record stays active.
func (l *Ledger) Undo(h Handle) error {
	r := l.record(h)
	if !r.Active {
		return nil
	}
	if _, err := l.img.WriteAt(r.Original, r.Addr); err != nil {
		return fmt.Errorf("patch: undo %s (%s at %#x): %w", h, r.Owner, r.Addr, err)
	}
	r.Active = false
	for i := range r.Original {
		delete(l.owners, r.Addr+uint64(i))
	}
	l.markDirty(r.Addr, len(r.Original))
	return nil
}

// Replace undoes h and writes b at the same address for the same owner,
// returning the new handle. It is how a feature re-patches a site whose
// value changes over time.
//
// b is checked against the image and other active patches before h is
// touched. If the new write still fails, h is applied again and stays
// valid.
func (l *Ledger) Replace(h Handle, b []byte) (Handle, error) {
	r := l.record(h)
	addr, owner, wasActive := r.Addr, r.Owner, r.Active
	if len(b) == 0 {
		return Handle{}, ErrEmpty
	}
	if _, err := l.img.View(addr, len(b)); err != nil {
		return Handle{}, fmt.Errorf("patch: replace %s (%s at %#x): %w", h, owner, addr, err)
	}
	l.checkOverlap(addr, len(b), h.id)

	if err := l.Undo(h); err != nil {
		return Handle{}, err
	}
	nh, err := l.Write(addr, b, owner)
	if err != nil && wasActive {
		if rerr := l.reapply(h); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}
	return nh, err
}

// reapply writes the applied bytes of an undone record back and marks it
// active again.
func (l *Ledger) reapply(h Handle) error {
	r := l.record(h)
	if _, err := l.img.WriteAt(r.Applied, r.Addr); err != nil {
		return fmt.Errorf("patch: reapply %s (%s at %#x): %w", h, r.Owner, r.Addr, err)
	}
	r.Active = true
	for i := range r.Applied {
		l.owners[r.Addr+uint64(i)] = h.id
	}
	l.markDirty(r.Addr, len(r.Applied))
	return nil
}

// UndoOwner undoes every active record of owner, newest first.
func (l *Ledger) UndoOwner(owner string) error {
	var errs []error
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].Active && l.records[i].Owner == owner {
			if err := l.Undo(Handle{id: uint32(i + 1)}); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// UndoAll undoes every active record in reverse order of application, so a
// patch written on top of state produced by an earlier one unwinds first.
// It keeps going past failures and reports all of them.
func (l *Ledger) UndoAll() error {
	var errs []error
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].Active {
			if err := l.Undo(Handle{id: uint32(i + 1)}); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Lookup returns a copy of the record behind h.
func (l *Ledger) Lookup(h Handle) (Record, bool) {
	if h.id == 0 || int(h.id) > len(l.records) {
		return Record{}, false
	}
	r := l.records[h.id-1]
	r.Original = slices.Clone(r.Original)
	r.Applied = slices.Clone(r.Applied)
	return r, true
}

// Active reports whether h is currently applied.
func (l *Ledger) Active(h Handle) bool {
	r, ok := l.Lookup(h)
	return ok && r.Active
}

// OwnerAt returns the active patch covering addr.
func (l *Ledger) OwnerAt(addr uint64) (Handle, bool) {
	id, ok := l.owners[addr]
	return Handle{id: id}, ok
}

// ActiveHandles returns the active records in order of application.
func (l *Ledger) ActiveHandles() []Handle {
	var out []Handle
	for i, r := range l.records {
		if r.Active {
			out = append(out, Handle{id: uint32(i + 1)})
		}
	}
	return out
}

func (l *Ledger) record(h Handle) *Record {
	if h.id == 0 || int(h.id) > len(l.records) {
		panic(fmt.Errorf("%w: %s", ErrBadHandle, h))
	}
	return &l.records[h.id-1]
}

// checkOverlap panics if [addr, addr+n) touches an active patch other than
// the one with id except (0 excludes nothing).
func (l *Ledger) checkOverlap(addr uint64, n int, except uint32) {
	for i := range n {
		if id, ok := l.owners[addr+uint64(i)]; ok && id != except {
			other := l.records[id-1]
			panic(fmt.Errorf("%w: %#x+%d overlaps %s (%s at %#x+%d)",
				ErrOverlap, addr, n, Handle{id: id}, other.Owner, other.Addr, other.Len()))
		}
	}
}

func (l *Ledger) markDirty(addr uint64, n int) {
	if l.dt == nil {
		return
	}
	l.dt.Add(int(addr-l.img.Base()), n)
}
