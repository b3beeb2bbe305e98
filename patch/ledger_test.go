package patch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/hookkit/image"
)

const testBase = 0x400000

// mockDirtyTracker records every range the ledger reports.
type mockDirtyTracker struct {
	adds []addCall
}

type addCall struct {
	off int
	len int
}

func (m *mockDirtyTracker) Add(off, length int) {
	m.adds = append(m.adds, addCall{off, length})
}

func setupTestLedger(t *testing.T) (*Ledger, []byte, *mockDirtyTracker) {
	t.Helper()
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i)
	}
	dt := &mockDirtyTracker{}
	return NewLedger(image.New(testBase, data), dt), data, dt
}

// requireOverlapPanic runs fn and requires it to panic with ErrOverlap.
func requireOverlapPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected overlap panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		require.True(t, errors.Is(err, ErrOverlap), "got %v", err)
	}()
	fn()
}

func TestLedger_WriteAndUndo(t *testing.T) {
	l, data, dt := setupTestLedger(t)

	h, err := l.Write(testBase+0x10, []byte{0xAA, 0xBB}, "widescreen")
	require.NoError(t, err)
	require.True(t, h.Valid())
	require.Equal(t, []byte{0xAA, 0xBB}, data[0x10:0x12])

	rec, ok := l.Lookup(h)
	require.True(t, ok)
	require.Equal(t, []byte{0x10, 0x11}, rec.Original)
	require.Equal(t, []byte{0xAA, 0xBB}, rec.Applied)
	require.Equal(t, "widescreen", rec.Owner)
	require.True(t, rec.Active)

	require.NoError(t, l.Undo(h))
	require.Equal(t, []byte{0x10, 0x11}, data[0x10:0x12])
	require.False(t, l.Active(h))

	require.Equal(t, []addCall{{0x10, 2}, {0x10, 2}}, dt.adds)
}

func TestLedger_UndoIdempotent(t *testing.T) {
	l, data, _ := setupTestLedger(t)

	h, err := l.Write(testBase, []byte{0xFF}, "a")
	require.NoError(t, err)
	require.NoError(t, l.Undo(h))

	// something else patches the same byte afterwards
	h2, err := l.Write(testBase, []byte{0xEE}, "b")
	require.NoError(t, err)

	// undoing the stale handle must not clobber the new patch
	require.NoError(t, l.Undo(h))
	require.Equal(t, byte(0xEE), data[0])
	require.True(t, l.Active(h2))
}

func TestLedger_OverlapPanicsWithoutWriting(t *testing.T) {
	l, data, _ := setupTestLedger(t)

	_, err := l.Write(testBase+8, []byte{1, 2, 3, 4}, "first")
	require.NoError(t, err)
	before := append([]byte(nil), data...)

	requireOverlapPanic(t, func() {
		l.Write(testBase+6, []byte{9, 9, 9}, "second")
	})
	requireOverlapPanic(t, func() {
		l.Write(testBase+11, []byte{9, 9}, "third")
	})

	require.Equal(t, before, data)
	require.Len(t, l.ActiveHandles(), 1)
}

func TestLedger_AdjacentWritesAllowed(t *testing.T) {
	l, _, _ := setupTestLedger(t)

	_, err := l.Write(testBase+8, []byte{1, 2}, "a")
	require.NoError(t, err)
	_, err = l.Write(testBase+10, []byte{3, 4}, "b")
	require.NoError(t, err)
	_, err = l.Write(testBase+6, []byte{5, 6}, "c")
	require.NoError(t, err)
}

func TestLedger_UndoAllReverseOrder(t *testing.T) {
	l, data, dt := setupTestLedger(t)

	h1, err := l.Write(testBase, []byte{0xA1}, "a")
	require.NoError(t, err)
	_, err = l.Write(testBase+1, []byte{0xA2, 0xA3}, "b")
	require.NoError(t, err)
	_, err = l.Write(testBase+4, []byte{0xA4}, "c")
	require.NoError(t, err)
	require.NoError(t, l.Undo(h1))
	dt.adds = nil

	require.NoError(t, l.UndoAll())
	require.Empty(t, l.ActiveHandles())
	for i := range 8 {
		require.Equal(t, byte(i), data[i])
	}

	// newest first; the already-undone record is skipped
	require.Equal(t, []addCall{{4, 1}, {1, 2}}, dt.adds)

	// nothing left to do
	dt.adds = nil
	require.NoError(t, l.UndoAll())
	require.Empty(t, dt.adds)
}

func TestLedger_Replace(t *testing.T) {
	l, data, _ := setupTestLedger(t)

	h, err := l.Write(testBase+0x20, []byte{1, 1, 1, 1}, "widescreen")
	require.NoError(t, err)

	h2, err := l.Replace(h, []byte{2, 2, 2, 2})
	require.NoError(t, err)
	require.NotEqual(t, h, h2)
	require.False(t, l.Active(h))
	require.Equal(t, []byte{2, 2, 2, 2}, data[0x20:0x24])

	rec, _ := l.Lookup(h2)
	require.Equal(t, "widescreen", rec.Owner)
	require.Equal(t, []byte{0x20, 0x21, 0x22, 0x23}, rec.Original)

	require.NoError(t, l.Undo(h2))
	require.Equal(t, []byte{0x20, 0x21, 0x22, 0x23}, data[0x20:0x24])
}

func TestLedger_ReplaceFailureKeepsOriginal(t *testing.T) {
	data := make([]byte, 16)
	l := NewLedger(image.New(testBase, data), nil)

	h, err := l.Write(testBase+14, []byte{0xAA, 0xBB}, "widescreen")
	require.NoError(t, err)

	h2, err := l.Replace(h, make([]byte, 8))
	require.ErrorIs(t, err, image.ErrOutOfRange)
	require.False(t, h2.Valid())
	require.True(t, l.Active(h))
	require.Equal(t, []byte{0xAA, 0xBB}, data[14:16])

	_, err = l.Replace(h, nil)
	require.ErrorIs(t, err, ErrEmpty)
	require.True(t, l.Active(h))
}

func TestLedger_ReplaceOverlapKeepsOriginal(t *testing.T) {
	l, data, _ := setupTestLedger(t)

	h, err := l.Write(testBase+0x10, []byte{1, 1}, "a")
	require.NoError(t, err)
	_, err = l.Write(testBase+0x12, []byte{2, 2}, "b")
	require.NoError(t, err)

	requireOverlapPanic(t, func() { _, _ = l.Replace(h, []byte{3, 3, 3}) })
	require.True(t, l.Active(h))
	require.Equal(t, []byte{1, 1, 2, 2}, data[0x10:0x14])

	// Growing into its own range is fine.
	h2, err := l.Replace(h, []byte{4, 4})
	require.NoError(t, err)
	require.Equal(t, []byte{4, 4}, data[0x10:0x12])
	require.True(t, l.Active(h2))
}

// flakyProtector fails exactly its nth call.
type flakyProtector struct {
	calls  int
	failOn int
}

func (p *flakyProtector) Unprotect([]byte, uint64) (func() error, error) {
	p.calls++
	if p.calls == p.failOn {
		return nil, errors.New("mprotect: permission denied")
	}
	return func() error { return nil }, nil
}

func TestLedger_ReplaceWriteFailureReapplies(t *testing.T) {
	data := make([]byte, 16)
	img := image.New(testBase, data)
	l := NewLedger(img, nil)

	h, err := l.Write(testBase+4, []byte{0xAA, 0xBB}, "widescreen")
	require.NoError(t, err)

	// Call 1 restores the original, call 2 is the new write.
	img.SetProtector(&flakyProtector{failOn: 2})
	h2, err := l.Replace(h, []byte{0xCC, 0xDD})
	require.Error(t, err)
	require.False(t, h2.Valid())
	require.True(t, l.Active(h))
	require.Equal(t, []byte{0xAA, 0xBB}, data[4:6])
	owner, ok := l.OwnerAt(testBase + 5)
	require.True(t, ok)
	require.Equal(t, h, owner)

	require.NoError(t, l.UndoAll())
	require.Equal(t, []byte{0, 0}, data[4:6])
}

func TestLedger_WriteValue(t *testing.T) {
	l, data, _ := setupTestLedger(t)

	_, err := l.WriteValue(testBase+4, uint32(0xDEADBEEF), "a")
	require.NoError(t, err)
	require.Equal(t, []byte{0xEF, 0xBE, 0xAD, 0xDE}, data[4:8])

	_, err = l.WriteValue(testBase+12, float32(1.0), "b")
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x00, 0x80, 0x3F}, data[12:16])

	_, err = l.WriteValue(testBase+20, "not fixed", "c")
	require.ErrorIs(t, err, ErrValue)
}

func TestLedger_Fill(t *testing.T) {
	l, data, _ := setupTestLedger(t)

	h, err := l.Fill(testBase+0x30, 5, 0x90, "nop")
	require.NoError(t, err)
	require.Equal(t, []byte{0x90, 0x90, 0x90, 0x90, 0x90}, data[0x30:0x35])
	require.Equal(t, byte(0x35), data[0x35])

	rec, _ := l.Lookup(h)
	require.Equal(t, 5, rec.Len())
	require.Equal(t, uint64(testBase+0x35), rec.End())

	_, err = l.Fill(testBase, 0, 0x90, "nop")
	require.ErrorIs(t, err, ErrEmpty)
}

func TestLedger_UndoOwner(t *testing.T) {
	l, data, _ := setupTestLedger(t)

	_, err := l.Write(testBase, []byte{0xFF}, "a")
	require.NoError(t, err)
	hb, err := l.Write(testBase+1, []byte{0xFF}, "b")
	require.NoError(t, err)
	_, err = l.Write(testBase+2, []byte{0xFF}, "a")
	require.NoError(t, err)

	require.NoError(t, l.UndoOwner("a"))
	require.Equal(t, []byte{0x00, 0xFF, 0x02}, data[0:3])
	require.Equal(t, []Handle{hb}, l.ActiveHandles())
}

func TestLedger_OutOfRange(t *testing.T) {
	l, data, dt := setupTestLedger(t)
	before := append([]byte(nil), data...)

	_, err := l.Write(testBase+62, []byte{1, 2, 3}, "a")
	require.ErrorIs(t, err, image.ErrOutOfRange)
	_, err = l.Write(testBase-1, []byte{1}, "a")
	require.ErrorIs(t, err, image.ErrOutOfRange)

	require.Equal(t, before, data)
	require.Empty(t, l.ActiveHandles())
	require.Empty(t, dt.adds)
}

func TestLedger_OwnerAt(t *testing.T) {
	l, _, _ := setupTestLedger(t)

	h, err := l.Write(testBase+2, []byte{1, 2, 3}, "a")
	require.NoError(t, err)

	got, ok := l.OwnerAt(testBase + 4)
	require.True(t, ok)
	require.Equal(t, h, got)

	_, ok = l.OwnerAt(testBase + 5)
	require.False(t, ok)

	require.NoError(t, l.Undo(h))
	_, ok = l.OwnerAt(testBase + 2)
	require.False(t, ok)
}

func TestLedger_UnknownHandlePanics(t *testing.T) {
	l, _, _ := setupTestLedger(t)

	require.PanicsWithError(t, "patch: unknown handle: patch#0", func() {
		l.Undo(Handle{})
	})
	_, ok := l.Lookup(Handle{id: 7})
	require.False(t, ok)
}

func TestLedger_EmptyWrite(t *testing.T) {
	l, _, _ := setupTestLedger(t)
	_, err := l.Write(testBase, nil, "a")
	require.ErrorIs(t, err, ErrEmpty)
}

// protector that fails on demand, to exercise failed restores.
type failingProtector struct {
	fail bool
}

func (p *failingProtector) Unprotect([]byte, uint64) (func() error, error) {
	if p.fail {
		return nil, errors.New("mprotect: permission denied")
	}
	return func() error { return nil }, nil
}

func TestLedger_FailedUndoStaysActive(t *testing.T) {
	img := image.New(testBase, make([]byte, 16))
	prot := &failingProtector{}
	img.SetProtector(prot)
	l := NewLedger(img, nil)

	h, err := l.Write(testBase, []byte{0xCC}, "a")
	require.NoError(t, err)

	prot.fail = true
	require.Error(t, l.Undo(h))
	require.True(t, l.Active(h))
	require.Error(t, l.UndoAll())

	prot.fail = false
	require.NoError(t, l.UndoAll())
	require.False(t, l.Active(h))
}
