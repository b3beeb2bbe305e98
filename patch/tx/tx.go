// Package tx groups ledger writes into batches that are applied together.
//
// Batch Protocol:
//  1. Begin() - start collecting handles
//  2. Write/Fill/WriteValue - patch through the ledger, tracked by the batch
//  3. Commit() - flush dirty pages of a file-backed image, forget the handles
//     or Rollback() - undo every write of the batch, newest first
//
// A feature that needs several sites patched uses a batch so that a failure
// half way leaves the image as it found it.
package tx

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshuapare/hookkit/image/dirty"
	"github.com/joshuapare/hookkit/patch"
)

// ErrNoTx indicates a write outside Begin/Commit.
var ErrNoTx = errors.New("tx: no active batch")

// Manager tracks the handles written during a batch and coordinates the
// flush on commit.
//
// The manager is NOT thread-safe. Only one goroutine should use it at a time.
type Manager struct {
	l       *patch.Ledger
	dt      dirty.FlushableTracker // nil for images with no backing file
	mode    dirty.FlushMode
	handles []patch.Handle
	seq     uint32 // committed batches
	inTx    bool
}

// NewManager creates a batch manager over l. dt may be nil; it should be
// the same tracker the ledger reports to.
func NewManager(l *patch.Ledger, dt dirty.FlushableTracker, mode dirty.FlushMode) *Manager {
	return &Manager{
		l:    l,
		dt:   dt,
		mode: mode,
	}
}

// Begin starts a new batch. If a batch is already active it's a no-op.
func (m *Manager) Begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.inTx {
		return nil
	}
	m.handles = m.handles[:0]
	m.inTx = true
	return nil
}

// Write patches b at addr as part of the batch.
func (m *Manager) Write(addr uint64, b []byte, owner string) (patch.Handle, error) {
	if !m.inTx {
		return patch.Handle{}, ErrNoTx
	}
	return m.track(m.l.Write(addr, b, owner))
}

// WriteValue writes a little-endian value as part of the batch.
func (m *Manager) WriteValue(addr uint64, v any, owner string) (patch.Handle, error) {
	if !m.inTx {
		return patch.Handle{}, ErrNoTx
	}
	return m.track(m.l.WriteValue(addr, v, owner))
}

// Fill writes n copies of value as part of the batch.
func (m *Manager) Fill(addr uint64, n int, value byte, owner string) (patch.Handle, error) {
	if !m.inTx {
		return patch.Handle{}, ErrNoTx
	}
	return m.track(m.l.Fill(addr, n, value, owner))
}

func (m *Manager) track(h patch.Handle, err error) (patch.Handle, error) {
	if err != nil {
		return h, err
	}
	m.handles = append(m.handles, h)
	return h, nil
}

// Commit ends the batch. Dirty pages are flushed first; if the flush fails
// the batch stays open so the caller can retry or roll back.
//
// If Commit is called without an active batch, it's a no-op.
func (m *Manager) Commit(ctx context.Context) error {
	if !m.inTx {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if m.dt != nil {
		if err := m.dt.Flush(ctx, m.mode); err != nil {
			return fmt.Errorf("flush patched pages: %w", err)
		}
	}

	m.handles = m.handles[:0]
	m.seq++
	m.inTx = false
	return nil
}

// Rollback undoes every write of the batch, newest first, and ends it.
// Restore failures are collected; the batch ends regardless, and the failed
// records stay active in the ledger for a later UndoAll.
func (m *Manager) Rollback() error {
	if !m.inTx {
		return nil
	}
	var errs []error
	for i := len(m.handles) - 1; i >= 0; i-- {
		if err := m.l.Undo(m.handles[i]); err != nil {
			errs = append(errs, err)
		}
	}
	m.handles = m.handles[:0]
	m.inTx = false
	return errors.Join(errs...)
}

// InTransaction returns whether a batch is currently active.
func (m *Manager) InTransaction() bool {
	return m.inTx
}

// CurrentSequence returns the number of committed batches.
func (m *Manager) CurrentSequence() uint32 {
	return m.seq
}

// Handles returns the handles written so far in the active batch.
func (m *Manager) Handles() []patch.Handle {
	out := make([]patch.Handle, len(m.handles))
	copy(out, m.handles)
	return out
}
