//go:build !linux && !darwin

package dirty

import "context"

// flushRanges writes the in-memory copy back; images are not mapped on
// these platforms.
func (t *Tracker) flushRanges(ctx context.Context, _ []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.img.Sync()
}

// fdatasync is covered by Image.Sync, which already syncs the file.
func fdatasync(int) error {
	return nil
}
