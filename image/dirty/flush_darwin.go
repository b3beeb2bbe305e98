//go:build darwin

package dirty

import (
	"context"

	"golang.org/x/sys/unix"
)

// flushRanges syncs the whole mapping. macOS wants the original mmap
// address, so sub-slices are not usable; the kernel only writes dirty pages.
func (t *Tracker) flushRanges(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return unix.Msync(data, unix.MS_SYNC)
}

func fdatasync(fd int) error {
	return unix.Fsync(fd)
}
