//go:build linux || darwin

package image

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Open maps the executable at path read-write and shared, so patches land in
// the file once flushed. base is the address the host loads the file at.
func Open(path string, base uint64) (*Image, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	sz := st.Size()
	if sz == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("empty image file: %s", path)
	}
	if sz > int64(^uint(0)>>1) {
		_ = f.Close()
		return nil, fmt.Errorf("image: file too large to map (%d bytes)", sz)
	}

	data, err := unix.Mmap(
		int(f.Fd()),
		0,
		int(sz),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED,
	)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}

	img := &Image{
		name:  path,
		base:  base,
		data:  data,
		f:     f,
		unmap: unix.Munmap,
	}
	img.sync = func() error {
		if img.data == nil {
			return ErrClosed
		}
		return unix.Msync(img.data, unix.MS_SYNC)
	}
	return img, nil
}
