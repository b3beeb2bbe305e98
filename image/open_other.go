//go:build !linux && !darwin

package image

import (
	"fmt"
	"io"
	"os"
)

// Open loads the executable at path into memory. Sync writes the bytes
// back to the file.
func Open(path string, base uint64) (*Image, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	sz := st.Size()
	if sz == 0 {
		f.Close()
		return nil, fmt.Errorf("empty image file: %s", path)
	}

	data := make([]byte, sz)
	if _, err := io.ReadFull(f, data); err != nil {
		f.Close()
		return nil, err
	}

	img := &Image{
		name: path,
		base: base,
		data: data,
		f:    f,
	}
	img.sync = func() error {
		if img.data == nil {
			return ErrClosed
		}
		if _, err := img.f.WriteAt(img.data, 0); err != nil {
			return fmt.Errorf("image: write back: %w", err)
		}
		return img.f.Sync()
	}
	return img, nil
}
