package image

import (
	"errors"
	"fmt"
	"os"

	"github.com/joshuapare/hookkit/internal/buf"
	"github.com/joshuapare/hookkit/pattern"
)

var (
	// ErrClosed indicates use of an image after Close.
	ErrClosed = errors.New("image: closed")

	// ErrOutOfRange indicates an address range outside the image.
	ErrOutOfRange = errors.New("image: address range outside image")

	// ErrUnsupported indicates a backend that is not available on this platform.
	ErrUnsupported = errors.New("image: not supported on this platform")
)

// Protector makes a region of the image writable for the duration of a
// write. Unprotect receives the bytes about to be written and the absolute
// address they live at, and returns a function that restores the previous
// protection.
type Protector interface {
	Unprotect(region []byte, addr uint64) (restore func() error, err error)
}

// remoteWriter writes into memory that the image only holds a snapshot of.
type remoteWriter interface {
	WriteAt(b []byte, addr uint64) (int, error)
}

// Image is a host's loaded code image: a contiguous run of bytes that lives
// at a base address. It is backed by a byte slice (tests), a read-write
// file mapping (Open) or a snapshot of another process (OpenProcess).
//
// NOT thread-safe. The host owns the only thread of control.
type Image struct {
	name    string
	base    uint64
	data    []byte
	f       *os.File
	unmap   func([]byte) error
	sync    func() error
	remote  remoteWriter
	protect Protector
}

// New wraps data as an image that starts at base. The slice is used in
// place; writes through the image mutate it.
func New(base uint64, data []byte) *Image {
	return &Image{name: "memory", base: base, data: data}
}

// Name describes where the image came from (a path, "pid:<n>" or "memory").
func (img *Image) Name() string { return img.name }

// Base returns the address of the first byte.
func (img *Image) Base() uint64 { return img.base }

// Len returns the number of bytes in the image.
func (img *Image) Len() int { return len(img.data) }

// End returns the first address past the image.
func (img *Image) End() uint64 { return img.base + uint64(len(img.data)) }

// Bytes returns the backing bytes. Callers must not write to it directly;
// writes go through WriteAt so protection and remote targets are honored.
func (img *Image) Bytes() []byte { return img.data }

// FD returns the file descriptor of a file-backed image, or -1.
func (img *Image) FD() int {
	if img == nil || img.f == nil {
		return -1
	}
	return int(img.f.Fd())
}

// SetProtector installs p for subsequent writes. A nil protector means the
// backing memory is already writable.
func (img *Image) SetProtector(p Protector) { img.protect = p }

// Contains reports whether [addr, addr+n) lies inside the image.
func (img *Image) Contains(addr uint64, n int) bool {
	_, err := buf.Span(img.base, len(img.data), addr, n)
	return err == nil
}

// View returns the n bytes at addr without copying.
func (img *Image) View(addr uint64, n int) ([]byte, error) {
	if img.data == nil {
		return nil, ErrClosed
	}
	off, err := buf.Span(img.base, len(img.data), addr, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutOfRange, err)
	}
	return img.data[off : off+n], nil
}

// ReadAt copies len(p) bytes at addr into p.
func (img *Image) ReadAt(p []byte, addr uint64) (int, error) {
	src, err := img.View(addr, len(p))
	if err != nil {
		return 0, err
	}
	return copy(p, src), nil
}

// WriteAt writes b at addr. The write is all or nothing: the range is
// validated before any byte changes.
func (img *Image) WriteAt(b []byte, addr uint64) (int, error) {
	dst, err := img.View(addr, len(b))
	if err != nil {
		return 0, err
	}
	if len(b) == 0 {
		return 0, nil
	}

	if img.remote != nil {
		n, err := img.remote.WriteAt(b, addr)
		if err != nil {
			return 0, fmt.Errorf("image: remote write at %#x: %w", addr, err)
		}
		if n != len(b) {
			return 0, fmt.Errorf("image: short remote write at %#x: %d != %d", addr, n, len(b))
		}
		return copy(dst, b), nil
	}

	if img.protect != nil {
		restore, err := img.protect.Unprotect(dst, addr)
		if err != nil {
			return 0, fmt.Errorf("image: unprotect %#x+%d: %w", addr, len(b), err)
		}
		n := copy(dst, b)
		if err := restore(); err != nil {
			return n, fmt.Errorf("image: restore protection %#x+%d: %w", addr, len(b), err)
		}
		return n, nil
	}

	return copy(dst, b), nil
}

// Find scans the whole image for p and returns the address of the first match.
func (img *Image) Find(p pattern.Pattern) (uint64, bool) {
	return pattern.FindAt(img.base, img.data, p)
}

// FindIn scans the sub-region [addr, addr+n) for p. A region that falls
// partly outside the image is clamped to it.
func (img *Image) FindIn(addr uint64, n int, p pattern.Pattern) (uint64, bool) {
	if n <= 0 {
		return 0, false
	}
	if addr < img.base {
		if img.base-addr >= uint64(n) {
			return 0, false
		}
		n -= int(img.base - addr)
		addr = img.base
	}
	if addr >= img.End() {
		return 0, false
	}
	off := int(addr - img.base)
	if n > len(img.data)-off {
		n = len(img.data) - off
	}
	return pattern.FindAt(addr, img.data[off:off+n], p)
}

// Sync persists the image to its backing store, if it has one.
func (img *Image) Sync() error {
	if img.sync == nil {
		return nil
	}
	return img.sync()
}

// Close releases the backing mapping or file. Closing twice is a no-op.
func (img *Image) Close() error {
	var err error
	if img.data != nil && img.unmap != nil {
		err = img.unmap(img.data)
	}
	img.data = nil
	if img.f != nil {
		if cerr := img.f.Close(); err == nil {
			err = cerr
		}
		img.f = nil
	}
	return err
}
