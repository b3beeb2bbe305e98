//go:build unix

package image

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MprotectProtector lifts page protection with mprotect(2) around writes to
// memory owned by the calling process. Restore is the protection put back
// after the write, typically PROT_READ|PROT_EXEC for code.
type MprotectProtector struct {
	Restore int
}

// Unprotect makes the pages spanning region readable, writable and
// executable.
func (p MprotectProtector) Unprotect(region []byte, _ uint64) (func() error, error) {
	if len(region) == 0 {
		return func() error { return nil }, nil
	}
	pages := pageSpan(region)
	if err := unix.Mprotect(pages, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC); err != nil {
		return nil, err
	}
	return func() error {
		return unix.Mprotect(pages, p.Restore)
	}, nil
}

// pageSpan widens region to the page boundaries around it.
func pageSpan(region []byte) []byte {
	pageSize := uintptr(os.Getpagesize())
	start := uintptr(unsafe.Pointer(&region[0]))
	end := start + uintptr(len(region))

	alignedStart := start &^ (pageSize - 1)
	alignedEnd := (end + pageSize - 1) &^ (pageSize - 1)

	ptr := unsafe.Add(unsafe.Pointer(&region[0]), -int(start-alignedStart))
	return unsafe.Slice((*byte)(ptr), int(alignedEnd-alignedStart))
}
