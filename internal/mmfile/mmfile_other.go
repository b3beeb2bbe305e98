//go:build !unix

// Package mmfile maps host binaries for inspection without going through the
// read-write image loader.
package mmfile

import "os"

// Map reads the whole file; there is no mapping on this platform.
func Map(path string) ([]byte, func() error, error) {
	return read(path)
}

// MapPrivate reads the whole file. The copy is private already.
func MapPrivate(path string) ([]byte, func() error, error) {
	return read(path)
}

func read(path string) ([]byte, func() error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, func() error { return nil }, err
	}
	return data, func() error { return nil }, nil
}
