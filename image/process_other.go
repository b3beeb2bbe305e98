//go:build !linux

package image

// OpenProcess is only implemented on linux.
func OpenProcess(pid int, match string) (*Image, error) {
	return nil, ErrUnsupported
}
