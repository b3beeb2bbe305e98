//go:build linux

package image

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestMprotectProtector_WritesReadOnlyPage(t *testing.T) {
	size := os.Getpagesize()
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ, unix.MAP_PRIVATE|unix.MAP_ANON)
	require.NoError(t, err)
	defer unix.Munmap(mem)

	img := New(0x10000, mem)
	img.SetProtector(MprotectProtector{Restore: unix.PROT_READ})

	// straddles nothing, sits in the middle of the page
	_, err = img.WriteAt([]byte{0x90, 0x90, 0xC3}, 0x10000+100)
	require.NoError(t, err)
	require.Equal(t, []byte{0x90, 0x90, 0xC3}, mem[100:103])
}
