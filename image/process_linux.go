//go:build linux

package image

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/joshuapare/hookkit/internal/procmaps"
)

// snapshotChunk bounds a single process_vm_readv call.
const snapshotChunk = 1 << 20

// OpenProcess snapshots the first executable mapping of process pid whose
// path contains match. Writes go to the live process.
//
// The kernel refuses writes to pages the target has mapped read-only, so
// patching code this way only works on hosts that keep their text writable
// or have already been unprotected.
func OpenProcess(pid int, match string) (*Image, error) {
	maps, err := procmaps.Read(pid)
	if err != nil {
		return nil, err
	}

	m, ok := procmaps.Find(maps, match, procmaps.PermissionRead|procmaps.PermissionExecute)
	if !ok {
		return nil, fmt.Errorf("image: no executable mapping matching %q in pid %d", match, pid)
	}

	proc := &process{pid: pid}
	data := make([]byte, m.Len())
	for off := uint64(0); off < m.Len(); {
		n := uint64(snapshotChunk)
		if off+n > m.Len() {
			n = m.Len() - off
		}
		read, err := proc.ReadAt(data[off:off+n], m.Start+off)
		if err != nil {
			return nil, fmt.Errorf("reading memory: %w", err)
		}
		if uint64(read) != n {
			return nil, fmt.Errorf("n != buflen: %d != %d", read, n)
		}
		off += n
	}

	return &Image{
		name:   fmt.Sprintf("pid:%d", pid),
		base:   m.Start,
		data:   data,
		remote: proc,
	}, nil
}

type process struct {
	pid int
}

func (p *process) ReadAt(b []byte, addr uint64) (int, error) {
	localIov := [1]unix.Iovec{
		{Base: &b[0]},
	}
	localIov[0].SetLen(len(b))
	remoteIov := [1]unix.RemoteIovec{
		{Base: uintptr(addr), Len: len(b)},
	}
	return unix.ProcessVMReadv(p.pid, localIov[:], remoteIov[:], 0)
}

func (p *process) WriteAt(b []byte, addr uint64) (int, error) {
	localIov := [1]unix.Iovec{
		{Base: &b[0]},
	}
	localIov[0].SetLen(len(b))
	remoteIov := [1]unix.RemoteIovec{
		{Base: uintptr(addr), Len: len(b)},
	}
	return unix.ProcessVMWritev(p.pid, localIov[:], remoteIov[:], 0)
}
