// Package image provides access to a host program's loaded code image.
//
// # Overview
//
// An Image is a contiguous run of bytes that lives at a base address. Every
// other package addresses it with absolute addresses (the values a debugger
// would show), never with offsets into a Go slice:
//
//	img := image.New(0x400000, code)
//	addr, ok := img.Find(pattern.MustParse("8B 0D ?? ?? ?? ??"))
//
// # Backends
//
//   - New: an in-memory slice. Used by tests and by callers that already
//     hold a view of live memory.
//   - Open: a read-write shared mapping of an executable on disk (mmap on
//     unix, read and write-back elsewhere). Patches become persistent once
//     the touched pages are flushed, see the dirty package.
//   - OpenProcess (linux): a snapshot of one mapping of another process.
//     Scans run on the snapshot; writes go to the live process with
//     process_vm_writev and are mirrored into the snapshot.
//
// # Memory protection
//
// Code pages are normally not writable. A Protector installed with
// SetProtector is asked to lift protection around each write and to put it
// back afterwards. MprotectProtector does this with mprotect(2) for images
// that view the calling process's own memory.
//
// # Thread Safety
//
// Images are not thread-safe. The host drives a single thread of control
// and every call-in runs on it.
package image
