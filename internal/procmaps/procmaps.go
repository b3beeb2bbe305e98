// Package procmaps parses the memory map table of a Linux process
// (/proc/<pid>/maps).
package procmaps

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Map is one line of a maps table.
type Map struct {
	Start       uint64
	End         uint64
	Permissions Permission
	Offset      uint64
	Device      string
	Inode       uint64
	Path        string
}

// Len returns the size of the mapping in bytes.
func (m Map) Len() uint64 { return m.End - m.Start }

type Permission uint8

const (
	PermissionRead Permission = 1 << iota
	PermissionWrite
	PermissionExecute
	PermissionShared
	PermissionPrivate
)

// Has reports whether every bit of want is set.
func (p Permission) Has(want Permission) bool { return p&want == want }

func (p Permission) String() string {
	b := []byte("----")
	if p.Has(PermissionRead) {
		b[0] = 'r'
	}
	if p.Has(PermissionWrite) {
		b[1] = 'w'
	}
	if p.Has(PermissionExecute) {
		b[2] = 'x'
	}
	switch {
	case p.Has(PermissionShared):
		b[3] = 's'
	case p.Has(PermissionPrivate):
		b[3] = 'p'
	}
	return string(b)
}

// Read returns the mappings of process pid.
func Read(pid int) ([]Map, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, fmt.Errorf("opening maps: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a maps table in the kernel's text format.
func Parse(r io.Reader) ([]Map, error) {
	maps := []Map{}

	scan := bufio.NewScanner(r)
	line := 0
	for scan.Scan() {
		line++
		f := strings.Fields(scan.Text())
		if len(f) == 0 {
			continue
		}
		if len(f) < 5 {
			return nil, fmt.Errorf("line %d: expected at least 5 fields, got %d", line, len(f))
		}
		addr, permStr, offsetHex, dev, inodeDec := f[0], f[1], f[2], f[3], f[4]
		pathname := ""
		if len(f) >= 6 {
			// paths may contain spaces, e.g. "/tmp/a b (deleted)"
			pathname = strings.Join(f[5:], " ")
		}

		startHex, endHex, _ := strings.Cut(addr, "-")
		start, err := strconv.ParseUint(startHex, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parsing addr start: %w", line, err)
		}

		end, err := strconv.ParseUint(endHex, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parsing addr end: %w", line, err)
		}

		offset, err := strconv.ParseUint(offsetHex, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parsing offset: %w", line, err)
		}

		inode, err := strconv.ParseUint(inodeDec, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parsing inode: %w", line, err)
		}

		maps = append(maps, Map{
			Start:       start,
			End:         end,
			Permissions: parsePermissions(permStr),
			Offset:      offset,
			Device:      dev,
			Inode:       inode,
			Path:        pathname,
		})
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("reading maps: %w", err)
	}

	return maps, nil
}

// Find returns the first mapping whose path contains match and whose
// permissions include want.
func Find(maps []Map, match string, want Permission) (Map, bool) {
	for _, m := range maps {
		if m.Permissions.Has(want) && strings.Contains(m.Path, match) {
			return m, true
		}
	}
	return Map{}, false
}

func parsePermissions(s string) Permission {
	var perms Permission
	if strings.ContainsRune(s, 'r') {
		perms |= PermissionRead
	}
	if strings.ContainsRune(s, 'w') {
		perms |= PermissionWrite
	}
	if strings.ContainsRune(s, 'x') {
		perms |= PermissionExecute
	}
	if strings.ContainsRune(s, 's') {
		perms |= PermissionShared
	}
	if strings.ContainsRune(s, 'p') {
		perms |= PermissionPrivate
	}
	return perms
}
