package pattern

import "bytes"

// Find returns the offset of the first position in data where every
// non-wildcard byte of p matches. ok is false when there is no match, which
// is an expected outcome rather than an error.
func Find(data []byte, p Pattern) (off int, ok bool) {
	n := len(p)
	if n == 0 || n > len(data) {
		return 0, false
	}

	// Anchor on the first literal byte so bytes.IndexByte can skip ahead.
	anchor := -1
	for i, b := range p {
		if !b.Wildcard {
			anchor = i
			break
		}
	}
	if anchor < 0 {
		// all wildcards matches at the start of any long enough buffer
		return 0, true
	}

	last := len(data) - n
	want := p[anchor].Value
	for start := 0; start <= last; {
		idx := bytes.IndexByte(data[start+anchor:last+anchor+1], want)
		if idx < 0 {
			return 0, false
		}
		cand := start + idx
		if p.Matches(data[cand:]) {
			return cand, true
		}
		start = cand + 1
	}
	return 0, false
}

// FindAt is Find over a region that starts at base. It returns the absolute
// address of the match.
func FindAt(base uint64, data []byte, p Pattern) (addr uint64, ok bool) {
	off, ok := Find(data, p)
	if !ok {
		return 0, false
	}
	return base + uint64(off), true
}

// Count returns how many positions in data match p, overlapping matches
// included. It is a diagnostic for pattern authors checking uniqueness.
func Count(data []byte, p Pattern) int {
	count := 0
	for start := 0; start < len(data); {
		off, ok := Find(data[start:], p)
		if !ok {
			break
		}
		count++
		start += off + 1
	}
	return count
}
