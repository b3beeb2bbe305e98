// Package pattern matches byte sequences with wildcard positions against
// memory.
//
// Patterns are written as space separated hex bytes with "??" (or "?") for
// positions that may hold any value:
//
//	p := pattern.MustParse("8B 0D ?? ?? ?? ?? 85 C9 74 ??")
//	off, ok := pattern.Find(data, p)
//
// The matcher is pure and keeps no state. A pattern that matches more than
// once is not an error: Find returns the lowest match and it is up to the
// author of the pattern to make it specific enough.
package pattern

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmpty indicates a pattern with no bytes.
	ErrEmpty = errors.New("pattern: empty pattern")

	// ErrSyntax indicates a token that is neither a hex byte nor a wildcard.
	ErrSyntax = errors.New("pattern: invalid token")

	// ErrMaskLength indicates that a byte string and its mask differ in length.
	ErrMaskLength = errors.New("pattern: mask length mismatch")
)

// Byte is one position of a pattern.
type Byte struct {
	Value    byte
	Wildcard bool
}

// Pattern is an ordered sequence of bytes and wildcards.
type Pattern []Byte

// Parse reads a pattern in "AA BB ?? CC" notation. Tokens may also be
// written without separators ("AABB??CC").
func Parse(s string) (Pattern, error) {
	fields := strings.Fields(s)
	if len(fields) == 1 && len(fields[0]) > 2 {
		fields = splitPacked(fields[0])
	}

	p := make(Pattern, 0, len(fields))
	for _, tok := range fields {
		if tok == "?" || tok == "??" {
			p = append(p, Byte{Wildcard: true})
			continue
		}
		if len(tok) != 2 {
			return nil, fmt.Errorf("%w: %q", ErrSyntax, tok)
		}
		b, err := hex.DecodeString(tok)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrSyntax, tok)
		}
		p = append(p, Byte{Value: b[0]})
	}
	if len(p) == 0 {
		return nil, ErrEmpty
	}
	return p, nil
}

// MustParse is like Parse but panics on error. It is meant for patterns
// compiled into the program.
func MustParse(s string) Pattern {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// FromMask builds a pattern from raw bytes and an "xx??x" style mask, where
// 'x' means the byte must match and any other character marks a wildcard.
func FromMask(b []byte, mask string) (Pattern, error) {
	if len(b) != len(mask) {
		return nil, fmt.Errorf("%w: %d bytes, %d mask", ErrMaskLength, len(b), len(mask))
	}
	if len(b) == 0 {
		return nil, ErrEmpty
	}
	p := make(Pattern, len(b))
	for i := range b {
		if mask[i] == 'x' {
			p[i] = Byte{Value: b[i]}
		} else {
			p[i] = Byte{Wildcard: true}
		}
	}
	return p, nil
}

// Exact builds a pattern without wildcards.
func Exact(b []byte) Pattern {
	p := make(Pattern, len(b))
	for i, v := range b {
		p[i] = Byte{Value: v}
	}
	return p
}

// Len returns the number of positions in the pattern.
func (p Pattern) Len() int { return len(p) }

// Wildcards returns the number of wildcard positions.
func (p Pattern) Wildcards() int {
	n := 0
	for _, b := range p {
		if b.Wildcard {
			n++
		}
	}
	return n
}

// Matches reports whether data begins with a match for p.
func (p Pattern) Matches(data []byte) bool {
	if len(data) < len(p) {
		return false
	}
	for i, b := range p {
		if !b.Wildcard && data[i] != b.Value {
			return false
		}
	}
	return true
}

// String formats the pattern in the notation accepted by Parse.
func (p Pattern) String() string {
	var sb strings.Builder
	for i, b := range p {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if b.Wildcard {
			sb.WriteString("??")
		} else {
			fmt.Fprintf(&sb, "%02X", b.Value)
		}
	}
	return sb.String()
}

// UnmarshalText lets patterns appear directly in YAML and JSON documents.
func (p *Pattern) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalText is the inverse of UnmarshalText.
func (p Pattern) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func splitPacked(s string) []string {
	out := make([]string, 0, len(s)/2)
	for i := 0; i < len(s); {
		if s[i] == '?' {
			// "??" or a lone "?"
			if i+1 < len(s) && s[i+1] == '?' {
				out = append(out, "??")
				i += 2
			} else {
				out = append(out, "?")
				i++
			}
			continue
		}
		end := i + 2
		if end > len(s) {
			end = len(s)
		}
		out = append(out, s[i:end])
		i = end
	}
	return out
}
