package signature

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/joshuapare/hookkit/image"
	"github.com/joshuapare/hookkit/pattern"
)

var (
	// ErrUndeclared indicates a lookup of a name that was never declared.
	// Catalog methods panic with an error wrapping it.
	ErrUndeclared = errors.New("signature: undeclared")

	// ErrDuplicate indicates two declarations with the same name.
	ErrDuplicate = errors.New("signature: declared twice")

	// ErrInvalid indicates a definition with no name or no pattern.
	ErrInvalid = errors.New("signature: invalid definition")

	// ErrUnresolved indicates use of the address of a signature that was
	// not found.
	ErrUnresolved = errors.New("signature: not resolved")
)

// Region limits a scan to [base+Offset, base+Offset+Length) of the image.
// A zero Length runs to the end of the image.
type Region struct {
	Offset uint64 `yaml:"offset"`
	Length int    `yaml:"length"`
}

// Definition is the static description of one signature.
type Definition struct {
	Name    string          `yaml:"name"`
	Pattern pattern.Pattern `yaml:"pattern"`

	// Offset is added to the match address, for patterns that start a few
	// bytes before the instruction of interest.
	Offset int `yaml:"offset,omitempty"`

	// Size is the number of bytes features may rewrite at the address.
	// Zero means the pattern length.
	Size int `yaml:"size,omitempty"`

	Region *Region `yaml:"region,omitempty"`

	// Required signatures must all resolve for the session to work at
	// all; optional ones only gate the features that use them.
	Required bool `yaml:"required,omitempty"`
}

func (d Definition) validate() error {
	switch {
	case d.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalid)
	case len(d.Pattern) == 0:
		return fmt.Errorf("%w: %s: empty pattern", ErrInvalid, d.Name)
	case d.Size < 0:
		return fmt.Errorf("%w: %s: negative size %d", ErrInvalid, d.Name, d.Size)
	case d.Region != nil && d.Region.Length < 0:
		return fmt.Errorf("%w: %s: negative region length", ErrInvalid, d.Name)
	}
	return nil
}

// Signature is a declared definition plus its resolution state. The
// address is set at most once and never changes afterwards.
type Signature struct {
	def      Definition
	img      *image.Image
	addr     uint64
	resolved bool
}

// Name returns the declared name.
func (s *Signature) Name() string { return s.def.Name }

// Definition returns the static definition.
func (s *Signature) Definition() Definition { return s.def }

// Required reports whether the signature is required.
func (s *Signature) Required() bool { return s.def.Required }

// Resolved reports whether the signature was found.
func (s *Signature) Resolved() bool { return s.resolved }

// Address returns the resolved address, adjusted by the declared offset.
func (s *Signature) Address() (uint64, bool) {
	return s.addr, s.resolved
}

// MustAddress returns the resolved address and panics if there is none.
// Use it only after checking Catalog.Has.
func (s *Signature) MustAddress() uint64 {
	if !s.resolved {
		panic(fmt.Errorf("%w: %s", ErrUnresolved, s.def.Name))
	}
	return s.addr
}

// Size returns the declared size, or the pattern length.
func (s *Signature) Size() int {
	if s.def.Size > 0 {
		return s.def.Size
	}
	return len(s.def.Pattern)
}

// Bytes returns a copy of the Size bytes currently at the address, or nil
// if the signature is unresolved or runs past the image.
func (s *Signature) Bytes() []byte {
	if !s.resolved {
		return nil
	}
	b, err := s.img.View(s.addr, s.Size())
	if err != nil {
		return nil
	}
	return slices.Clone(b)
}

func (s *Signature) String() string {
	if s.resolved {
		return fmt.Sprintf("%s@%#x", s.def.Name, s.addr)
	}
	return s.def.Name + "@?"
}

// resolve scans the image once. A resolved signature is never scanned again.
func (s *Signature) resolve() bool {
	if s.resolved {
		return true
	}

	var (
		addr uint64
		ok   bool
	)
	if r := s.def.Region; r != nil {
		n := r.Length
		if n == 0 {
			n = s.img.Len()
		}
		addr, ok = s.img.FindIn(s.img.Base()+r.Offset, n, s.def.Pattern)
	} else {
		addr, ok = s.img.Find(s.def.Pattern)
	}
	if !ok {
		return false
	}

	s.addr = uint64(int64(addr) + int64(s.def.Offset))
	s.resolved = true
	return true
}

// MissingError lists every required signature that could not be found, so
// the whole compatibility picture is reported at once.
type MissingError struct {
	Names []string
}

// NewMissingError returns a *MissingError for names, or nil if names is empty.
func NewMissingError(names []string) error {
	if len(names) == 0 {
		return nil
	}
	return &MissingError{Names: slices.Clone(names)}
}

func (e *MissingError) Error() string {
	noun := "signatures"
	if len(e.Names) == 1 {
		noun = "signature"
	}
	return fmt.Sprintf("signature: %d %s not found: %s", len(e.Names), noun, strings.Join(e.Names, ", "))
}
