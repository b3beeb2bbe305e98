// Package patchfile loads features declared in YAML.
//
// A patch file declares the signatures it needs and a list of features, each
// a list of patches against those signatures:
//
//	signatures:
//	  - name: loading_screen
//	    pattern: "74 05 E8 ?? ?? ?? ??"
//	    required: true
//	  - name: aspect_ratio
//	    pattern: "D9 05 ?? ?? ?? ?? D8 0D"
//	    offset: 2
//	    size: 4
//	features:
//	  - name: skip_loading
//	    description: Skip the loading screen
//	    enabled: true
//	    patches:
//	      - signature: loading_screen
//	        nop: true
//	  - name: widescreen
//	    patches:
//	      - signature: aspect_ratio
//	        float32: 1.7777778
//
// Each patch sets exactly one of bytes, nop, int8..uint64, float32 or
// float64. Features apply all their patches or none.
package patchfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/joshuapare/hookkit/image/dirty"
	"github.com/joshuapare/hookkit/patch/tx"
	"github.com/joshuapare/hookkit/pattern"
	"github.com/joshuapare/hookkit/session"
	"github.com/joshuapare/hookkit/signature"
)

var (
	// ErrInvalid indicates a malformed feature or patch.
	ErrInvalid = errors.New("patchfile: invalid")

	// ErrUnknownSignature indicates a patch against a signature the file
	// does not declare.
	ErrUnknownSignature = errors.New("patchfile: unknown signature")
)

const nop = 0x90

// File is a decoded patch file.
type File struct {
	Signatures []signature.Definition `yaml:"signatures"`
	Features   []FeatureSpec          `yaml:"features"`
}

// FeatureSpec is one feature as written in the file.
type FeatureSpec struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description,omitempty"`
	Enabled     bool    `yaml:"enabled,omitempty"`
	Patches     []Patch `yaml:"patches"`
}

// Patch is one write relative to a signature's address.
type Patch struct {
	Signature string `yaml:"signature"`
	Offset    int    `yaml:"offset,omitempty"`

	Bytes *pattern.Pattern `yaml:"bytes,omitempty"`
	Nop   bool             `yaml:"nop,omitempty"`
	Size  int              `yaml:"size,omitempty"` // for nop; default: rest of the signature

	Int8    *int8    `yaml:"int8,omitempty"`
	Int16   *int16   `yaml:"int16,omitempty"`
	Int32   *int32   `yaml:"int32,omitempty"`
	Int64   *int64   `yaml:"int64,omitempty"`
	Uint8   *uint8   `yaml:"uint8,omitempty"`
	Uint16  *uint16  `yaml:"uint16,omitempty"`
	Uint32  *uint32  `yaml:"uint32,omitempty"`
	Uint64  *uint64  `yaml:"uint64,omitempty"`
	Float32 *float32 `yaml:"float32,omitempty"`
	Float64 *float64 `yaml:"float64,omitempty"`
}

// value returns the numeric value of p, or nil.
func (p Patch) value() any {
	switch {
	case p.Int8 != nil:
		return *p.Int8
	case p.Int16 != nil:
		return *p.Int16
	case p.Int32 != nil:
		return *p.Int32
	case p.Int64 != nil:
		return *p.Int64
	case p.Uint8 != nil:
		return *p.Uint8
	case p.Uint16 != nil:
		return *p.Uint16
	case p.Uint32 != nil:
		return *p.Uint32
	case p.Uint64 != nil:
		return *p.Uint64
	case p.Float32 != nil:
		return *p.Float32
	case p.Float64 != nil:
		return *p.Float64
	}
	return nil
}

func (p Patch) kinds() int {
	n := 0
	if p.Bytes != nil {
		n++
	}
	if p.Nop {
		n++
	}
	for _, set := range []bool{
		p.Int8 != nil, p.Int16 != nil, p.Int32 != nil, p.Int64 != nil,
		p.Uint8 != nil, p.Uint16 != nil, p.Uint32 != nil, p.Uint64 != nil,
		p.Float32 != nil, p.Float64 != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

func (p Patch) validate() error {
	switch {
	case p.Signature == "":
		return fmt.Errorf("%w: patch without signature", ErrInvalid)
	case p.kinds() != 1:
		return fmt.Errorf("%w: patch on %s must set exactly one of bytes, nop or a value", ErrInvalid, p.Signature)
	case p.Bytes != nil && p.Bytes.Wildcards() > 0:
		return fmt.Errorf("%w: patch on %s: bytes cannot contain wildcards", ErrInvalid, p.Signature)
	case p.Size < 0:
		return fmt.Errorf("%w: patch on %s: negative size", ErrInvalid, p.Signature)
	case p.Size > 0 && !p.Nop:
		return fmt.Errorf("%w: patch on %s: size only applies to nop", ErrInvalid, p.Signature)
	}
	return nil
}

// Load decodes and validates a patch file.
func Load(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("patchfile: decode: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFile reads a patch file from disk.
func LoadFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	f, err := Load(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Validate reports every problem in the file.
func (f *File) Validate() error {
	errs := []error{signature.Validate(f.Signatures)}

	declared := make(map[string]bool, len(f.Signatures))
	for _, d := range f.Signatures {
		declared[d.Name] = true
	}

	seen := make(map[string]bool, len(f.Features))
	for _, fs := range f.Features {
		if fs.Name == "" {
			errs = append(errs, fmt.Errorf("%w: feature without name", ErrInvalid))
			continue
		}
		if seen[fs.Name] {
			errs = append(errs, fmt.Errorf("%w: feature %s declared twice", ErrInvalid, fs.Name))
		}
		seen[fs.Name] = true

		if len(fs.Patches) == 0 {
			errs = append(errs, fmt.Errorf("%w: feature %s has no patches", ErrInvalid, fs.Name))
		}
		for _, p := range fs.Patches {
			if err := p.validate(); err != nil {
				errs = append(errs, fmt.Errorf("feature %s: %w", fs.Name, err))
				continue
			}
			if !declared[p.Signature] {
				errs = append(errs, fmt.Errorf("feature %s: %w: %s", fs.Name, ErrUnknownSignature, p.Signature))
			}
		}
	}
	return errors.Join(errs...)
}

// Install declares the file's signatures on s and registers its features.
// Call it before s.Attach.
func (f *File) Install(s *session.Session) {
	s.Declare(f.Signatures...)
	for _, fs := range f.Features {
		s.Register(&feature{spec: fs})
	}
}

// Defaults returns the names of features marked enabled, in file order.
func (f *File) Defaults() []string {
	var out []string
	for _, fs := range f.Features {
		if fs.Enabled {
			out = append(out, fs.Name)
		}
	}
	return out
}

// feature adapts a FeatureSpec to session.Feature.
type feature struct {
	spec FeatureSpec
}

func (f *feature) Name() string { return f.spec.Name }

func (f *feature) Signatures() []string {
	var out []string
	for _, p := range f.spec.Patches {
		if !slices.Contains(out, p.Signature) {
			out = append(out, p.Signature)
		}
	}
	return out
}

// Enable writes every patch in one batch. A failed write rolls back the
// ones before it.
func (f *feature) Enable(s *session.Session) error {
	ctx := context.Background()
	m := tx.NewManager(s.Ledger(), s.Tracker(), dirty.FlushDataOnly)
	if err := m.Begin(ctx); err != nil {
		return err
	}

	for i, p := range f.spec.Patches {
		if err := f.apply(s, m, p); err != nil {
			if rerr := m.Rollback(); rerr != nil {
				err = errors.Join(err, rerr)
			}
			return fmt.Errorf("patch %d (%s): %w", i, p.Signature, err)
		}
	}

	if err := m.Commit(ctx); err != nil {
		if rerr := m.Rollback(); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return err
	}
	s.Logger().Debug("patches applied", "feature", f.spec.Name, "count", len(f.spec.Patches))
	return nil
}

func (f *feature) apply(s *session.Session, m *tx.Manager, p Patch) error {
	sig := s.Catalog().Get(p.Signature)
	base, ok := sig.Address()
	if !ok {
		return fmt.Errorf("%w: %s", signature.ErrUnresolved, p.Signature)
	}
	addr := uint64(int64(base) + int64(p.Offset))
	owner := f.spec.Name

	var err error
	switch {
	case p.Nop:
		n := p.Size
		if n == 0 {
			n = sig.Size() - p.Offset
		}
		_, err = m.Fill(addr, n, nop, owner)
	case p.Bytes != nil:
		b := make([]byte, p.Bytes.Len())
		for i, pb := range *p.Bytes {
			b[i] = pb.Value
		}
		_, err = m.Write(addr, b, owner)
	default:
		_, err = m.WriteValue(addr, p.value(), owner)
	}
	return err
}

// Disable has nothing to do; the session undoes the feature's patches.
func (f *feature) Disable(*session.Session) error { return nil }
