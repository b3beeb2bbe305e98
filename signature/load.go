package signature

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a signature file:
//
//	signatures:
//	  - name: widescreen_element_position
//	    pattern: "D9 05 ?? ?? ?? ?? D8 0D"
//	    offset: 2
//	    size: 4
//	    required: true
type File struct {
	Signatures []Definition `yaml:"signatures"`
}

// LoadDefinitions decodes and validates a signature file. Unknown fields
// are rejected so typos don't silently drop a setting.
func LoadDefinitions(r io.Reader) ([]Definition, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("signature: decode: %w", err)
	}
	if err := Validate(f.Signatures); err != nil {
		return nil, err
	}
	return f.Signatures, nil
}

// LoadDefinitionsFile reads a signature file from disk.
func LoadDefinitionsFile(path string) ([]Definition, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	defs, err := LoadDefinitions(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// Validate checks definitions the way Declare would, returning every
// problem instead of panicking.
func Validate(defs []Definition) error {
	var errs []error
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if err := d.validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[d.Name] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicate, d.Name))
		}
		seen[d.Name] = true
	}
	return errors.Join(errs...)
}
