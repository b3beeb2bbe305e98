package signature

import (
	"fmt"

	"github.com/joshuapare/hookkit/image"
)

// Catalog is the table of declared signatures for one image. Names are
// unique; declaration order is kept for reporting.
//
// NOT thread-safe.
type Catalog struct {
	img    *image.Image
	sigs   []*Signature
	byName map[string]*Signature
}

// NewCatalog creates an empty catalog over img.
func NewCatalog(img *image.Image) *Catalog {
	return &Catalog{
		img:    img,
		byName: make(map[string]*Signature),
	}
}

// Declare adds definitions. It panics with an error wrapping ErrDuplicate
// or ErrInvalid; declarations are part of the program, not input.
func (c *Catalog) Declare(defs ...Definition) {
	for _, d := range defs {
		if err := d.validate(); err != nil {
			panic(err)
		}
		if _, ok := c.byName[d.Name]; ok {
			panic(fmt.Errorf("%w: %s", ErrDuplicate, d.Name))
		}
		s := &Signature{def: d, img: c.img}
		c.sigs = append(c.sigs, s)
		c.byName[d.Name] = s
	}
}

// ResolveAll scans for every unresolved signature and returns the names
// that are still missing, in declaration order. Resolved signatures are not
// scanned again, so calling it twice is cheap and gives the same answer.
func (c *Catalog) ResolveAll() []string {
	var missing []string
	for _, s := range c.sigs {
		if !s.resolve() {
			missing = append(missing, s.def.Name)
		}
	}
	return missing
}

// Resolve is ResolveAll restricted to names. It panics if a name is
// undeclared.
func (c *Catalog) Resolve(names ...string) []string {
	var missing []string
	for _, name := range names {
		if !c.Get(name).resolve() {
			missing = append(missing, name)
		}
	}
	return missing
}

// Get returns the signature declared as name, resolved or not. It panics
// with an error wrapping ErrUndeclared if name was never declared.
func (c *Catalog) Get(name string) *Signature {
	s, ok := c.byName[name]
	if !ok {
		panic(fmt.Errorf("%w: %q", ErrUndeclared, name))
	}
	return s
}

// Lookup is Get without the panic.
func (c *Catalog) Lookup(name string) (*Signature, bool) {
	s, ok := c.byName[name]
	return s, ok
}

// Has reports whether every named signature is resolved. It panics on
// undeclared names like Get.
func (c *Catalog) Has(names ...string) bool {
	for _, name := range names {
		if !c.Get(name).resolved {
			return false
		}
	}
	return true
}

// Unresolved returns the names among names that are not resolved, without
// scanning. It panics on undeclared names like Get.
func (c *Catalog) Unresolved(names ...string) []string {
	var out []string
	for _, name := range names {
		if !c.Get(name).resolved {
			out = append(out, name)
		}
	}
	return out
}

// Missing returns the unresolved names in declaration order.
func (c *Catalog) Missing() []string {
	return c.missing(false)
}

// MissingRequired returns the unresolved required names in declaration order.
func (c *Catalog) MissingRequired() []string {
	return c.missing(true)
}

func (c *Catalog) missing(requiredOnly bool) []string {
	var out []string
	for _, s := range c.sigs {
		if !s.resolved && (!requiredOnly || s.def.Required) {
			out = append(out, s.def.Name)
		}
	}
	return out
}

// Signatures returns every signature in declaration order.
func (c *Catalog) Signatures() []*Signature {
	out := make([]*Signature, len(c.sigs))
	copy(out, c.sigs)
	return out
}

// Len returns the number of declared signatures.
func (c *Catalog) Len() int { return len(c.sigs) }
