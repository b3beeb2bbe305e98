// Package signature declares named byte patterns and resolves them against a
// host image.
//
// All signatures are resolved in one pass at startup:
//
//	c := signature.NewCatalog(img)
//	c.Declare(defs...)
//	if missing := c.ResolveAll(); len(missing) > 0 {
//		return signature.NewMissingError(missing)
//	}
//	addr, _ := c.Get("widescreen_element_position").Address()
//
// A signature that is not found is an expected outcome: host builds differ,
// and features that depend on a missing signature stay off. Asking for a
// name that was never declared is a bug and panics.
//
// Definitions usually come from a YAML file; see LoadDefinitions.
package signature
