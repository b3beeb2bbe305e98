// Package session attaches to a host image and runs features against it.
//
// A Session owns one signature catalog, one patch ledger and one hook
// dispatcher. Nothing here is global, so tests build as many independent
// sessions as they like.
//
// Lifecycle:
//
//	s := session.New(img, session.Options{})
//	s.Declare(defs...)
//	s.Register(myFeature)
//	if err := s.Attach(); err != nil {
//		// *signature.MissingError: report it once, in full
//	}
//	s.Enable("my_feature")
//
//	// the host calls in from its loop
//	s.Tick()
//	s.PreFrame()
//	s.MapLoad("bloodgulch")
//	allow, _ := s.RconMessage(raw)
//
//	s.Detach() // features off, hooks gone, every patch undone
//
// Features patch through the ledger with their own name as owner. Disabling
// a feature, or detaching, undoes whatever the feature left applied.
package session
