// Package hook dispatches callbacks at the host's trigger points.
//
// The host calls in at points it chooses (before a frame, once per tick,
// after a map load, when a console message arrives). Features register
// Hookable values on those points and the Dispatcher runs them in
// registration order, synchronously, on the calling thread:
//
//	d := hook.NewDispatcher()
//	h := hook.Func("fps_counter", func(ev *hook.Event) error { ... })
//	d.AddPreFrame(h)
//	...
//	d.Fire(&hook.Event{Trigger: hook.PreFrame})
//	...
//	d.RemovePreFrame(h)
//
// Hooks may add or remove hooks, themselves included, while running. See
// Dispatcher for the exact rules.
//
// Errors returned by a hook stop the pass and reach the caller of Fire.
// Registering the same hook twice panics with an error wrapping
// ErrDuplicate.
package hook
