package hook

import (
	"errors"
	"fmt"
)

// ErrDuplicate indicates a hook registered twice. Dispatcher methods panic
// with an error wrapping it.
var ErrDuplicate = errors.New("hook: already registered")

// Trigger is a point in the host's loop at which hooks run.
type Trigger uint8

const (
	// PreFrame runs before the host renders a frame.
	PreFrame Trigger = iota
	// Tick runs once per simulation tick.
	Tick
	// MapLoad runs after the host loads a map.
	MapLoad
	// RconMessage runs when a console message arrives over the network.
	RconMessage

	numTriggers
)

var triggerNames = [numTriggers]string{
	PreFrame:    "pre-frame",
	Tick:        "tick",
	MapLoad:     "map-load",
	RconMessage: "rcon-message",
}

func (t Trigger) String() string {
	if t < numTriggers {
		return triggerNames[t]
	}
	return fmt.Sprintf("trigger(%d)", uint8(t))
}

// Triggers returns every trigger point in a stable order.
func Triggers() []Trigger {
	return []Trigger{PreFrame, Tick, MapLoad, RconMessage}
}

// Event is passed to every hook of one dispatch pass.
type Event struct {
	Trigger Trigger

	// Map is the loaded map's name, for MapLoad.
	Map string

	// Message is the decoded console text, for RconMessage.
	Message string

	// Blocked is set by an RconMessage hook to keep the host from
	// printing the message. Later hooks still run and can see it.
	Blocked bool
}

// Hookable is the contract a callback implements. Implementations must be
// comparable; the value itself is the registration identity, so pointer
// receivers are the natural choice.
type Hookable interface {
	OnEvent(ev *Event) error
}

type funcHook struct {
	name string
	fn   func(*Event) error
}

// Func adapts fn to a Hookable. Each call returns a new identity, so keep
// the result to remove the hook later.
func Func(name string, fn func(*Event) error) Hookable {
	return &funcHook{name: name, fn: fn}
}

func (f *funcHook) OnEvent(ev *Event) error { return f.fn(ev) }

func (f *funcHook) String() string { return f.name }

// nameOf returns a label for h in errors.
func nameOf(h Hookable) string {
	if s, ok := h.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", h)
}
