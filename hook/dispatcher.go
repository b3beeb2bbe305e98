package hook

import (
	"fmt"
)

type state uint8

const (
	stateActive state = iota
	statePendingAdd
	statePendingRemove
)

type registration struct {
	h        Hookable
	state    state
	disabled bool
}

// hookList is the ordered registry of one trigger point.
type hookList struct {
	regs  []*registration
	index map[Hookable]*registration
	depth int  // nested passes in progress
	dirty bool // pending adds or removes to apply when depth reaches 0
}

// Dispatcher keeps one ordered hook list per trigger point and runs them
// when the host reaches that point.
//
// Adds and removes requested while a pass over the same trigger is running
// are buffered: an added hook first runs on the next pass, and a removed hook
// that has not been reached yet does not run. The buffered changes are
// applied when the outermost pass returns.
//
// A hook identity may be registered on one trigger at a time.
//
// NOT thread-safe. The host calls in from its own thread only.
type Dispatcher struct {
	lists [numTriggers]hookList
	where map[Hookable]Trigger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{where: make(map[Hookable]Trigger)}
	for i := range d.lists {
		d.lists[i].index = make(map[Hookable]*registration)
	}
	return d
}

// Add appends h to the hooks of t. It panics with an error wrapping
// ErrDuplicate if h is already registered on any trigger.
func (d *Dispatcher) Add(t Trigger, h Hookable) {
	l := d.list(t)
	if other, ok := d.where[h]; ok {
		panic(fmt.Errorf("%w: %s on %s", ErrDuplicate, nameOf(h), other))
	}

	reg := &registration{h: h}
	if l.depth > 0 {
		reg.state = statePendingAdd
		l.dirty = true
	}
	l.regs = append(l.regs, reg)
	l.index[h] = reg
	d.where[h] = t
}

// Remove unregisters h from t and reports whether it was registered.
// Removing an unknown hook is a no-op, so teardown paths can call it freely.
func (d *Dispatcher) Remove(t Trigger, h Hookable) bool {
	l := d.list(t)
	reg, ok := l.index[h]
	if !ok {
		return false
	}
	delete(l.index, h)
	delete(d.where, h)

	if l.depth > 0 {
		reg.state = statePendingRemove
		l.dirty = true
		return true
	}
	for i, r := range l.regs {
		if r == reg {
			l.regs = append(l.regs[:i], l.regs[i+1:]...)
			break
		}
	}
	return true
}

// Has reports whether h is registered on t, including a buffered add.
func (d *Dispatcher) Has(t Trigger, h Hookable) bool {
	_, ok := d.list(t).index[h]
	return ok
}

// Len returns the number of hooks registered on t.
func (d *Dispatcher) Len(t Trigger) int {
	return len(d.list(t).index)
}

// SetEnabled turns h on or off without changing its position. It reports
// whether h is registered on t.
func (d *Dispatcher) SetEnabled(t Trigger, h Hookable, enabled bool) bool {
	reg, ok := d.list(t).index[h]
	if ok {
		reg.disabled = !enabled
	}
	return ok
}

// Fire runs every active hook of ev.Trigger in registration order. The
// first error stops the pass and is returned wrapped with the hook's name.
// Panics from hooks are not recovered.
func (d *Dispatcher) Fire(ev *Event) error {
	l := d.list(ev.Trigger)
	l.depth++
	defer func() {
		l.depth--
		if l.depth == 0 && l.dirty {
			l.compact()
		}
	}()

	// l.regs may grow during the loop; entries added mid-pass are pending
	for i := 0; i < len(l.regs); i++ {
		reg := l.regs[i]
		if reg.state != stateActive || reg.disabled {
			continue
		}
		if err := reg.h.OnEvent(ev); err != nil {
			return fmt.Errorf("hook: %s %s: %w", ev.Trigger, nameOf(reg.h), err)
		}
	}
	return nil
}

// FireMessage runs the RconMessage hooks for msg and reports whether the
// host should print it.
func (d *Dispatcher) FireMessage(msg string) (allow bool, err error) {
	ev := &Event{Trigger: RconMessage, Message: msg}
	if err := d.Fire(ev); err != nil {
		return false, err
	}
	return !ev.Blocked, nil
}

// Clear removes every hook from every trigger.
func (d *Dispatcher) Clear() {
	for _, t := range Triggers() {
		l := d.list(t)
		hooks := make([]Hookable, 0, len(l.index))
		for _, reg := range l.regs {
			if reg.state != statePendingRemove {
				hooks = append(hooks, reg.h)
			}
		}
		for _, h := range hooks {
			d.Remove(t, h)
		}
	}
}

// AddTick registers h to run once per tick.
func (d *Dispatcher) AddTick(h Hookable) { d.Add(Tick, h) }

// RemoveTick unregisters a tick hook.
func (d *Dispatcher) RemoveTick(h Hookable) bool { return d.Remove(Tick, h) }

// AddPreFrame registers h to run before each frame.
func (d *Dispatcher) AddPreFrame(h Hookable) { d.Add(PreFrame, h) }

// RemovePreFrame unregisters a pre-frame hook.
func (d *Dispatcher) RemovePreFrame(h Hookable) bool { return d.Remove(PreFrame, h) }

// AddMapLoad registers h to run after each map load.
func (d *Dispatcher) AddMapLoad(h Hookable) { d.Add(MapLoad, h) }

// RemoveMapLoad unregisters a map-load hook.
func (d *Dispatcher) RemoveMapLoad(h Hookable) bool { return d.Remove(MapLoad, h) }

// AddRconMessage registers h to run for each console message.
func (d *Dispatcher) AddRconMessage(h Hookable) { d.Add(RconMessage, h) }

// RemoveRconMessage unregisters a console message hook.
func (d *Dispatcher) RemoveRconMessage(h Hookable) bool { return d.Remove(RconMessage, h) }

// Once wraps fn in a hook that unregisters itself from t the first time it
// runs, before calling fn.
func (d *Dispatcher) Once(t Trigger, name string, fn func(*Event) error) Hookable {
	var h Hookable
	h = Func(name, func(ev *Event) error {
		d.Remove(t, h)
		return fn(ev)
	})
	d.Add(t, h)
	return h
}

func (d *Dispatcher) list(t Trigger) *hookList {
	if t >= numTriggers {
		panic(fmt.Sprintf("hook: unknown trigger %d", uint8(t)))
	}
	return &d.lists[t]
}

// compact drops removed registrations and activates buffered adds.
func (l *hookList) compact() {
	kept := l.regs[:0]
	for _, reg := range l.regs {
		switch reg.state {
		case statePendingRemove:
			continue
		case statePendingAdd:
			reg.state = stateActive
		}
		kept = append(kept, reg)
	}
	clear(l.regs[len(kept):])
	l.regs = kept
	l.dirty = false
}
