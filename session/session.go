package session

import (
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/text/encoding/charmap"

	"github.com/joshuapare/hookkit/hook"
	"github.com/joshuapare/hookkit/image"
	"github.com/joshuapare/hookkit/image/dirty"
	"github.com/joshuapare/hookkit/internal/logger"
	"github.com/joshuapare/hookkit/patch"
	"github.com/joshuapare/hookkit/signature"
)

var (
	// ErrAttached indicates a second Attach.
	ErrAttached = errors.New("session: already attached")

	// ErrNotAttached indicates a call that needs Attach first.
	ErrNotAttached = errors.New("session: not attached")

	// ErrDetached indicates use of a session after Detach.
	ErrDetached = errors.New("session: detached")
)

// Options configures a Session.
type Options struct {
	// Logger receives session events. Default: logger.L.
	Logger *slog.Logger

	// Tracker, if set, is told about every patched range so the caller can
	// persist a file-backed image.
	Tracker dirty.FlushableTracker

	// Strict makes Attach fail when any signature is missing, not just
	// the required ones.
	Strict bool
}

// Session owns everything attached to one host image: the signature
// catalog, the patch ledger, the hook dispatcher and the registered
// features. It lives from Attach to Detach.
//
// NOT thread-safe. Every method, host call-ins included, must come from the
// host's thread.
type Session struct {
	img     *image.Image
	log     *slog.Logger
	opts    Options
	catalog *signature.Catalog
	ledger  *patch.Ledger
	hooks   *hook.Dispatcher

	features []*featureState
	byName   map[string]*featureState

	firstTick []func() error
	missing   []string
	usable    bool
	attached  bool
	detached  bool
}

// New creates a session over img. Nothing is scanned or written until Attach.
func New(img *image.Image, opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = logger.L
	}
	s := &Session{
		img:     img,
		log:     log.With("image", img.Name()),
		opts:    opts,
		catalog: signature.NewCatalog(img),
		ledger:  patch.NewLedger(img, opts.Tracker),
		hooks:   hook.NewDispatcher(),
		byName:  make(map[string]*featureState),
	}
	return s
}

// Image returns the host image.
func (s *Session) Image() *image.Image { return s.img }

// Catalog returns the signature catalog.
func (s *Session) Catalog() *signature.Catalog { return s.catalog }

// Ledger returns the patch ledger.
func (s *Session) Ledger() *patch.Ledger { return s.ledger }

// Hooks returns the hook dispatcher.
func (s *Session) Hooks() *hook.Dispatcher { return s.hooks }

// Logger returns the session's logger.
func (s *Session) Logger() *slog.Logger { return s.log }

// Tracker returns the dirty tracker from Options, or nil.
func (s *Session) Tracker() dirty.FlushableTracker { return s.opts.Tracker }

// Declare adds signature definitions. Call it before Attach.
func (s *Session) Declare(defs ...signature.Definition) {
	s.catalog.Declare(defs...)
}

// Attach resolves every declared signature, works out which registered
// features this build supports and arms the first-tick hook.
//
// If required signatures are missing (any signature, with Strict), Attach
// returns a *signature.MissingError naming all of them. The session stays
// attached so Detach still works, but no feature can be enabled.
func (s *Session) Attach() error {
	if s.detached {
		return ErrDetached
	}
	if s.attached {
		return ErrAttached
	}
	s.attached = true

	s.missing = s.catalog.ResolveAll()
	for _, name := range s.missing {
		s.log.Warn("signature not found", "name", name, "required", s.catalog.Get(name).Required())
	}

	fatal := s.catalog.MissingRequired()
	if s.opts.Strict {
		fatal = s.missing
	}
	s.usable = len(fatal) == 0

	for _, fs := range s.features {
		s.checkSupport(fs, false)
	}

	s.hooks.Once(hook.Tick, "first-tick", s.runFirstTick)

	s.log.Info("attached",
		"signatures", s.catalog.Len(),
		"missing", len(s.missing),
		"features", len(s.features))

	return signature.NewMissingError(fatal)
}

// Attached reports whether Attach ran and Detach has not.
func (s *Session) Attached() bool { return s.attached && !s.detached }

// Usable reports whether every required signature was found.
func (s *Session) Usable() bool { return s.usable }

// Missing returns the signatures Attach could not find.
func (s *Session) Missing() []string {
	out := make([]string, len(s.missing))
	copy(out, s.missing)
	return out
}

// OnFirstTick queues fn to run on the first Tick after Attach, in the order
// queued. Functions queued after that tick never run. A failing function
// does not stop the others; the first Tick returns all their errors joined.
func (s *Session) OnFirstTick(fn func() error) {
	s.firstTick = append(s.firstTick, fn)
}

func (s *Session) runFirstTick(*hook.Event) error {
	queued := s.firstTick
	s.firstTick = nil
	s.log.Debug("first tick", "queued", len(queued))
	var errs []error
	for _, fn := range queued {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Detach disables every enabled feature, newest first, removes all hooks
// and undoes every patch still applied. It runs at most once; later calls
// return nil. All failures are reported together.
func (s *Session) Detach() error {
	if s.detached {
		return nil
	}
	s.detached = true

	var errs []error
	for i := len(s.features) - 1; i >= 0; i-- {
		fs := s.features[i]
		if !fs.enabled {
			continue
		}
		if err := s.disable(fs); err != nil {
			errs = append(errs, err)
		}
	}

	s.hooks.Clear()
	s.firstTick = nil

	if err := s.ledger.UndoAll(); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if err != nil {
		s.log.Error("detach", "error", err)
	} else {
		s.log.Info("detached")
	}
	return err
}

// Tick is called by the host once per simulation tick.
func (s *Session) Tick() error {
	if s.detached {
		return nil
	}
	return s.hooks.Fire(&hook.Event{Trigger: hook.Tick})
}

// PreFrame is called by the host before it renders a frame.
func (s *Session) PreFrame() error {
	if s.detached {
		return nil
	}
	return s.hooks.Fire(&hook.Event{Trigger: hook.PreFrame})
}

// MapLoad is called by the host after it loads the named map.
func (s *Session) MapLoad(name string) error {
	if s.detached {
		return nil
	}
	return s.hooks.Fire(&hook.Event{Trigger: hook.MapLoad, Map: name})
}

// RconMessage is called by the host with the raw bytes of a console
// message. The host encodes text as Windows-1252; hooks see UTF-8. It
// reports whether the host should print the message.
func (s *Session) RconMessage(raw []byte) (allow bool, err error) {
	if s.detached {
		return true, nil
	}
	text, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return true, fmt.Errorf("session: decode rcon message: %w", err)
	}
	return s.hooks.FireMessage(string(text))
}
