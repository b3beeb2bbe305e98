package session

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/joshuapare/hookkit/patch"
)

var (
	// ErrUnknownFeature indicates a feature name that was never registered.
	ErrUnknownFeature = errors.New("session: unknown feature")

	// ErrUnsupported indicates a feature whose signatures are missing on
	// this host build.
	ErrUnsupported = errors.New("session: feature not supported by this build")

	// ErrFeatureDuplicate indicates two features with one name. Register
	// panics with an error wrapping it.
	ErrFeatureDuplicate = errors.New("session: feature registered twice")
)

// Feature is a toggleable modification of the host. A feature patches and
// hooks through the session, using its own name as the patch owner, so the
// session can undo whatever it left behind.
type Feature interface {
	// Name identifies the feature and owns its patches.
	Name() string

	// Signatures lists the signatures the feature needs.
	Signatures() []string

	// Enable applies the feature's patches and registers its hooks.
	Enable(s *Session) error

	// Disable removes the feature's hooks. Its patches are undone by the
	// session afterwards.
	Disable(s *Session) error
}

// FeatureStatus describes one registered feature.
type FeatureStatus struct {
	Name      string `json:"name"`
	Supported bool   `json:"supported"`
	Enabled   bool   `json:"enabled"`
}

type featureState struct {
	f         Feature
	supported bool
	enabled   bool
}

// Register adds a feature. Before Attach its support is decided at Attach;
// after Attach its signatures are resolved now. It panics with an error
// wrapping ErrFeatureDuplicate if the name is taken, and on undeclared
// signature names like signature.Catalog.Get.
func (s *Session) Register(f Feature) {
	name := f.Name()
	if _, ok := s.byName[name]; ok {
		panic(fmt.Errorf("%w: %s", ErrFeatureDuplicate, name))
	}
	fs := &featureState{f: f}
	s.features = append(s.features, fs)
	s.byName[name] = fs

	if s.attached {
		s.checkSupport(fs, true)
	}
}

// checkSupport decides whether fs can be enabled. With rescan, unresolved
// signatures are scanned for again; Attach passes false since it has just
// scanned for all of them.
func (s *Session) checkSupport(fs *featureState, rescan bool) {
	var missing []string
	if rescan {
		missing = s.catalog.Resolve(fs.f.Signatures()...)
	} else {
		missing = s.catalog.Unresolved(fs.f.Signatures()...)
	}
	fs.supported = s.usable && len(missing) == 0
	if len(missing) > 0 {
		s.log.Info("feature unsupported", "feature", fs.f.Name(), "missing", missing)
	}
}

// Supported reports whether the named feature can be enabled on this build.
func (s *Session) Supported(name string) bool {
	fs, ok := s.byName[name]
	return ok && fs.supported
}

// Enabled reports whether the named feature is enabled.
func (s *Session) Enabled(name string) bool {
	fs, ok := s.byName[name]
	return ok && fs.enabled
}

// Features returns the status of every registered feature in registration
// order.
func (s *Session) Features() []FeatureStatus {
	out := make([]FeatureStatus, 0, len(s.features))
	for _, fs := range s.features {
		out = append(out, FeatureStatus{
			Name:      fs.f.Name(),
			Supported: fs.supported,
			Enabled:   fs.enabled,
		})
	}
	return out
}

// Enable turns the named feature on. Enabling an enabled feature is a
// no-op. If the feature fails part way, its Disable runs to drop whatever
// hooks it registered and the patches it made are undone, so a later
// Enable starts clean.
func (s *Session) Enable(name string) error {
	fs, err := s.lookup(name)
	if err != nil {
		return err
	}
	if fs.enabled {
		return nil
	}
	if !fs.supported {
		return fmt.Errorf("%w: %s", ErrUnsupported, name)
	}

	if err := fs.f.Enable(s); err != nil {
		errs := []error{err}
		if derr := fs.f.Disable(s); derr != nil {
			errs = append(errs, derr)
		}
		if uerr := s.ledger.UndoOwner(name); uerr != nil {
			errs = append(errs, uerr)
		}
		return fmt.Errorf("session: enable %s: %w", name, errors.Join(errs...))
	}
	fs.enabled = true
	s.log.Debug("feature enabled", "feature", name)
	return nil
}

// Disable turns the named feature off and undoes its patches.
func (s *Session) Disable(name string) error {
	fs, err := s.lookup(name)
	if err != nil {
		return err
	}
	if !fs.enabled {
		return nil
	}
	return s.disable(fs)
}

func (s *Session) disable(fs *featureState) error {
	name := fs.f.Name()
	fs.enabled = false

	var errs []error
	if err := fs.f.Disable(s); err != nil {
		errs = append(errs, err)
	}
	if err := s.ledger.UndoOwner(name); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("session: disable %s: %w", name, err)
	}
	s.log.Debug("feature disabled", "feature", name)
	return nil
}

func (s *Session) lookup(name string) (*featureState, error) {
	if s.detached {
		return nil, ErrDetached
	}
	if !s.attached {
		return nil, ErrNotAttached
	}
	fs, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, name)
	}
	return fs, nil
}

// PatchSignature writes b at the address of the named signature plus off,
// owned by owner.
func (s *Session) PatchSignature(owner, sig string, off int, b []byte) (patch.Handle, error) {
	addr := s.catalog.Get(sig).MustAddress()
	return s.ledger.Write(uint64(int64(addr)+int64(off)), b, owner)
}

// NopSignature overwrites the whole declared size of the named signature
// with NOP instructions.
func (s *Session) NopSignature(owner, sig string) (patch.Handle, error) {
	sg := s.catalog.Get(sig)
	return s.ledger.Write(sg.MustAddress(), bytes.Repeat([]byte{nop}, sg.Size()), owner)
}

const nop = 0x90
