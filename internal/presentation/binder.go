package presentation

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/presfeed/internal/protocol"
)

// SupportedVersion is the only presentation global version this client
// speaks.
const SupportedVersion = 1

// Capability is the bound presentation global. It is read-only after
// binding and may be shared freely.
type Capability struct {
	global protocol.Global
	pres   protocol.Presentation
}

// Global returns the registry entry the capability was bound from.
func (c *Capability) Global() protocol.Global { return c.global }

// ID returns the object ID of the bound presentation proxy.
func (c *Capability) ID() protocol.ObjectID { return c.pres.ID() }

// Bind discovers and binds the presentation global.
//
// Exactly one registry entry named "presentation" must exist and it must
// be at SupportedVersion. Any other situation is a *ViolationError.
func Bind(reg protocol.Registry) (*Capability, error) {
	var found *protocol.Global
	globals := reg.Globals()
	for i := range globals {
		if globals[i].Interface != protocol.InterfacePresentation {
			continue
		}
		if found != nil {
			return nil, &ViolationError{
				Code:    ErrCodeCapabilityAmbiguous,
				Message: fmt.Sprintf("multiple %s globals advertised (names %d and %d)", protocol.InterfacePresentation, found.Name, globals[i].Name),
			}
		}
		found = &globals[i]
	}

	if found == nil {
		return nil, &ViolationError{
			Code:    ErrCodeCapabilityMissing,
			Message: fmt.Sprintf("no %s global advertised", protocol.InterfacePresentation),
		}
	}

	if found.Version != SupportedVersion {
		return nil, &ViolationError{
			Code:    ErrCodeVersionMismatch,
			Message: fmt.Sprintf("%s global has version %d, want %d", protocol.InterfacePresentation, found.Version, SupportedVersion),
		}
	}

	proxy, err := reg.Bind(found.Name, found.Interface, SupportedVersion)
	if err != nil {
		return nil, &ViolationError{
			Code:    ErrCodeBindFailed,
			Message: fmt.Sprintf("bind %s global %d", found.Interface, found.Name),
			Err:     err,
		}
	}
	pres, ok := proxy.(protocol.Presentation)
	if !ok {
		return nil, &ViolationError{
			Code:    ErrCodeBindFailed,
			Message: fmt.Sprintf("bound %s global is a %T", found.Interface, proxy),
		}
	}

	slog.Debug("presentation bound", "global", found.Name, "id", pres.ID())
	return &Capability{global: *found, pres: pres}, nil
}

// Binder binds the presentation capability at most once per connection and
// hands the same result to every caller, failures included.
//
// Thread-safety: Capability may be called from any goroutine.
type Binder struct {
	reg  protocol.Registry
	once sync.Once
	cap  *Capability
	err  error
}

// NewBinder creates a binder for the given registry. Nothing is bound
// until the first call to Capability.
func NewBinder(reg protocol.Registry) *Binder {
	return &Binder{reg: reg}
}

// Capability returns the bound capability, binding it on first use.
func (b *Binder) Capability() (*Capability, error) {
	b.once.Do(func() {
		b.cap, b.err = Bind(b.reg)
	})
	return b.cap, b.err
}

// NewFeedback binds the capability if needed and requests feedback for
// the next commit on surface.
func (b *Binder) NewFeedback(surface protocol.Surface) (*Feedback, error) {
	c, err := b.Capability()
	if err != nil {
		return nil, err
	}
	return c.NewFeedback(surface)
}
