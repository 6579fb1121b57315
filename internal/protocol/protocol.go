package protocol

import "context"

// ObjectID identifies a protocol object on a connection.
// The zero value is the null object.
type ObjectID uint32

// NullObject is the null object reference.
const NullObject ObjectID = 0

// IsNull reports whether id refers to no object.
func (id ObjectID) IsNull() bool {
	return id == NullObject
}

// Interface names advertised in the registry.
const (
	InterfacePresentation = "presentation"
	InterfaceCompositor   = "wl_compositor"
	InterfaceShm          = "wl_shm"
	InterfaceOutput       = "wl_output"
)

// Global is one registry entry: a named, versioned interface the server
// offers for binding.
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}

// Proxy is the client-side handle of a protocol object.
type Proxy interface {
	ID() ObjectID
}

// Registry exposes the server's advertised globals.
type Registry interface {
	// Globals returns the globals announced so far, in announcement order.
	Globals() []Global

	// Bind instantiates the global with the given registry name.
	// The returned proxy's concrete type depends on iface.
	Bind(name uint32, iface string, version uint32) (Proxy, error)
}

// Pump processes incoming traffic.
type Pump interface {
	// Dispatch blocks until at least one batch of events has been
	// delivered to listeners and returns the number of events dispatched.
	// An error is a connection-level failure or an error returned by a
	// listener.
	Dispatch(ctx context.Context) (int, error)
}

// Buffer is a client buffer that can be attached to a surface.
type Buffer interface {
	Proxy
	Width() int32
	Height() int32
}

// Surface is a rectangular area whose content is updated by commits.
type Surface interface {
	Proxy
	Attach(buf Buffer, x, y int32)
	Damage(x, y, width, height int32)
	Commit()
}

// Display is the full collaborator used by the observer harness.
type Display interface {
	Registry
	Pump

	// CreateSurface creates a new surface.
	CreateSurface() (Surface, error)

	// CreateBuffer allocates a buffer of the given size.
	CreateBuffer(width, height int32) (Buffer, error)

	// Roundtrip blocks until the server has processed every request sent
	// so far.
	Roundtrip(ctx context.Context) error
}
