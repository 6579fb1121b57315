package compositor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/presfeed/internal/protocol"
)

// DefaultRefreshNsec is a 60 Hz refresh interval.
const DefaultRefreshNsec = 16_666_667

var (
	// ErrNoProgress is returned by Dispatch when nothing is queued and no
	// commit is waiting for a repaint, so a real connection would block
	// forever.
	ErrNoProgress = errors.New("compositor: dispatch would block forever")

	// ErrClosed is returned by requests on a closed compositor.
	ErrClosed = errors.New("compositor: connection closed")
)

// Compositor is a simulated display server. See the package documentation
// for its presentation model.
type Compositor struct {
	mu sync.Mutex

	globals []protocol.Global
	nextID  protocol.ObjectID

	outputs  []*output
	surfaces []*surface
	feedback map[protocol.ObjectID]*feedback

	queue  *eventQueue
	cycles *Clock

	refreshNsec uint32
	baseSec     uint64
	baseNsec    uint32
	baseSeq     uint64

	duplicateTerminal bool
	nullSyncOutput    bool
	failAfter         int
	failErr           error
	dispatches        int

	logger *slog.Logger
}

type output struct {
	id     protocol.ObjectID
	name   string
	global uint32
	flags  uint32
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithRefresh sets the refresh interval reported with presented events.
// 0 means unknown or variable refresh; repaint times then do not advance.
func WithRefresh(nsec uint32) Option {
	return func(c *Compositor) {
		c.refreshNsec = nsec
	}
}

// WithBaseTime sets the timestamp of the first repaint.
func WithBaseTime(sec uint64, nsec uint32) Option {
	return func(c *Compositor) {
		c.baseSec = sec
		c.baseNsec = nsec
	}
}

// WithBaseSeq sets the refresh counter value of the first repaint.
func WithBaseSeq(seq uint64) Option {
	return func(c *Compositor) {
		c.baseSeq = seq
	}
}

// WithGlobals replaces the default globals (wl_compositor, wl_shm and
// presentation v1). Globals are named in order starting at 1. Output
// globals are still appended by AddOutput.
func WithGlobals(globals ...protocol.Global) Option {
	return func(c *Compositor) {
		c.globals = c.globals[:0]
		for _, g := range globals {
			c.addGlobal(g.Interface, g.Version)
		}
	}
}

// WithDuplicateTerminal makes the server send every terminal event twice.
func WithDuplicateTerminal() Option {
	return func(c *Compositor) {
		c.duplicateTerminal = true
	}
}

// WithNullSyncOutput makes the server precede the real sync_output events
// with a null one.
func WithNullSyncOutput() Option {
	return func(c *Compositor) {
		c.nullSyncOutput = true
	}
}

// WithDispatchFailure makes every Dispatch after the first n calls fail
// with err.
func WithDispatchFailure(n int, err error) Option {
	return func(c *Compositor) {
		c.failAfter = n
		c.failErr = err
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Compositor) {
		c.logger = l
	}
}

// New creates a compositor with the default globals and no outputs.
func New(opts ...Option) *Compositor {
	c := &Compositor{
		nextID:      2, // 1 is the display itself
		feedback:    make(map[protocol.ObjectID]*feedback),
		queue:       newEventQueue(),
		cycles:      NewClock(),
		refreshNsec: DefaultRefreshNsec,
		failAfter:   -1,
		logger:      slog.Default(),
	}
	c.addGlobal(protocol.InterfaceCompositor, 4)
	c.addGlobal(protocol.InterfaceShm, 1)
	c.addGlobal(protocol.InterfacePresentation, 1)

	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Compositor) addGlobal(iface string, version uint32) uint32 {
	name := uint32(len(c.globals) + 1)
	c.globals = append(c.globals, protocol.Global{Name: name, Interface: iface, Version: version})
	return name
}

func (c *Compositor) allocID() protocol.ObjectID {
	id := c.nextID
	c.nextID++
	return id
}

// AddOutput adds a display output with the given presentation flags and
// announces it as a wl_output global. Returns the output's object ID.
func (c *Compositor) AddOutput(name string, flags uint32) protocol.ObjectID {
	c.mu.Lock()
	defer c.mu.Unlock()

	o := &output{
		id:     c.allocID(),
		name:   name,
		global: c.addGlobal(protocol.InterfaceOutput, 2),
		flags:  flags,
	}
	c.outputs = append(c.outputs, o)
	c.logger.Debug("output added", "output", o.id, "name", name, "flags", flags)
	return o.id
}

// Output looks up an output's object ID by name.
func (c *Compositor) Output(name string) (protocol.ObjectID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, o := range c.outputs {
		if o.name == name {
			return o.id, true
		}
	}
	return protocol.NullObject, false
}

// OutputName returns the name of the output with the given ID.
func (c *Compositor) OutputName(id protocol.ObjectID) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o := c.findOutput(id); o != nil {
		return o.name, true
	}
	return "", false
}

func (c *Compositor) findOutput(id protocol.ObjectID) *output {
	for _, o := range c.outputs {
		if o.id == id {
			return o
		}
	}
	return nil
}

// MapSurface places a surface on the given outputs. The first output is
// the one presentation is synchronized to. Mapping on no outputs hides the
// surface, so its commits are discarded.
func (c *Compositor) MapSurface(s protocol.Surface, outputs ...protocol.ObjectID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	surf := c.findSurface(s.ID())
	if surf == nil {
		return fmt.Errorf("map surface: unknown surface %d", s.ID())
	}
	mapped := make([]*output, 0, len(outputs))
	for _, id := range outputs {
		o := c.findOutput(id)
		if o == nil {
			return fmt.Errorf("map surface %d: unknown output %d", s.ID(), id)
		}
		mapped = append(mapped, o)
	}
	surf.outputs = mapped
	return nil
}

func (c *Compositor) findSurface(id protocol.ObjectID) *surface {
	for _, s := range c.surfaces {
		if s.id == id {
			return s
		}
	}
	return nil
}

// Globals implements protocol.Registry.
func (c *Compositor) Globals() []protocol.Global {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Global, len(c.globals))
	copy(out, c.globals)
	return out
}

// Bind implements protocol.Registry.
func (c *Compositor) Bind(name uint32, iface string, version uint32) (protocol.Proxy, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queue.Closed() {
		return nil, ErrClosed
	}

	var g *protocol.Global
	for i := range c.globals {
		if c.globals[i].Name == name {
			g = &c.globals[i]
			break
		}
	}
	if g == nil {
		return nil, fmt.Errorf("bind: no global named %d", name)
	}
	if g.Interface != iface {
		return nil, fmt.Errorf("bind: global %d is %s, not %s", name, g.Interface, iface)
	}
	if version == 0 || version > g.Version {
		return nil, fmt.Errorf("bind: %s version %d not supported (max %d)", iface, version, g.Version)
	}

	id := c.allocID()
	c.logger.Debug("global bound", "name", name, "interface", iface, "id", id)
	if iface == protocol.InterfacePresentation {
		return &presentation{id: id, c: c}, nil
	}
	return proxy(id), nil
}

// CreateSurface implements protocol.Display.
func (c *Compositor) CreateSurface() (protocol.Surface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queue.Closed() {
		return nil, ErrClosed
	}
	s := &surface{id: c.allocID(), c: c}
	c.surfaces = append(c.surfaces, s)
	return s, nil
}

// CreateBuffer implements protocol.Display.
func (c *Compositor) CreateBuffer(width, height int32) (protocol.Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("create buffer: invalid size %dx%d", width, height)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queue.Closed() {
		return nil, ErrClosed
	}
	return &buffer{id: c.allocID(), width: width, height: height}, nil
}

// Roundtrip implements protocol.Display. Requests are handled as they are
// made, so a roundtrip only flushes events that are already queued.
func (c *Compositor) Roundtrip(ctx context.Context) error {
	_, err := c.deliver(ctx)
	return err
}

// Close shuts the connection down. Queued events are dropped and later
// requests fail with ErrClosed.
func (c *Compositor) Close() {
	c.queue.Close()
}

// Repaints returns the number of repaint cycles run so far.
func (c *Compositor) Repaints() uint64 {
	return c.cycles.Current()
}

// Pending returns the number of queued, undelivered events.
func (c *Compositor) Pending() int {
	return c.queue.Len()
}
