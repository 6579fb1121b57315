package compositor

import (
	"fmt"
	"slices"

	"github.com/roach88/presfeed/internal/protocol"
)

// proxy is a bound global with no requests of interest.
type proxy protocol.ObjectID

func (p proxy) ID() protocol.ObjectID { return protocol.ObjectID(p) }

type buffer struct {
	id     protocol.ObjectID
	width  int32
	height int32
}

func (b *buffer) ID() protocol.ObjectID { return b.id }
func (b *buffer) Width() int32          { return b.width }
func (b *buffer) Height() int32         { return b.height }

type surface struct {
	id       protocol.ObjectID
	c        *Compositor
	attached protocol.Buffer
	damaged  bool
	outputs  []*output
	commits  int

	// pending feedback waits for the next commit; latched feedback waits
	// for the next repaint.
	pending []*feedback
	latched []*feedback
}

func (s *surface) ID() protocol.ObjectID { return s.id }

func (s *surface) Attach(buf protocol.Buffer, x, y int32) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.attached = buf
}

func (s *surface) Damage(x, y, width, height int32) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.damaged = true
}

// Commit latches the surface state. Feedback still latched from an earlier
// commit is superseded and discarded.
func (s *surface) Commit() {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	s.commits++
	for _, fb := range s.latched {
		s.c.logger.Debug("commit superseded", "surface", s.id, "feedback", fb.id)
		s.c.emitTerminal(event{kind: eventDiscarded, target: fb})
	}
	s.latched = s.pending
	s.pending = nil
	s.damaged = false
}

func (s *surface) remove(fb *feedback) {
	s.pending = slices.DeleteFunc(s.pending, func(f *feedback) bool { return f == fb })
	s.latched = slices.DeleteFunc(s.latched, func(f *feedback) bool { return f == fb })
}

// presentation is the bound presentation global.
type presentation struct {
	id protocol.ObjectID
	c  *Compositor
}

func (p *presentation) ID() protocol.ObjectID { return p.id }

// Feedback implements protocol.Presentation.
func (p *presentation) Feedback(s protocol.Surface, l protocol.FeedbackListener) (protocol.FeedbackProxy, error) {
	if l == nil {
		return nil, fmt.Errorf("feedback: nil listener")
	}
	c := p.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queue.Closed() {
		return nil, ErrClosed
	}
	surf := c.findSurface(s.ID())
	if surf == nil {
		return nil, fmt.Errorf("feedback: unknown surface %d", s.ID())
	}
	fb := &feedback{id: c.allocID(), c: c, surface: surf, listener: l}
	surf.pending = append(surf.pending, fb)
	c.feedback[fb.id] = fb
	return fb, nil
}

// feedback is the server side of one presentation feedback object.
type feedback struct {
	id        protocol.ObjectID
	c         *Compositor
	surface   *surface
	listener  protocol.FeedbackListener
	destroyed bool
}

func (f *feedback) ID() protocol.ObjectID { return f.id }

// Destroy implements protocol.FeedbackProxy. Events already queued for the
// object are dropped on delivery.
func (f *feedback) Destroy() error {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	if f.destroyed {
		return fmt.Errorf("feedback %d: already destroyed", f.id)
	}
	f.destroyed = true
	f.surface.remove(f)
	delete(f.c.feedback, f.id)
	return nil
}
