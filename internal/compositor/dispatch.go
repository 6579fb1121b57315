package compositor

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/presfeed/internal/protocol"
)

var errInjectedFailure = errors.New("compositor: injected dispatch failure")

// Dispatch implements protocol.Pump.
//
// Queued events are delivered first. With an empty queue, one repaint
// cycle runs and its events are delivered. With nothing to repaint,
// ErrNoProgress is returned.
func (c *Compositor) Dispatch(ctx context.Context) (int, error) {
	c.mu.Lock()
	c.dispatches++
	fail := c.failAfter >= 0 && c.dispatches > c.failAfter
	failErr := c.failErr
	c.mu.Unlock()

	if fail {
		if failErr == nil {
			failErr = errInjectedFailure
		}
		return 0, failErr
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if c.queue.Closed() {
		return 0, ErrClosed
	}
	if c.queue.Len() == 0 && !c.repaint() {
		return 0, ErrNoProgress
	}
	return c.deliver(ctx)
}

// deliver hands every queued event to its listener. A listener error stops
// delivery; the remaining events stay queued.
func (c *Compositor) deliver(ctx context.Context) (int, error) {
	if c.queue.Closed() {
		return 0, ErrClosed
	}
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		ev, ok := c.queue.TryDequeue()
		if !ok {
			return n, nil
		}

		c.mu.Lock()
		dead := ev.target.destroyed
		c.mu.Unlock()
		if dead {
			c.logger.Debug("event for destroyed feedback dropped", "feedback", ev.target.id, "event", ev.kind)
			continue
		}

		var err error
		switch ev.kind {
		case eventSyncOutput:
			err = ev.target.listener.SyncOutput(ev.output)
		case eventPresented:
			err = ev.target.listener.Presented(ev.presented)
		case eventDiscarded:
			err = ev.target.listener.Discarded()
		}
		n++
		if err != nil {
			return n, fmt.Errorf("deliver %s to feedback %d: %w", ev.kind, ev.target.id, err)
		}
	}
}

// repaint runs one refresh cycle over every surface with latched feedback.
// Returns false, without ticking the clock, when nothing is latched.
func (c *Compositor) repaint() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	latched := false
	for _, s := range c.surfaces {
		if len(s.latched) > 0 {
			latched = true
			break
		}
	}
	if !latched {
		return false
	}

	index := c.cycles.Next() - 1
	sec, nsec := c.stamp(index)
	seq := c.baseSeq + index
	c.logger.Debug("repaint", "cycle", index, "seq", seq, "sec", sec, "nsec", nsec)

	for _, s := range c.surfaces {
		for _, fb := range s.latched {
			if s.attached == nil || len(s.outputs) == 0 {
				c.logger.Debug("commit not visible", "surface", s.id, "feedback", fb.id)
				c.emitTerminal(event{kind: eventDiscarded, target: fb})
				continue
			}
			if c.nullSyncOutput {
				c.queue.Enqueue(event{kind: eventSyncOutput, target: fb, output: protocol.NullObject})
			}
			for _, o := range s.outputs {
				c.queue.Enqueue(event{kind: eventSyncOutput, target: fb, output: o.id})
			}
			c.emitTerminal(event{
				kind:      eventPresented,
				target:    fb,
				presented: presentedEvent(sec, nsec, c.refreshNsec, seq, s.outputs[0].flags),
			})
		}
		s.latched = nil
	}
	return true
}

// stamp returns the presentation time of repaint cycle index.
func (c *Compositor) stamp(index uint64) (uint64, uint32) {
	total := uint64(c.baseNsec) + index*uint64(c.refreshNsec)
	return c.baseSec + total/1_000_000_000, uint32(total % 1_000_000_000)
}

// emitTerminal queues a presented or discarded event, twice when
// WithDuplicateTerminal is set. Callers hold c.mu.
func (c *Compositor) emitTerminal(ev event) {
	c.queue.Enqueue(ev)
	if c.duplicateTerminal {
		c.queue.Enqueue(ev)
	}
}

func presentedEvent(sec uint64, nsec, refresh uint32, seq uint64, flags uint32) protocol.PresentedEvent {
	return protocol.PresentedEvent{
		TvSecHi:     uint32(sec >> 32),
		TvSecLo:     uint32(sec),
		TvNsec:      nsec,
		RefreshNsec: refresh,
		SeqHi:       uint32(seq >> 32),
		SeqLo:       uint32(seq),
		Flags:       flags,
	}
}

// InjectSyncOutput queues a sync_output event for the feedback object id.
func (c *Compositor) InjectSyncOutput(id, out protocol.ObjectID) error {
	return c.inject(id, event{kind: eventSyncOutput, output: out})
}

// InjectPresented queues a presented event for the feedback object id.
func (c *Compositor) InjectPresented(id protocol.ObjectID, ev protocol.PresentedEvent) error {
	return c.inject(id, event{kind: eventPresented, presented: ev})
}

// InjectDiscarded queues a discarded event for the feedback object id.
func (c *Compositor) InjectDiscarded(id protocol.ObjectID) error {
	return c.inject(id, event{kind: eventDiscarded})
}

func (c *Compositor) inject(id protocol.ObjectID, ev event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fb, ok := c.feedback[id]
	if !ok {
		return fmt.Errorf("inject %s: unknown feedback %d", ev.kind, id)
	}
	ev.target = fb
	if !c.queue.Enqueue(ev) {
		return ErrClosed
	}
	return nil
}
