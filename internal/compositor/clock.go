package compositor

import "sync/atomic"

// Clock counts repaint cycles.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// though the compositor only advances it from Dispatch.
type Clock struct {
	n atomic.Uint64
}

// NewClock creates a clock that has not ticked yet.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that has already ticked start times.
func NewClockAt(start uint64) *Clock {
	c := &Clock{}
	c.n.Store(start)
	return c
}

// Next ticks the clock and returns the new count. The first call returns 1.
func (c *Clock) Next() uint64 {
	return c.n.Add(1)
}

// Current returns the number of ticks so far.
func (c *Clock) Current() uint64 {
	return c.n.Load()
}
