package compositor

import (
	"sync"

	"github.com/roach88/presfeed/internal/protocol"
)

type eventKind int

const (
	eventSyncOutput eventKind = iota + 1
	eventPresented
	eventDiscarded
)

func (k eventKind) String() string {
	switch k {
	case eventSyncOutput:
		return "sync_output"
	case eventPresented:
		return "presented"
	case eventDiscarded:
		return "discarded"
	}
	return "unknown"
}

// event is one queued server-to-client message.
type event struct {
	kind      eventKind
	target    *feedback
	output    protocol.ObjectID
	presented protocol.PresentedEvent
}

// eventQueue is a FIFO of outgoing events.
//
// Producers are the request handlers and repaint; the consumer is
// Dispatch. The mutex lets tests inject events from other goroutines.
type eventQueue struct {
	mu     sync.Mutex
	events []event
	closed bool
}

func newEventQueue() *eventQueue {
	return &eventQueue{events: make([]event, 0, 16)}
}

// Enqueue adds e to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, e)
	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return event{}, false
	}

	e := q.events[0]
	// Drop the feedback pointer so the backing array does not pin it.
	q.events[0] = event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Len returns the number of queued events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close rejects further events and drops the queued ones.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.events = nil
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
