package presentation

import (
	"fmt"
	"log/slog"

	"github.com/roach88/presfeed/internal/protocol"
)

// Event names as they appear in the protocol.
const (
	EventSyncOutput = "sync_output"
	EventPresented  = "presented"
	EventDiscarded  = "discarded"
)

// Result is the state of a feedback request.
type Result int

const (
	// Pending means no terminal event has arrived yet.
	Pending Result = iota
	// Presented means the commit reached the screen.
	Presented
	// Discarded means the commit was never shown.
	Discarded
)

// String implements fmt.Stringer.
func (r Result) String() string {
	switch r {
	case Pending:
		return "pending"
	case Presented:
		return "presented"
	case Discarded:
		return "discarded"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Terminal reports whether r is Presented or Discarded.
func (r Result) Terminal() bool {
	return r == Presented || r == Discarded
}

// ParseResult parses the String form of a Result.
func ParseResult(s string) (Result, error) {
	switch s {
	case "pending":
		return Pending, nil
	case "presented":
		return Presented, nil
	case "discarded":
		return Discarded, nil
	}
	return 0, fmt.Errorf("unknown feedback result %q", s)
}

// Feedback observes the outcome of one surface commit.
//
// Feedback implements protocol.FeedbackListener. Its state only changes
// from inside the collaborator's Dispatch; callers read it after Wait
// returns.
type Feedback struct {
	handle   protocol.FeedbackProxy
	surface  protocol.ObjectID
	released bool

	result     Result
	syncOutput protocol.ObjectID
	syncEvents int
	seq        uint64
	time       Timestamp
	refresh    uint32
	flags      Kind
}

// NewFeedback requests feedback for the next commit on surface.
func (c *Capability) NewFeedback(surface protocol.Surface) (*Feedback, error) {
	fb := &Feedback{surface: surface.ID()}
	h, err := c.pres.Feedback(surface, fb)
	if err != nil {
		return nil, fmt.Errorf("create feedback for surface %d: %w", surface.ID(), err)
	}
	fb.handle = h
	slog.Debug("feedback requested", "feedback", h.ID(), "surface", surface.ID())
	return fb, nil
}

// ID returns the protocol object ID of the feedback handle.
func (fb *Feedback) ID() protocol.ObjectID {
	if fb.handle == nil {
		return protocol.NullObject
	}
	return fb.handle.ID()
}

// Surface returns the surface this feedback was requested for.
func (fb *Feedback) Surface() protocol.ObjectID { return fb.surface }

// Result returns the current state.
func (fb *Feedback) Result() Result { return fb.result }

// Pending reports whether no terminal event has arrived.
func (fb *Feedback) Pending() bool { return fb.result == Pending }

// SyncOutputID returns the last non-null output reported by sync_output,
// or protocol.NullObject.
func (fb *Feedback) SyncOutputID() protocol.ObjectID { return fb.syncOutput }

// SyncOutputEvents returns how many sync_output events were received,
// null ones included.
func (fb *Feedback) SyncOutputEvents() int { return fb.syncEvents }

// Sequence returns the presentation sequence counter. Zero unless Presented.
func (fb *Feedback) Sequence() uint64 { return fb.seq }

// Timestamp returns the presentation time. Zero unless Presented.
func (fb *Feedback) Timestamp() Timestamp { return fb.time }

// RefreshNsec returns the refresh interval in nanoseconds at presentation
// time. 0 means unknown or variable. Zero unless Presented.
func (fb *Feedback) RefreshNsec() uint32 { return fb.refresh }

// Flags returns the delivery mechanism bitmask. Zero unless Presented.
func (fb *Feedback) Flags() Kind { return fb.flags }

// Released reports whether Destroy has been called.
func (fb *Feedback) Released() bool { return fb.released }

// SyncOutput records the output the presentation was synchronized to.
// A null output is counted but does not clear an earlier value.
func (fb *Feedback) SyncOutput(output protocol.ObjectID) error {
	if err := fb.checkPending(EventSyncOutput); err != nil {
		return err
	}
	fb.syncEvents++
	if !output.IsNull() {
		fb.syncOutput = output
	}
	return nil
}

// Presented records the presentation outcome and moves to Presented.
func (fb *Feedback) Presented(ev protocol.PresentedEvent) error {
	if err := fb.checkPending(EventPresented); err != nil {
		return err
	}
	fb.result = Presented
	fb.seq = Reconstruct64(ev.SeqHi, ev.SeqLo)
	fb.time = TimestampFromProto(ev.TvSecHi, ev.TvSecLo, ev.TvNsec)
	fb.refresh = ev.RefreshNsec
	fb.flags = Kind(ev.Flags)
	if !fb.time.Canonical() {
		slog.Warn("non-canonical presentation timestamp", "feedback", fb.ID(), "nsec", ev.TvNsec)
	}
	return nil
}

// Discarded moves to Discarded.
func (fb *Feedback) Discarded() error {
	if err := fb.checkPending(EventDiscarded); err != nil {
		return err
	}
	fb.result = Discarded
	return nil
}

func (fb *Feedback) checkPending(event string) error {
	if fb.released {
		return newReleasedViolation(fb, event)
	}
	if fb.result != Pending {
		return newTerminalViolation(fb, event)
	}
	return nil
}

// Destroy releases the protocol handle. It is safe in any state; calling
// it while Pending abandons the request. Later calls do nothing.
func (fb *Feedback) Destroy() error {
	if fb.released {
		return nil
	}
	fb.released = true
	if fb.result == Pending {
		slog.Warn("feedback destroyed while pending", "feedback", fb.ID(), "surface", fb.surface)
	}
	if fb.handle == nil {
		return nil
	}
	if err := fb.handle.Destroy(); err != nil {
		return fmt.Errorf("destroy feedback %d: %w", fb.ID(), err)
	}
	return nil
}

// String renders the outcome as one line, e.g.
//
//	presented 100.500000000, refresh 16666 us, [sc__] seq 42
func (fb *Feedback) String() string {
	switch fb.result {
	case Pending:
		return "pending"
	case Discarded:
		return "discarded"
	}
	return fmt.Sprintf("presented %s, refresh %d us, [%s] seq %d",
		fb.time, fb.refresh/1000, fb.flags.Symbols(), fb.seq)
}
