package protocol

// PresentedEvent carries the presented event arguments exactly as they
// appear on the wire. 64-bit values are split into high and low halves.
type PresentedEvent struct {
	TvSecHi     uint32
	TvSecLo     uint32
	TvNsec      uint32
	RefreshNsec uint32
	SeqHi       uint32
	SeqLo       uint32
	Flags       uint32
}

// FeedbackListener receives presentation feedback events.
type FeedbackListener interface {
	SyncOutput(output ObjectID) error
	Presented(ev PresentedEvent) error
	Discarded() error
}

// FeedbackProxy is the handle of one outstanding feedback object.
type FeedbackProxy interface {
	Proxy
	Destroy() error
}

// Presentation is the bound presentation global.
type Presentation interface {
	Proxy

	// Feedback requests presentation feedback for the next commit on
	// surface. Events are delivered to l during Dispatch.
	Feedback(surface Surface, l FeedbackListener) (FeedbackProxy, error)
}
