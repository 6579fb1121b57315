// Package presentation implements the client side of the presentation
// feedback extension.
//
// A Feedback tracks one surface commit from the moment it is requested
// until the server reports the outcome. The outcome is terminal and arrives
// exactly once:
//
//	Pending ──presented──▶ Presented
//	   │
//	   └─────discarded───▶ Discarded
//
// Zero or more sync_output events may precede the terminal event. Any event
// that arrives after the terminal one is a protocol violation and is
// reported as a *ViolationError; the feedback state is left untouched.
//
// # Capability
//
// The "presentation" global must be advertised exactly once, at version 1.
// Binder performs that discovery once and hands the same Capability to
// every caller. Construct one Binder per connection and pass it to the code
// that creates feedback.
//
// # Waiting
//
// Wait pumps the connection until a feedback leaves Pending. The pump is
// connection-wide, so other feedback objects may reach their terminal state
// during the same wait.
//
// # Wire decoding
//
// The presented event splits 64-bit seconds and the 64-bit sequence counter
// into two 32-bit halves. Reconstruct64 joins them; Timestamp carries the
// result. The flags bitmask renders as a fixed four-character string, one
// position per Kind in table order ("s", "c", "e", "z"), '_' where unset.
package presentation
