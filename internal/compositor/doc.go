// Package compositor is an in-process, deterministic display server that
// speaks the presentation extension.
//
// It implements protocol.Display so the observer can be exercised without
// a real connection. The model is deliberately small:
//
//   - Globals are announced at construction; outputs add a wl_output global.
//   - A feedback object attaches to the next commit on its surface.
//   - A commit latches until the next repaint. A second commit before the
//     repaint supersedes the first and its feedback is discarded.
//   - A repaint happens when Dispatch finds the event queue empty. Each
//     repaint advances the refresh counter by one and stamps the time
//     base + n*refresh.
//   - A latched commit on a surface with a buffer and at least one output
//     is presented: one sync_output per output, then presented with the
//     first output's flags. Otherwise it is discarded.
//
// # Single writer
//
// All events are delivered from Dispatch on the caller's goroutine, in
// FIFO order. If the queue is empty and nothing is latched, Dispatch
// returns ErrNoProgress instead of blocking forever.
//
// # Fault injection
//
// WithDuplicateTerminal, WithDispatchFailure and the Inject* methods make
// the server misbehave so callers can verify they refuse to absorb it.
package compositor
