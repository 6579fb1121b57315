// Package protocol defines the display-connection surface the presentation
// observer consumes.
//
// The types here mirror what a Wayland-style client library hands out:
// a registry of named globals, proxies identified by object IDs, listener
// interfaces for incoming events, and a blocking dispatch call that pumps
// the connection. Transport framing and connection setup live behind these
// interfaces and are not part of this module.
//
// # Events
//
// The presentation feedback object receives three events:
//
//	sync_output(output: object or null)
//	presented(tv_sec_hi, tv_sec_lo, tv_nsec, refresh_nsec, seq_hi, seq_lo, flags: uint32)
//	discarded()
//
// Each event is delivered by calling the matching FeedbackListener method
// from inside Pump.Dispatch. A listener error aborts the dispatch and is
// returned to the caller unchanged.
package protocol
