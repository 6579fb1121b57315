// Package harness runs presentation feedback scenarios against a simulated
// compositor.
//
// A scenario is a YAML document checked against an embedded CUE schema,
// then decoded with unknown fields rejected:
//
//	name: presented_simple
//	description: "One commit on a visible surface is presented"
//	compositor:
//	  base_time: {sec: 100, nsec: 500000000}
//	  base_seq: 42
//	  outputs: [{name: out0, flags: [vsync, hw_clock]}]
//	surfaces: [{name: main, width: 100, height: 50, outputs: [out0]}]
//	steps:
//	  - commit: main
//	    feedback: fb1
//	  - wait: fb1
//	expect:
//	  - feedback: fb1
//	    result: presented
//	    flags: "sc__"
//	    seq: 42
//
// # Steps
//
//   - commit: attach the surface's buffer (unless attach is false), create
//     the named feedback if given, damage, commit and roundtrip
//   - wait: dispatch until one feedback is terminal
//   - wait_all: dispatch until every listed feedback is terminal
//   - destroy: release a feedback handle
//
// A protocol violation ends the run. It passes only if expect_error names
// the violation's code.
//
// # Deterministic Output
//
// Every run starts from a fresh compositor and a fresh trace clock
// (testutil.DeterministicClock), so the same scenario always produces the
// same trace. Snapshot encodes it as canonical JSON for golden comparison;
// the session ID only appears when the scenario fixes one.
package harness
