package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/presfeed/internal/canon"
)

// snapshotMap converts a run into the map that is canonically encoded for
// golden files and trace digests. Pass/fail state is not part of it.
func snapshotMap(s *Scenario, r *Result) map[string]any {
	trace := make([]any, len(r.Trace))
	for i, ev := range r.Trace {
		m := map[string]any{
			"seq":  ev.Seq,
			"step": ev.Step,
			"op":   ev.Op,
		}
		if ev.Surface != "" {
			m["surface"] = ev.Surface
		}
		if ev.Feedback != "" {
			m["feedback"] = ev.Feedback
		}
		if ev.Detail != "" {
			m["detail"] = ev.Detail
		}
		trace[i] = m
	}

	feedback := make([]any, len(r.Feedback))
	for i, o := range r.Feedback {
		m := map[string]any{
			"name":               o.Name,
			"surface":            o.Surface,
			"result":             o.Result,
			"line":               o.Line,
			"sync_output_events": o.SyncOutputEvents,
		}
		if o.Result == OpPresented {
			m["flags"] = o.Flags
			m["seq"] = o.Seq
			m["timestamp"] = o.Timestamp
			m["refresh_nsec"] = o.RefreshNsec
		}
		if o.SyncOutput != "" {
			m["sync_output"] = o.SyncOutput
		}
		feedback[i] = m
	}

	snap := map[string]any{
		"scenario_name": s.Name,
		"trace":         trace,
		"feedback":      feedback,
	}
	if s.Session != "" {
		snap["session"] = s.Session
	}
	if r.ErrorCode != "" {
		snap["error_code"] = r.ErrorCode
	}
	return snap
}

// Snapshot returns the canonical JSON snapshot of a run. Two runs of the
// same scenario produce identical bytes.
func Snapshot(s *Scenario, r *Result) ([]byte, error) {
	return canon.Marshal(snapshotMap(s, r))
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenario, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return nil
}
