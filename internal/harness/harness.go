package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/presfeed/internal/canon"
	"github.com/roach88/presfeed/internal/compositor"
	"github.com/roach88/presfeed/internal/metrics"
	"github.com/roach88/presfeed/internal/presentation"
	"github.com/roach88/presfeed/internal/protocol"
	"github.com/roach88/presfeed/internal/store"
	"github.com/roach88/presfeed/internal/testutil"
)

// SessionIDGenerator produces IDs for recorded sessions.
type SessionIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session IDs.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

type config struct {
	logger   *slog.Logger
	store    *store.Store
	sessions SessionIDGenerator
	metrics  *metrics.Recorder
}

// Option configures Run.
type Option func(*config)

// WithLogger sets the logger. Defaults to a logger that discards output.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithStore records the session and its feedback outcomes to st.
func WithStore(st *store.Store) Option {
	return func(c *config) {
		c.store = st
	}
}

// WithSessionIDs sets the session ID generator used when the scenario
// does not fix one. Defaults to UUIDv7Generator.
func WithSessionIDs(g SessionIDGenerator) Option {
	return func(c *config) {
		c.sessions = g
	}
}

// WithMetrics counts dispatches and outcomes in rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(c *config) {
		c.metrics = rec
	}
}

type surfaceState struct {
	config  SurfaceConfig
	surface protocol.Surface
	buffer  protocol.Buffer
}

type feedbackState struct {
	name     string
	surface  string
	ordinal  int64
	fb       *presentation.Feedback
	reported presentation.Result
}

// runner executes one scenario against a fresh compositor.
type runner struct {
	scenario *Scenario
	cfg      config
	logger   *slog.Logger

	comp   *compositor.Compositor
	pump   protocol.Pump
	binder *presentation.Binder
	clock  *testutil.DeterministicClock

	surfaces map[string]*surfaceState
	feedback map[string]*feedbackState
	order    []*feedbackState

	result *Result
}

// Run executes a scenario and returns the result.
//
// Each run gets its own simulated compositor. Protocol errors end the
// run and are compared against the scenario's expect_error; they are not
// returned as errors. The returned error reports harness failures such as
// an unwritable store.
//
// Execution flow:
//  1. Create outputs and surfaces; attach a buffer to each surface
//  2. Bind the presentation capability
//  3. Execute steps, tracing every feedback state change
//  4. Check the final error and the expectations
//  5. Destroy remaining feedback, then record to the store if configured
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	cfg := config{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		sessions: UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &runner{
		scenario: s,
		cfg:      cfg,
		logger:   cfg.logger.With("scenario", s.Name),
		clock:    testutil.NewDeterministicClock(),
		surfaces: make(map[string]*surfaceState),
		feedback: make(map[string]*feedbackState),
		result:   NewResult(),
	}
	r.result.SessionID = s.Session
	if r.result.SessionID == "" {
		r.result.SessionID = cfg.sessions.Generate()
	}

	if err := r.setup(); err != nil {
		return nil, fmt.Errorf("scenario %s: setup: %w", s.Name, err)
	}

	runErr := r.execute(ctx)
	r.result.Feedback = r.outcomes()
	r.checkError(runErr)
	r.checkExpectations()
	r.release()

	digest, err := canon.Digest(canon.DomainTrace, snapshotMap(s, r.result))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: digest trace: %w", s.Name, err)
	}
	r.result.TraceDigest = digest

	if cfg.metrics != nil {
		for _, fs := range r.order {
			cfg.metrics.ObserveFeedback(fs.fb)
		}
		cfg.metrics.ObserveError(runErr)
	}
	if cfg.store != nil {
		if err := r.record(ctx); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
	}

	r.logger.Info("scenario finished",
		"pass", r.result.Pass,
		"session", r.result.SessionID,
		"feedback", len(r.order),
		"error_code", r.result.ErrorCode,
	)
	return r.result, nil
}

// setup builds the compositor, its outputs and the client's surfaces.
func (r *runner) setup() error {
	cc := r.scenario.Compositor
	opts := append(cc.options(), compositor.WithLogger(r.logger))
	r.comp = compositor.New(opts...)

	r.pump = r.comp
	if r.cfg.metrics != nil {
		r.pump = r.cfg.metrics.Pump(r.comp)
	}

	for _, o := range cc.Outputs {
		flags, err := presentation.ParseKind(o.Flags)
		if err != nil {
			return fmt.Errorf("output %s: %w", o.Name, err)
		}
		r.comp.AddOutput(o.Name, uint32(flags))
	}

	for _, sc := range r.scenario.Surfaces {
		surf, err := r.comp.CreateSurface()
		if err != nil {
			return fmt.Errorf("surface %s: %w", sc.Name, err)
		}
		buf, err := r.comp.CreateBuffer(sc.Width, sc.Height)
		if err != nil {
			return fmt.Errorf("surface %s: %w", sc.Name, err)
		}

		outs := make([]protocol.ObjectID, 0, len(sc.Outputs))
		for _, name := range sc.Outputs {
			id, ok := r.comp.Output(name)
			if !ok {
				return fmt.Errorf("surface %s: unknown output %s", sc.Name, name)
			}
			outs = append(outs, id)
		}
		if err := r.comp.MapSurface(surf, outs...); err != nil {
			return fmt.Errorf("surface %s: %w", sc.Name, err)
		}
		r.surfaces[sc.Name] = &surfaceState{config: sc, surface: surf, buffer: buf}
	}
	return nil
}

// execute binds the capability and runs the steps. Returns the first
// error, after tracing it.
func (r *runner) execute(ctx context.Context) error {
	r.binder = presentation.NewBinder(r.comp)
	c, err := r.binder.Capability()
	if err != nil {
		r.traceError(0, err)
		return err
	}
	g := c.Global()
	r.trace(TraceEvent{Step: 0, Op: OpBind, Detail: fmt.Sprintf("%s v%d", g.Interface, g.Version)})

	for i, step := range r.scenario.Steps {
		n := i + 1
		if err := r.step(ctx, n, step); err != nil {
			r.traceTransitions(n)
			r.traceError(n, err)
			return err
		}
		r.traceTransitions(n)
	}
	return nil
}

func (r *runner) step(ctx context.Context, n int, step Step) error {
	switch step.Kind() {
	case StepCommit:
		return r.commit(ctx, n, step)

	case StepWait:
		fs, err := r.lookup(step.Wait)
		if err != nil {
			return err
		}
		r.trace(TraceEvent{Step: n, Op: OpWait, Surface: fs.surface, Feedback: fs.name})
		return presentation.Wait(ctx, r.pump, fs.fb)

	case StepWaitAll:
		fbs := make([]*presentation.Feedback, 0, len(step.WaitAll))
		for _, name := range step.WaitAll {
			fs, err := r.lookup(name)
			if err != nil {
				return err
			}
			fbs = append(fbs, fs.fb)
		}
		r.trace(TraceEvent{Step: n, Op: OpWaitAll, Detail: strings.Join(step.WaitAll, ",")})
		return presentation.WaitAll(ctx, r.pump, fbs...)

	case StepDestroy:
		fs, err := r.lookup(step.Destroy)
		if err != nil {
			return err
		}
		r.trace(TraceEvent{Step: n, Op: OpDestroy, Surface: fs.surface, Feedback: fs.name})
		return fs.fb.Destroy()
	}
	return fmt.Errorf("step %d: no action", n)
}

// commit reproduces a client frame: attach, request feedback, damage,
// commit, roundtrip.
func (r *runner) commit(ctx context.Context, n int, step Step) error {
	ss, ok := r.surfaces[step.Commit]
	if !ok {
		return fmt.Errorf("step %d: unknown surface %s", n, step.Commit)
	}

	if step.Attach == nil || *step.Attach {
		ss.surface.Attach(ss.buffer, 0, 0)
	} else {
		ss.surface.Attach(nil, 0, 0)
	}

	if step.Feedback != "" {
		fb, err := r.binder.NewFeedback(ss.surface)
		if err != nil {
			return err
		}
		fs := &feedbackState{
			name:    step.Feedback,
			surface: step.Commit,
			ordinal: int64(len(r.order)),
			fb:      fb,
		}
		r.feedback[fs.name] = fs
		r.order = append(r.order, fs)
	}

	ss.surface.Damage(0, 0, ss.config.Width, ss.config.Height)
	ss.surface.Commit()
	r.trace(TraceEvent{Step: n, Op: OpCommit, Surface: step.Commit, Feedback: step.Feedback})

	return r.comp.Roundtrip(ctx)
}

func (r *runner) lookup(name string) (*feedbackState, error) {
	fs, ok := r.feedback[name]
	if !ok {
		return nil, fmt.Errorf("unknown feedback %s", name)
	}
	return fs, nil
}

func (r *runner) trace(ev TraceEvent) {
	ev.Seq = r.clock.Next()
	r.result.Trace = append(r.result.Trace, ev)
	r.logger.Debug("trace", "seq", ev.Seq, "step", ev.Step, "op", ev.Op, "feedback", ev.Feedback)
}

// traceTransitions records every feedback that left its last reported
// state, in creation order.
func (r *runner) traceTransitions(n int) {
	for _, fs := range r.order {
		res := fs.fb.Result()
		if res == fs.reported {
			continue
		}
		fs.reported = res
		r.trace(TraceEvent{Step: n, Op: res.String(), Surface: fs.surface, Feedback: fs.name, Detail: fs.fb.String()})
	}
}

func (r *runner) traceError(n int, err error) {
	detail := errorName(err)
	if detail == "" {
		detail = "failure"
	}
	r.trace(TraceEvent{Step: n, Op: OpError, Detail: detail})
	r.logger.Debug("run ended with error", "step", n, "error", err)
}

// errorName returns the lower-case violation code of err, or "".
func errorName(err error) string {
	return strings.ToLower(string(presentation.ViolationCodeOf(err)))
}

func (r *runner) outcomes() []Outcome {
	out := make([]Outcome, 0, len(r.order))
	for _, fs := range r.order {
		fb := fs.fb
		o := Outcome{
			Name:             fs.name,
			Surface:          fs.surface,
			Ordinal:          fs.ordinal,
			Result:           fb.Result().String(),
			Line:             fb.String(),
			SyncOutputEvents: fb.SyncOutputEvents(),
		}
		if fb.Result() == presentation.Presented {
			o.Flags = fb.Flags().Symbols()
			o.Seq = fb.Sequence()
			o.Timestamp = fb.Timestamp().String()
			o.RefreshNsec = fb.RefreshNsec()
		}
		if id := fb.SyncOutputID(); !id.IsNull() {
			o.SyncOutput, _ = r.comp.OutputName(id)
		}
		out = append(out, o)
	}
	return out
}

func (r *runner) checkError(err error) {
	r.result.ErrorCode = errorName(err)
	want := r.scenario.ExpectError

	switch {
	case err == nil && want == "":
	case err == nil:
		r.result.AddError(fmt.Sprintf("expected error %s, run completed without error", want))
	case want == "":
		r.result.AddError(fmt.Sprintf("unexpected error: %v", err))
	case expectedCode(want) != presentation.ViolationCodeOf(err):
		r.result.AddError(fmt.Sprintf("expected error %s, got: %v", want, err))
	}
}

func (r *runner) checkExpectations() {
	for _, e := range r.scenario.Expect {
		o, ok := r.result.Outcome(e.Feedback)
		if !ok {
			r.result.AddError(fmt.Sprintf("%s: feedback was never created", e.Feedback))
			continue
		}
		for _, msg := range compareOutcome(e, o) {
			r.result.AddError(fmt.Sprintf("%s: %s", e.Feedback, msg))
		}
	}
}

// compareOutcome returns one message per mismatched field.
func compareOutcome(e Expectation, o Outcome) []string {
	var msgs []string
	if e.Result != o.Result {
		msgs = append(msgs, fmt.Sprintf("result = %s, expected %s", o.Result, e.Result))
	}
	if e.Flags != "" && e.Flags != o.Flags {
		msgs = append(msgs, fmt.Sprintf("flags = %q, expected %q", o.Flags, e.Flags))
	}
	if e.Seq != nil && *e.Seq != o.Seq {
		msgs = append(msgs, fmt.Sprintf("seq = %d, expected %d", o.Seq, *e.Seq))
	}
	if e.Timestamp != "" && e.Timestamp != o.Timestamp {
		msgs = append(msgs, fmt.Sprintf("timestamp = %s, expected %s", o.Timestamp, e.Timestamp))
	}
	if e.RefreshNsec != nil && *e.RefreshNsec != o.RefreshNsec {
		msgs = append(msgs, fmt.Sprintf("refresh_nsec = %d, expected %d", o.RefreshNsec, *e.RefreshNsec))
	}
	if e.SyncOutput != nil && *e.SyncOutput != o.SyncOutput {
		msgs = append(msgs, fmt.Sprintf("sync_output = %q, expected %q", o.SyncOutput, *e.SyncOutput))
	}
	return msgs
}

// release destroys every feedback the steps left alive.
func (r *runner) release() {
	for _, fs := range r.order {
		if fs.fb.Released() {
			continue
		}
		if err := fs.fb.Destroy(); err != nil {
			r.logger.Warn("destroy feedback", "feedback", fs.name, "error", err)
		}
	}
}

// record writes the session and one record per feedback.
func (r *runner) record(ctx context.Context) error {
	st := r.cfg.store
	if _, err := st.WriteSession(ctx, r.result.SessionID, r.scenario.Name); err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	for i, o := range r.result.Feedback {
		fb := r.order[i].fb
		ts := fb.Timestamp()
		rec := store.Record{
			SessionID:      r.result.SessionID,
			Name:           o.Name,
			Surface:        uint32(fb.Surface()),
			Ordinal:        o.Ordinal,
			Result:         o.Result,
			SyncOutput:     uint32(fb.SyncOutputID()),
			SyncOutputName: o.SyncOutput,
			TvSec:          ts.Sec,
			TvNsec:         ts.Nsec,
			RefreshNsec:    o.RefreshNsec,
			Seq:            o.Seq,
			Flags:          uint32(fb.Flags()),
		}
		if _, err := st.WriteRecord(ctx, rec); err != nil {
			return fmt.Errorf("record feedback %s: %w", o.Name, err)
		}
	}
	r.logger.Debug("session recorded", "session", r.result.SessionID, "records", len(r.result.Feedback))
	return nil
}
