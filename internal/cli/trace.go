package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/presfeed/internal/presentation"
	"github.com/roach88/presfeed/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string // optional; lists sessions when empty
}

// SessionSummary is one line of the session listing.
type SessionSummary struct {
	ID       string         `json:"id"`
	Scenario string         `json:"scenario"`
	Seq      int64          `json:"seq"`
	Results  map[string]int `json:"results"`
}

// SessionTrace is the full record of one session.
type SessionTrace struct {
	Session SessionSummary    `json:"session"`
	Records []FeedbackSummary `json:"records"`
}

// FeedbackSummary is one recorded feedback outcome.
type FeedbackSummary struct {
	Name        string `json:"name"`
	Ordinal     int64  `json:"ordinal"`
	Surface     uint32 `json:"surface"`
	Result      string `json:"result"`
	Timestamp   string `json:"timestamp,omitempty"`
	RefreshNsec uint32 `json:"refresh_nsec,omitempty"`
	Seq         uint64 `json:"seq,omitempty"`
	Flags       string `json:"flags,omitempty"`
	SyncOutput  string `json:"sync_output,omitempty"`
	Digest      string `json:"digest"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show recorded sessions",
		Long: `Show sessions recorded by "presfeed run --db".

Without --session every session is listed with its result counts. With
--session the recorded feedback outcomes of that session are shown in
creation order.

Examples:
  presfeed trace --db ./runs.db
  presfeed trace --db ./runs.db --session 0190b6c4-...
  presfeed trace --db ./runs.db --session session-0001 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to show")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.Session == "" {
		return listSessions(ctx, st, formatter)
	}

	sess, err := st.ReadSession(ctx, opts.Session)
	if errors.Is(err, store.ErrNotFound) {
		if outErr := formatter.Error(ErrCodeNotFound, fmt.Sprintf("session not found: %s", opts.Session), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "session not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	summary, err := summarize(ctx, st, sess)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}
	records, err := st.ReadRecords(ctx, sess.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read records", err)
	}

	trace := SessionTrace{Session: summary, Records: make([]FeedbackSummary, 0, len(records))}
	for _, rec := range records {
		trace.Records = append(trace.Records, feedbackSummary(rec))
	}

	if formatter.JSON() {
		return formatter.Respond(CLIResponse{Status: "ok", Data: trace, Session: sess.ID})
	}
	printSessionTrace(cmd.OutOrStdout(), trace)
	return nil
}

func listSessions(ctx context.Context, st *store.Store, formatter *OutputFormatter) error {
	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		s, err := summarize(ctx, st, sess)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read session", err)
		}
		summaries = append(summaries, s)
	}

	if formatter.JSON() {
		return formatter.Respond(CLIResponse{Status: "ok", Data: summaries})
	}

	w := formatter.Writer
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return nil
	}
	for _, s := range summaries {
		fmt.Fprintf(w, "%s  %s  %s\n", s.ID, s.Scenario, formatCounts(s.Results))
	}
	return nil
}

func summarize(ctx context.Context, st *store.Store, sess store.Session) (SessionSummary, error) {
	counts, err := st.CountResults(ctx, sess.ID)
	if err != nil {
		return SessionSummary{}, err
	}
	return SessionSummary{ID: sess.ID, Scenario: sess.Scenario, Seq: sess.CreatedSeq, Results: counts}, nil
}

func feedbackSummary(rec store.Record) FeedbackSummary {
	fs := FeedbackSummary{
		Name:       rec.Name,
		Ordinal:    rec.Ordinal,
		Surface:    rec.Surface,
		Result:     rec.Result,
		SyncOutput: rec.SyncOutputName,
		Digest:     rec.Digest,
	}
	if rec.Result == presentation.Presented.String() {
		fs.Timestamp = presentation.Timestamp{Sec: rec.TvSec, Nsec: rec.TvNsec}.String()
		fs.RefreshNsec = rec.RefreshNsec
		fs.Seq = rec.Seq
		fs.Flags = presentation.Kind(rec.Flags).Symbols()
	}
	return fs
}

func printSessionTrace(w io.Writer, trace SessionTrace) {
	s := trace.Session
	fmt.Fprintf(w, "Session %s (%s)\n", s.ID, s.Scenario)
	for _, r := range trace.Records {
		if r.Result != presentation.Presented.String() {
			fmt.Fprintf(w, "  #%d %s %s\n", r.Ordinal, r.Name, r.Result)
			continue
		}
		line := fmt.Sprintf("  #%d %s presented %s, refresh %d ns, [%s] seq %d",
			r.Ordinal, r.Name, r.Timestamp, r.RefreshNsec, r.Flags, r.Seq)
		if r.SyncOutput != "" {
			line += " on " + r.SyncOutput
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "Totals: %s\n", formatCounts(s.Results))
}

// formatCounts renders result counts as "discarded=1 presented=2".
func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "no records"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := ""
	for i, k := range keys {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%d", k, counts[k])
	}
	return out
}
