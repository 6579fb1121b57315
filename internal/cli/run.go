package cli

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/presfeed/internal/harness"
	"github.com/roach88/presfeed/internal/metrics"
	"github.com/roach88/presfeed/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database  string
	Metrics   string // path of the text exposition written after the run
	Filter    string // glob over scenario file names, without extension
	GoldenDir string // defaults to <scenario dir>/golden
	Update    bool

	// SessionIDs overrides the session ID generator (for testing).
	// If nil, the harness generates UUIDv7 IDs.
	SessionIDs harness.SessionIDGenerator
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name      string            `json:"name"`
	File      string            `json:"file"`
	Pass      bool              `json:"pass"`
	Session   string            `json:"session,omitempty"`
	ErrorCode string            `json:"error_code,omitempty"`
	Digest    string            `json:"digest,omitempty"`
	Feedback  []harness.Outcome `json:"feedback,omitempty"`
	Errors    []string          `json:"errors,omitempty"`
}

// RunSummary holds the outcome of every scenario in a run.
type RunSummary struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario|dir>...",
		Short: "Run scenarios against the simulated compositor",
		Long: `Run presentation feedback scenarios.

Each argument is a scenario file or a directory searched recursively for
.yaml and .yml files. Every scenario runs against a fresh compositor and
its feedback outcomes are printed. When a golden file exists for a
scenario its canonical snapshot must match byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (missing paths, unusable database, etc.)

Examples:
  presfeed run ./scenarios
  presfeed run ./scenarios --filter "discard*"
  presfeed run ./scenarios --db ./runs.db --metrics ./presfeed.prom
  presfeed run ./scenarios --update
  presfeed run ./scenarios/presented.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record outcomes to this SQLite database")
	cmd.Flags().StringVar(&opts.Metrics, "metrics", "", "write Prometheus text metrics to this file")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "directory of golden files (default <scenario dir>/golden)")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")

	return cmd
}

func runScenarios(opts *RunOptions, paths []string, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	files, err := findScenarioFiles(paths, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	if len(files) == 0 {
		if formatter.JSON() {
			return formatter.Respond(CLIResponse{Status: "ok", Data: RunSummary{Scenarios: []ScenarioResult{}}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runOpts := []harness.Option{harness.WithLogger(logger)}
	if opts.SessionIDs != nil {
		runOpts = append(runOpts, harness.WithSessionIDs(opts.SessionIDs))
	}

	if opts.Database != "" {
		logger.Info("opening database", "path", opts.Database)
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		runOpts = append(runOpts, harness.WithStore(st))
	}

	var rec *metrics.Recorder
	if opts.Metrics != "" {
		rec = metrics.New()
		runOpts = append(runOpts, harness.WithMetrics(rec))
	}

	summary := RunSummary{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, file := range files {
		res := runScenarioFile(ctx, opts, file, runOpts)
		if !formatter.JSON() {
			printScenarioResult(cmd, res)
		}
		summary.Scenarios = append(summary.Scenarios, res)
		if res.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}

	if rec != nil {
		if err := writeMetrics(rec, opts.Metrics); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
		formatter.VerboseLog("metrics written to %s", opts.Metrics)
	}

	return outputRunSummary(cmd, formatter, summary)
}

// findScenarioFiles expands files and directories into the scenario
// files they name, in walk order.
func findScenarioFiles(paths []string, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("path not found: %s", p)
		}
		if !info.IsDir() {
			if matchesFilter(p, filter) {
				files = append(files, p)
			}
			continue
		}

		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !isScenarioFile(path) {
				return nil
			}
			if matchesFilter(path, filter) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func isScenarioFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}

func matchesFilter(path, filter string) bool {
	if filter == "" {
		return true
	}
	matched, _ := filepath.Match(filter, scenarioBase(path))
	return matched
}

// scenarioBase returns the file name without its extension.
func scenarioBase(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// runScenarioFile loads, runs and golden-checks one scenario.
func runScenarioFile(ctx context.Context, opts *RunOptions, file string, runOpts []harness.Option) ScenarioResult {
	res := ScenarioResult{Name: scenarioBase(file), File: file}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return res
	}
	res.Name = scenario.Name

	result, err := harness.Run(ctx, scenario, runOpts...)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return res
	}
	res.Pass = result.Pass
	res.Session = result.SessionID
	res.ErrorCode = result.ErrorCode
	res.Digest = result.TraceDigest
	res.Feedback = result.Feedback
	res.Errors = result.Errors

	snapshot, err := harness.Snapshot(scenario, result)
	if err != nil {
		res.Pass = false
		res.Errors = append(res.Errors, fmt.Sprintf("snapshot failed: %v", err))
		return res
	}

	goldenPath := goldenFilePath(opts.GoldenDir, file)
	if opts.Update {
		if err := writeGolden(goldenPath, snapshot); err != nil {
			res.Pass = false
			res.Errors = append(res.Errors, fmt.Sprintf("failed to update golden file: %v", err))
		}
		return res
	}

	golden, err := os.ReadFile(goldenPath)
	if os.IsNotExist(err) {
		return res
	}
	if err != nil {
		res.Pass = false
		res.Errors = append(res.Errors, fmt.Sprintf("failed to read golden file: %v", err))
		return res
	}
	if !bytes.Equal(golden, snapshot) {
		res.Pass = false
		res.Errors = append(res.Errors, "snapshot does not match golden file (run with --update to regenerate)")
	}
	return res
}

// goldenFilePath returns the golden file of a scenario file.
func goldenFilePath(dir, scenarioFile string) string {
	if dir == "" {
		dir = filepath.Join(filepath.Dir(scenarioFile), "golden")
	}
	return filepath.Join(dir, scenarioBase(scenarioFile)+".golden")
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create golden directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func writeMetrics(rec *metrics.Recorder, path string) error {
	var buf bytes.Buffer
	if err := rec.WriteText(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func printScenarioResult(cmd *cobra.Command, res ScenarioResult) {
	w := cmd.OutOrStdout()
	mark := "✓"
	if !res.Pass {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s\n", mark, res.Name)
	for _, o := range res.Feedback {
		fmt.Fprintf(w, "    %s: %s\n", o.Name, o.Line)
	}
	if res.ErrorCode != "" {
		fmt.Fprintf(w, "    error: %s\n", res.ErrorCode)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

func outputRunSummary(cmd *cobra.Command, formatter *OutputFormatter, summary RunSummary) error {
	if formatter.JSON() {
		resp := CLIResponse{Status: "ok", Data: summary}
		if summary.Failed > 0 {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    ErrCodeScenarioFailed,
				Message: fmt.Sprintf("%d scenario(s) failed", summary.Failed),
			}
		}
		if err := formatter.Respond(resp); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Summary: %d passed, %d failed, %d total\n", summary.Passed, summary.Failed, summary.Total)
		if summary.Failed == 0 {
			fmt.Fprintln(w, "✓ All scenarios passed")
		}
	}

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", summary.Failed))
	}
	return nil
}
