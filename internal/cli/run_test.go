package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/presfeed/internal/store"
	"github.com/roach88/presfeed/internal/testutil"
)

func TestRunCommand_MissingArgs(t *testing.T) {
	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestRunCommand_PathNotFound(t *testing.T) {
	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunCommand_EmptyDir(t *testing.T) {
	out, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestRunCommand_EmptyDirJSON(t *testing.T) {
	out, err := execute(t, NewRunCommand(&RootOptions{Format: "json"}), t.TempDir())
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestRunCommand_TestdataScenariosPass(t *testing.T) {
	out, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}),
		scenariosDir, "--golden-dir", goldenDir)
	require.NoError(t, err, out)

	assert.Contains(t, out, "✓ presented_simple")
	assert.Contains(t, out, "    fb1: presented 100.500000000, refresh 16666 us, [sc__] seq 42")
	assert.Contains(t, out, "    error: event_after_terminal")
	assert.Contains(t, out, "✓ All scenarios passed")
	assert.NotContains(t, out, "✗")
}

func TestRunCommand_Filter(t *testing.T) {
	out, err := execute(t, NewRunCommand(&RootOptions{Format: "json"}),
		scenariosDir, "--filter", "capability_*")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 2, resp.Data.Passed)
	for _, s := range resp.Data.Scenarios {
		assert.Contains(t, []string{"capability_missing", "capability_ambiguous"}, s.Name)
		assert.Equal(t, s.Name, s.ErrorCode)
	}
}

func TestRunCommand_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "failing.yaml", failingScenario)

	out, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ failing")
	assert.Contains(t, out, "fb1: result = presented, expected discarded")
	assert.Contains(t, out, "Summary: 0 passed, 1 failed, 1 total")
}

func TestRunCommand_FailingScenarioJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "failing.yaml", failingScenario)
	writeFile(t, dir, "presented.yaml", presentedScenario)

	out, err := execute(t, NewRunCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   RunSummary `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeScenarioFailed, resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)
}

func TestRunCommand_LoadError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "invalid.yaml", invalidScenario)

	out, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ invalid")
	assert.Contains(t, out, "failed to load scenario")
}

func TestRunCommand_UpdateThenCompareGolden(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "presented.yaml", presentedScenario)

	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), file, "--update")
	require.NoError(t, err)

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "presented.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"flags":"s_e_"`)
	assert.NotContains(t, string(golden), "\n")

	out, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), file)
	require.NoError(t, err, out)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "presented.golden"), []byte("{}"), 0o644))
	out, err = execute(t, NewRunCommand(&RootOptions{Format: "text"}), file)
	require.Error(t, err)
	assert.Contains(t, out, "snapshot does not match golden file")
}

func TestRunCommand_RecordsAndMetrics(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "presented.yaml", presentedScenario)
	dbPath := filepath.Join(dir, "runs.db")
	metricsPath := filepath.Join(dir, "presfeed.prom")

	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text"},
		SessionIDs:  testutil.NewFixedSessionGenerator("run-1"),
	}
	_, err := execute(t, newRunCommand(opts), file, "--db", dbPath, "--metrics", metricsPath)
	require.NoError(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	records, err := st.ReadRecords(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "presented", records[0].Result)
	assert.Equal(t, uint64(3), records[0].TvSec)
	assert.Equal(t, uint64(9), records[0].Seq)

	text, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(text), `presfeed_feedback_total{result="presented"} 1`)
	assert.Contains(t, string(text), `presfeed_presented_flags_total{flag="hw_completion"} 1`)
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.yaml", presentedScenario)
	b := writeFile(t, dir, "nested/b.yml", presentedScenario)
	writeFile(t, dir, "notes.txt", "ignored")
	writeFile(t, dir, "golden/a.golden", "{}")

	files, err := findScenarioFiles([]string{dir}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, files)

	files, err = findScenarioFiles([]string{dir}, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{b}, files)

	_, err = findScenarioFiles([]string{dir}, "[")
	assert.ErrorContains(t, err, "invalid filter pattern")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("s", "golden", "x.golden"), goldenFilePath("", filepath.Join("s", "x.yaml")))
	assert.Equal(t, filepath.Join("g", "x.golden"), goldenFilePath("g", filepath.Join("s", "x.yml")))
}
