package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const (
	scenariosDir = "../harness/testdata/scenarios"
	goldenDir    = "../harness/testdata/golden"
)

const presentedScenario = `name: presented
description: one frame
compositor:
  base_time: {sec: 3, nsec: 0}
  base_seq: 9
  outputs:
    - name: out0
      flags: [vsync, hw_completion]
surfaces:
  - name: main
    width: 10
    height: 10
    outputs: [out0]
steps:
  - commit: main
    feedback: fb1
  - wait: fb1
expect:
  - feedback: fb1
    result: presented
    seq: 9
`

const failingScenario = `name: failing
description: expects the wrong result
compositor:
  outputs:
    - name: out0
surfaces:
  - name: main
    width: 10
    height: 10
    outputs: [out0]
steps:
  - commit: main
    feedback: fb1
  - wait: fb1
expect:
  - feedback: fb1
    result: discarded
`

const invalidScenario = `name: invalid
description: typo in a step
surfaces:
  - name: main
    width: 10
    height: 10
steps:
  - comit: main
`

// writeFile writes content to dir/name and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs cmd with args and returns its stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
