package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWorkflow = `
name: ci
poll_interval: 5ms
tasks:
  - name: checkout
    command: "true"
  - name: build
    command: "true"
    reqs: [checkout]
`

func writeWorkflow(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--quiet"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	path := writeWorkflow(t, testWorkflow)
	_, err := execute(t, "run", path)
	assert.NoError(t, err)
}

func TestRunCommandFailingWorkflow(t *testing.T) {
	path := writeWorkflow(t, `
name: broken
poll_interval: 5ms
tasks:
  - name: bad
    command: "exit 2"
`)
	_, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worst rc 2")
}

func TestPlanCommand(t *testing.T) {
	path := writeWorkflow(t, testWorkflow)
	out, err := execute(t, "plan", path)
	require.NoError(t, err)
	assert.Contains(t, out, "checkout")
	assert.Contains(t, out, `workflow "ci" is valid: 2 task(s)`)
}

func TestPlanCommandRejectsCycle(t *testing.T) {
	path := writeWorkflow(t, `
name: cyclic
poll_interval: 5ms
tasks:
  - name: a
    command: "true"
    reqs: [b]
  - name: b
    command: "true"
    reqs: [a]
`)
	_, err := execute(t, "plan", path)
	assert.Error(t, err)
}
