package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cuke/internal/glue"
	"github.com/roach88/cuke/internal/testutil"
)

// Scenario lines: 3 passes, 9 is undefined, 13 fails.
const basketFeature = `Feature: Basket

  Scenario: add apples
    Given a basket
    When I add 3 apples
    Then the basket holds 3 items

  @wip
  Scenario: check out
    Given a basket
    When I check out

  Scenario: broken total
    Given a basket
    Then the total is 7
`

const basketSteps = `steps:
  - pattern: '^a basket$'
    run: "true"
  - pattern: '^I add (\d+) apples$'
    run: test "$1" -gt 0
  - pattern: '^the basket holds (\d+) items$'
    run: "true"
  - pattern: '^the total is (\d+)$'
    run: echo "expected $1, got 0"; exit 1
`

type project struct {
	dir     string
	feature string
	glue    string
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func newProject(t *testing.T) project {
	t.Helper()
	requireShell(t)
	testutil.SilenceLogs(t)

	dir := t.TempDir()
	p := project{
		dir:     dir,
		feature: filepath.Join(dir, "features", "basket.feature"),
		glue:    filepath.Join(dir, "steps", "basket.yaml"),
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(p.feature), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Dir(p.glue), 0o755))
	require.NoError(t, os.WriteFile(p.feature, []byte(basketFeature), 0o644))
	require.NoError(t, os.WriteFile(p.glue, []byte(basketSteps), 0o644))
	return p
}

// uri is the feature URI as the loader reports it.
func (p project) uri() string {
	return filepath.ToSlash(filepath.Clean(p.feature))
}

func runCommand(t *testing.T, format string, args ...string) (string, string, error) {
	t.Helper()
	rootOpts := &RootOptions{Format: format}
	cmd := NewRunCommand(rootOpts)
	cmd.SetContext(context.Background())
	return execute(cmd, args...)
}

func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRun_SelectedScenarioPasses(t *testing.T) {
	p := newProject(t)

	out, _, err := runCommand(t, "text", "--glue", p.glue, p.feature+":3")
	require.NoError(t, err)
	assert.Contains(t, out, "1 Scenarios (1 passed)")
	assert.Contains(t, out, "3 Steps (3 passed)")
}

func TestRun_TagFilter(t *testing.T) {
	p := newProject(t)

	out, _, err := runCommand(t, "text", "--glue", p.glue, "-t", "@wip", p.feature)
	require.NoError(t, err, "undefined steps pass a lenient run")
	assert.Contains(t, out, "1 Scenarios (1 undefined)")
	assert.Contains(t, out, "You can implement missing steps")
}

func TestRun_StrictFailsUndefined(t *testing.T) {
	p := newProject(t)

	_, _, err := runCommand(t, "text", "--glue", p.glue, "--strict", "-t", "@wip", p.feature)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, ErrScenariosFailed)
}

func TestRun_FailingScenarioExitsOne(t *testing.T) {
	p := newProject(t)

	out, _, err := runCommand(t, "text", "--glue", p.glue, p.feature)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, errors.Is(err, ErrScenariosFailed))
	assert.Contains(t, out, "Failed scenarios:")
	assert.Contains(t, out, p.uri()+":13")
	assert.Contains(t, out, "expected 7, got 0")
}

func TestRun_ConfigurationErrors(t *testing.T) {
	p := newProject(t)

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{name: "no glue", args: []string{p.feature}, wantErr: glue.ErrNoBackends},
		{name: "missing feature", args: []string{"--glue", p.glue, filepath.Join(p.dir, "missing.feature")}},
		{name: "bad tag expression", args: []string{"--glue", p.glue, "-t", "@a and", p.feature}},
		{name: "bad plugin", args: []string{"--glue", p.glue, "-p", "html", p.feature}},
		{name: "bad hook policy", args: []string{"--glue", p.glue, "--before-hook-policy", "abort", p.feature}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runCommand(t, "text", tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRun_JSONFormat(t *testing.T) {
	p := newProject(t)

	rootOpts := &RootOptions{Format: "json"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetContext(context.Background())
	out, errOut, err := execute(cmd, "--glue", p.glue, p.feature)
	require.Error(t, err)

	var resp struct {
		Status string    `json:"status"`
		RunID  string    `json:"run_id"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "stdout holds only the response: %s", out)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, "failed", resp.Data.Status)
	assert.Equal(t, map[string]int{"passed": 1, "undefined": 1, "failed": 1}, resp.Data.Scenarios)
	assert.Equal(t, []string{p.uri() + ":9", p.uri() + ":13"}, resp.Data.Failed)
	assert.Contains(t, errOut, "3 Scenarios", "the summary moves to stderr")
}

func TestRun_JSONConfigurationError(t *testing.T) {
	p := newProject(t)

	out, _, err := runCommand(t, "json", p.feature)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeNoBackends, resp.Error.Code)
}

func TestRun_PluginFilesAndMetrics(t *testing.T) {
	p := newProject(t)
	rerunPath := filepath.Join(p.dir, "out", "rerun.txt")
	eventsPath := filepath.Join(p.dir, "out", "events.ndjson")
	metricsPath := filepath.Join(p.dir, "out", "metrics.prom")

	_, _, err := runCommand(t, "text",
		"--glue", p.glue,
		"-p", "rerun:"+rerunPath,
		"-p", "json:"+eventsPath,
		"--metrics", metricsPath,
		p.feature,
	)
	require.Error(t, err)

	rerun, err := os.ReadFile(rerunPath)
	require.NoError(t, err)
	assert.Equal(t, p.uri()+":13\n", string(rerun), "undefined scenarios are not rerun in a lenient run")

	events, err := os.ReadFile(eventsPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(events)), "\n")
	require.NotEmpty(t, lines)
	assert.Contains(t, string(events), `"type":"run_started"`)
	assert.Contains(t, lines[len(lines)-1], `"type":"run_finished"`)

	metrics, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "cuke_scenarios_total")
}

func TestRun_RerunFileRoundTrip(t *testing.T) {
	p := newProject(t)
	rerunPath := filepath.Join(p.dir, "rerun.txt")

	_, _, err := runCommand(t, "text", "--glue", p.glue, "-p", "rerun:"+rerunPath, p.feature)
	require.Error(t, err)

	out, _, err := runCommand(t, "text", "--glue", p.glue, "@"+rerunPath)
	require.Error(t, err)
	assert.Contains(t, out, "1 Scenarios (1 failed)")
}

func TestRun_FixedRunID(t *testing.T) {
	p := newProject(t)

	cmd := newRunCommand(&RunOptions{
		RootOptions:    &RootOptions{Format: "json"},
		RunIDGenerator: testutil.NewFixedRunIDGenerator("run-fixed"),
		Clock:          testutil.NewTickingClock(time.Millisecond),
	})
	cmd.SetContext(context.Background())
	out, _, err := execute(cmd, "--glue", p.glue, p.feature+":3")
	require.NoError(t, err)

	var resp struct {
		RunID string    `json:"run_id"`
		Data  RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "run-fixed", resp.RunID)
	assert.Equal(t, "run-fixed", resp.Data.RunID)
	assert.Equal(t, "passed", resp.Data.Status)
	assert.Equal(t, map[string]int{"passed": 3}, resp.Data.Steps)
}
