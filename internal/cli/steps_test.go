package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cuke/internal/glue"
)

func TestSteps_ListsDefinitions(t *testing.T) {
	p := newProject(t)

	out, _, err := execute(NewStepsCommand(&RootOptions{Format: "text"}), "--glue", p.glue)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "^a basket$"))
	assert.Contains(t, lines[0], "# "+p.glue+":2 (shell)")
	assert.Contains(t, lines[3], `^the total is (\d+)$`)
}

func TestSteps_JSON(t *testing.T) {
	p := newProject(t)

	out, _, err := execute(NewStepsCommand(&RootOptions{Format: "json"}), "--glue", filepath.Dir(p.glue))
	require.NoError(t, err)

	var resp struct {
		Data []struct {
			Backend string `json:"backend"`
			Pattern string `json:"pattern"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 4)
	assert.Equal(t, "shell", resp.Data[1].Backend)
	assert.Equal(t, `^I add (\d+) apples$`, resp.Data[1].Pattern)
}

func TestSteps_Errors(t *testing.T) {
	p := newProject(t)

	_, _, err := execute(NewStepsCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, glue.ErrNoBackends)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	dup := filepath.Join(p.dir, "steps", "dup.yaml")
	require.NoError(t, os.WriteFile(dup, []byte("steps:\n  - pattern: '^a basket$'\n    run: \"true\"\n"), 0o644))
	_, _, err = execute(NewStepsCommand(&RootOptions{Format: "text"}), "--glue", filepath.Dir(p.glue))
	require.Error(t, err, "duplicate patterns are rejected")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
