package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribe_RendersTree(t *testing.T) {
	p := newProject(t)

	out, _, err := execute(NewDescribeCommand(&RootOptions{Format: "text"}), "--glue", p.glue, "-t", "not @wip", p.feature)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "cuke", lines[0])
	assert.Equal(t, "  Basket", lines[1])
	assert.Contains(t, lines[2], "["+p.uri()+":3]")
	assert.Contains(t, lines[3], "["+p.uri()+":13]")
}

func TestDescribe_StepsAsChildren(t *testing.T) {
	p := newProject(t)

	out, _, err := execute(NewDescribeCommand(&RootOptions{Format: "text"}), "--glue", p.glue, "--steps", p.feature+":3")
	require.NoError(t, err)
	assert.Contains(t, out, "["+p.uri()+":3:4]")
	assert.Contains(t, out, "["+p.uri()+":3:6]")
}

func TestDescribe_Execute(t *testing.T) {
	p := newProject(t)

	out, _, err := execute(NewDescribeCommand(&RootOptions{Format: "text"}), "--glue", p.glue, "--execute", p.feature)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScenariosFailed)
	assert.Contains(t, out, "ok    ")
	assert.Contains(t, out, "skip  ")
	assert.Contains(t, out, "FAIL  ")
	assert.Contains(t, out, "expected 7, got 0")
}
