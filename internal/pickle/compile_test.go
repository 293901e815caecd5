package pickle

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const outlineFeature = `@feat
Feature: Cart

  Background:
    Given an empty cart

  Scenario: add one item
    When I add "apple"
    Then the cart has 1 item

  @outline
  Scenario Outline: add many
    When I add <n> items
    Then the cart has <n> items

    @row
    Examples:
      | n |
      | 2 |
      | 3 |
`

func TestCompile_ExpandsOutlinesAndBackground(t *testing.T) {
	f, err := ParseFeature("features/cart.feature", []byte(outlineFeature))
	require.NoError(t, err)
	assert.Equal(t, "Cart", f.Name)

	pickles, err := Compile(f)
	require.NoError(t, err)
	require.Len(t, pickles, 3)

	first := pickles[0]
	assert.Equal(t, "add one item", first.Name)
	assert.Equal(t, "features/cart.feature", first.URI)
	assert.Equal(t, 7, first.Line())
	assert.Equal(t, []string{"@feat"}, first.TagNames())
	require.Len(t, first.Steps, 3)
	assert.Equal(t, "an empty cart", first.Steps[0].Text)
	assert.Equal(t, "Given", first.Steps[0].KeywordText())
	assert.Equal(t, 5, first.Steps[0].Line())
	assert.Equal(t, `I add "apple"`, first.Steps[1].Text)

	row := pickles[1]
	assert.Equal(t, "add many", row.Name)
	assert.Equal(t, 19, row.Line())
	assert.Equal(t, 12, row.ScenarioLine())
	require.Len(t, row.Locations, 2)
	assert.Equal(t, 19, row.Locations[1].Line)
	assert.ElementsMatch(t, []string{"@feat", "@outline", "@row"}, row.TagNames())
	assert.Equal(t, "I add 2 items", row.Steps[1].Text)
	assert.Equal(t, 13, row.Steps[1].Line())
	assert.Equal(t, 19, row.Steps[1].LastLine())

	assert.Equal(t, 20, pickles[2].Locations[1].Line)
}

func TestCompile_StepArguments(t *testing.T) {
	src := `Feature: args
  Scenario: both
    Given a doc
      """
      hello
      """
    And a table
      | a | b |
      | 1 | 2 |
`
	f, err := ParseFeature("args.feature", []byte(src))
	require.NoError(t, err)
	pickles, err := Compile(f)
	require.NoError(t, err)
	require.Len(t, pickles, 1)

	doc, ok := pickles[0].Steps[0].Argument.(*DocString)
	require.True(t, ok)
	assert.Equal(t, "hello", doc.Content)

	table, ok := pickles[0].Steps[1].Argument.(*DataTable)
	require.True(t, ok)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, table.Rows)
	assert.Equal(t, "And", pickles[0].Steps[1].KeywordText())
}

func TestCompile_Deterministic(t *testing.T) {
	f, err := ParseFeature("cart.feature", []byte(outlineFeature))
	require.NoError(t, err)
	a, err := Compile(f)
	require.NoError(t, err)
	b, err := Compile(f)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParseFeature_InvalidSource(t *testing.T) {
	_, err := ParseFeature("bad.feature", []byte("Feature: x\n  Scenario: y\n    Given a\n  Oops here\n"))
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "bad.feature", pe.URI)
}

func TestCompile_EmptyDocument(t *testing.T) {
	f, err := ParseFeature("empty.feature", []byte("# just a comment\n"))
	require.NoError(t, err)
	pickles, err := Compile(f)
	require.NoError(t, err)
	assert.Empty(t, pickles)
}

func TestFSLoader_LexicalOrderAndDedup(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, body string) string {
		p := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}
	write("b.feature", "Feature: B\n")
	write("a.feature", "Feature: A\n")
	write("sub/c.feature", "Feature: C\n")
	write("notes.txt", "ignored")

	l := NewFSLoader(dir, filepath.Join(dir, "a.feature"))
	features, err := l.Load(context.Background())
	require.NoError(t, err)

	var names []string
	for _, f := range features {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"A", "B", "C"}, names)
}

func TestFSLoader_ParseErrorIsFatal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.feature"), []byte("Feature: A\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.feature"), []byte("Feature: B\n  Scenario: s\n    Given a\n  Junk line\n"), 0o644))

	features, err := NewFSLoader(dir).Load(context.Background())
	require.Error(t, err)
	assert.Nil(t, features)
}

func TestFSLoader_MissingPath(t *testing.T) {
	_, err := NewFSLoader(filepath.Join(t.TempDir(), "nope")).Load(context.Background())
	require.Error(t, err)
}

func TestStaticLoader(t *testing.T) {
	l := StaticLoader([]string{"x.feature"}, map[string]string{"x.feature": "Feature: X\n"})
	features, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "X", features[0].Name)
}
