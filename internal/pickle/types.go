// Package pickle holds the executable scenario model.
//
// A Feature is a parsed Gherkin document. Compiling a Feature yields one
// Pickle per concrete scenario: scenario outlines expand to one Pickle per
// example row, backgrounds are prepended, and tags are inherited from the
// feature, rule, scenario and examples blocks. Pickles are immutable once
// compiled.
package pickle

import (
	"context"
	"strings"

	messages "github.com/cucumber/messages/go/v21"
)

// Feature is a parsed scenario document identified by its URI.
type Feature struct {
	URI      string
	Name     string
	Language string
	Source   []byte
	Document *messages.GherkinDocument
}

// Location is a position in a feature file. Lines are 1-based.
type Location struct {
	Line int
}

// Tag is a tag attached to a pickle, possibly inherited.
type Tag struct {
	Name     string
	Location Location
}

// Pickle is one concrete, executable scenario.
type Pickle struct {
	ID       string
	URI      string
	Name     string
	Language string
	Steps    []*Step
	Tags     []Tag
	// Locations holds the scenario line followed, for outline rows, by the
	// example row line.
	Locations []Location
}

// Line returns the primary location line of the pickle: the example row
// for outline rows, the scenario line otherwise.
func (p *Pickle) Line() int {
	if len(p.Locations) == 0 {
		return 0
	}
	return p.Locations[len(p.Locations)-1].Line
}

// ScenarioLine returns the line of the scenario or outline header.
func (p *Pickle) ScenarioLine() int {
	if len(p.Locations) == 0 {
		return 0
	}
	return p.Locations[0].Line
}

// TagNames returns the names of all tags on the pickle.
func (p *Pickle) TagNames() []string {
	names := make([]string, len(p.Tags))
	for i, t := range p.Tags {
		names[i] = t.Name
	}
	return names
}

// Step is one executable step of a pickle.
type Step struct {
	ID      string
	Keyword string
	Text    string
	// Argument is nil, a *DocString or a *DataTable.
	Argument Argument
	// Locations holds the step line followed, for outline rows, by the
	// example row line.
	Locations []Location
}

// LastLine returns the last location line of the step: the example row for
// steps of outline rows, the step line otherwise. Step identities use Line.
func (s *Step) LastLine() int {
	if len(s.Locations) == 0 {
		return 0
	}
	return s.Locations[len(s.Locations)-1].Line
}

// Line returns the line the step text appears on.
func (s *Step) Line() int {
	if len(s.Locations) == 0 {
		return 0
	}
	return s.Locations[0].Line
}

// KeywordText returns the trimmed keyword, e.g. "Given".
func (s *Step) KeywordText() string {
	return strings.TrimSpace(s.Keyword)
}

// Argument is a step argument: a doc string or a data table.
type Argument interface {
	argumentMarker()
}

// DocString is a multi-line string argument.
type DocString struct {
	Content string
}

func (*DocString) argumentMarker() {}

// DataTable is a table argument. Rows include the header row.
type DataTable struct {
	Rows [][]string
}

func (*DataTable) argumentMarker() {}

// Loader produces the features of a run.
type Loader interface {
	Load(ctx context.Context) ([]*Feature, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) ([]*Feature, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context) ([]*Feature, error) {
	return f(ctx)
}
