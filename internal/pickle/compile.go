package pickle

import (
	"bytes"
	"fmt"

	gherkin "github.com/cucumber/gherkin/go/v26"
	messages "github.com/cucumber/messages/go/v21"
)

// ParseError reports a feature file that could not be parsed.
type ParseError struct {
	URI string
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URI, e.Err)
}

// Unwrap returns the underlying parser error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseFeature parses Gherkin source into a Feature.
func ParseFeature(uri string, src []byte) (*Feature, error) {
	ids := &messages.Incrementing{}
	doc, err := gherkin.ParseGherkinDocument(bytes.NewReader(src), ids.NewId)
	if err != nil {
		return nil, &ParseError{URI: uri, Err: err}
	}
	doc.Uri = uri

	f := &Feature{URI: uri, Source: src, Document: doc}
	if doc.Feature != nil {
		f.Name = doc.Feature.Name
		f.Language = doc.Feature.Language
	}
	return f, nil
}

// Compile expands a feature into its pickles, in document order.
//
// Pickle ids are derived from the document, so compiling the same feature
// twice yields equal pickles.
func Compile(f *Feature) ([]*Pickle, error) {
	if f == nil || f.Document == nil {
		return nil, fmt.Errorf("compile: feature has no document")
	}
	if f.Document.Feature == nil {
		return nil, nil
	}

	lines := indexLines(f.Document)
	keywords := indexKeywords(f.Document)

	ids := &messages.Incrementing{}
	raw := gherkin.Pickles(*f.Document, f.URI, ids.NewId)

	out := make([]*Pickle, 0, len(raw))
	for _, mp := range raw {
		out = append(out, convertPickle(mp, f.URI, lines, keywords))
	}
	return out, nil
}

func convertPickle(mp *messages.Pickle, uri string, lines map[string]int, keywords map[string]string) *Pickle {
	p := &Pickle{
		ID:        mp.Id,
		URI:       uri,
		Name:      mp.Name,
		Language:  mp.Language,
		Locations: locationsOf(mp.AstNodeIds, lines),
	}
	for _, t := range mp.Tags {
		p.Tags = append(p.Tags, Tag{Name: t.Name, Location: Location{Line: lines[t.AstNodeId]}})
	}
	for _, ms := range mp.Steps {
		s := &Step{
			ID:        ms.Id,
			Text:      ms.Text,
			Locations: locationsOf(ms.AstNodeIds, lines),
		}
		if len(ms.AstNodeIds) > 0 {
			s.Keyword = keywords[ms.AstNodeIds[0]]
		}
		if ms.Argument != nil {
			s.Argument = convertArgument(ms.Argument)
		}
		p.Steps = append(p.Steps, s)
	}
	return p
}

func convertArgument(arg *messages.PickleStepArgument) Argument {
	switch {
	case arg.DocString != nil:
		return &DocString{Content: arg.DocString.Content}
	case arg.DataTable != nil:
		t := &DataTable{Rows: make([][]string, 0, len(arg.DataTable.Rows))}
		for _, row := range arg.DataTable.Rows {
			cells := make([]string, len(row.Cells))
			for i, c := range row.Cells {
				cells[i] = c.Value
			}
			t.Rows = append(t.Rows, cells)
		}
		return t
	}
	return nil
}

func locationsOf(astIDs []string, lines map[string]int) []Location {
	locs := make([]Location, 0, len(astIDs))
	for _, id := range astIDs {
		if line, ok := lines[id]; ok {
			locs = append(locs, Location{Line: line})
		}
	}
	return locs
}

// indexLines maps every AST node id that can appear in a pickle to its line.
func indexLines(doc *messages.GherkinDocument) map[string]int {
	lines := make(map[string]int)
	addTags := func(tags []*messages.Tag) {
		for _, t := range tags {
			lines[t.Id] = lineOf(t.Location)
		}
	}
	addSteps := func(steps []*messages.Step) {
		for _, s := range steps {
			lines[s.Id] = lineOf(s.Location)
		}
	}
	addScenario := func(sc *messages.Scenario) {
		lines[sc.Id] = lineOf(sc.Location)
		addTags(sc.Tags)
		addSteps(sc.Steps)
		for _, ex := range sc.Examples {
			addTags(ex.Tags)
			for _, row := range ex.TableBody {
				lines[row.Id] = lineOf(row.Location)
			}
		}
	}

	feature := doc.Feature
	addTags(feature.Tags)
	for _, child := range feature.Children {
		switch {
		case child.Background != nil:
			addSteps(child.Background.Steps)
		case child.Scenario != nil:
			addScenario(child.Scenario)
		case child.Rule != nil:
			addTags(child.Rule.Tags)
			for _, rc := range child.Rule.Children {
				if rc.Background != nil {
					addSteps(rc.Background.Steps)
				}
				if rc.Scenario != nil {
					addScenario(rc.Scenario)
				}
			}
		}
	}
	return lines
}

// indexKeywords maps step AST ids to their keyword.
func indexKeywords(doc *messages.GherkinDocument) map[string]string {
	kw := make(map[string]string)
	add := func(steps []*messages.Step) {
		for _, s := range steps {
			kw[s.Id] = s.Keyword
		}
	}
	for _, child := range doc.Feature.Children {
		switch {
		case child.Background != nil:
			add(child.Background.Steps)
		case child.Scenario != nil:
			add(child.Scenario.Steps)
		case child.Rule != nil:
			for _, rc := range child.Rule.Children {
				if rc.Background != nil {
					add(rc.Background.Steps)
				}
				if rc.Scenario != nil {
					add(rc.Scenario.Steps)
				}
			}
		}
	}
	return kw
}

func lineOf(loc *messages.Location) int {
	if loc == nil {
		return 0
	}
	return int(loc.Line)
}
