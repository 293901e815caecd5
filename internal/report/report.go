// Package report contains the formatters that render a run from its event
// stream.
//
// Formatters are bus subscribers. They are registered on the root bus before
// the run starts and write to their own io.Writer.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/roach88/cuke/internal/event"
	"github.com/roach88/cuke/internal/result"
)

// Formatter renders events.
type Formatter interface {
	Subscribe(b event.Bus)
}

// Plugin is a formatter name with an optional output path, written as
// name[:path] on the command line.
type Plugin struct {
	Name string
	Path string
}

// ParsePlugin parses name[:path].
func ParsePlugin(s string) (Plugin, error) {
	name, path, _ := strings.Cut(s, ":")
	if _, ok := constructors[name]; !ok {
		return Plugin{}, fmt.Errorf("unknown formatter %q, want one of %s", name, strings.Join(Names(), ", "))
	}
	return Plugin{Name: name, Path: path}, nil
}

// String returns the name[:path] form.
func (p Plugin) String() string {
	if p.Path == "" {
		return p.Name
	}
	return p.Name + ":" + p.Path
}

// Options configures formatters.
type Options struct {
	Strict bool
	// Color forces styled output on writers that are not terminals.
	Color bool
}

type constructor func(w io.Writer, opts Options) Formatter

var constructors = map[string]constructor{
	"pretty":   func(w io.Writer, opts Options) Formatter { return NewPretty(w, opts) },
	"progress": func(w io.Writer, opts Options) Formatter { return NewProgress(w, opts) },
	"json":     func(w io.Writer, opts Options) Formatter { return NewJSON(w) },
	"rerun":    func(w io.Writer, opts Options) Formatter { return NewRerun(w, opts.Strict) },
}

// Names returns the formatter names in lexical order.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for n := range constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New creates the named formatter writing to w.
func New(name string, w io.Writer, opts Options) (Formatter, error) {
	c, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter %q", name)
	}
	return c(w, opts), nil
}

// styles holds the lipgloss styles of one writer.
type styles struct {
	status  map[result.Status]lipgloss.Style
	comment lipgloss.Style
	bold    lipgloss.Style
}

func newStyles(w io.Writer, opts Options) styles {
	r := lipgloss.NewRenderer(w)
	if opts.Color {
		r.SetColorProfile(termenv.ANSI)
	}
	color := func(c string) lipgloss.Style { return r.NewStyle().Foreground(lipgloss.Color(c)) }
	return styles{
		status: map[result.Status]lipgloss.Style{
			result.Passed:    color("2"),
			result.Failed:    color("1"),
			result.Ambiguous: color("1"),
			result.Skipped:   color("6"),
			result.Pending:   color("3"),
			result.Undefined: color("3"),
		},
		comment: r.NewStyle().Faint(true),
		bold:    r.NewStyle().Bold(true),
	}
}

func (s styles) render(st result.Status, text string) string {
	return s.status[st].Render(text)
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
