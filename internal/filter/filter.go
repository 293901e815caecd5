// Package filter selects which pickles of a run are executed.
//
// Filters are evaluated lazily, one pickle at a time. A pickle rejected by a
// filter is never handed to a runner, so it produces no events.
package filter

import (
	"fmt"
	"regexp"

	"github.com/roach88/cuke/internal/pickle"
	"github.com/roach88/cuke/internal/tagexpr"
)

// Predicate decides whether a pickle is selected.
type Predicate interface {
	Match(p *pickle.Pickle) bool
}

// Func adapts a function to Predicate.
type Func func(p *pickle.Pickle) bool

// Match implements Predicate.
func (f Func) Match(p *pickle.Pickle) bool { return f(p) }

// Chain is the conjunction of its predicates. An empty chain accepts every
// pickle.
type Chain []Predicate

// Match implements Predicate.
func (c Chain) Match(p *pickle.Pickle) bool {
	for _, pred := range c {
		if !pred.Match(p) {
			return false
		}
	}
	return true
}

// TagPredicate selects pickles whose tags satisfy every expression.
type TagPredicate struct {
	exprs []tagexpr.Expr
}

// NewTagPredicate parses each expression. Blank expressions match everything.
func NewTagPredicate(expressions []string) (*TagPredicate, error) {
	tp := &TagPredicate{}
	for _, src := range expressions {
		e, err := tagexpr.Parse(src)
		if err != nil {
			return nil, fmt.Errorf("invalid tag filter: %w", err)
		}
		tp.exprs = append(tp.exprs, e)
	}
	return tp, nil
}

// Match implements Predicate.
func (t *TagPredicate) Match(p *pickle.Pickle) bool {
	if len(t.exprs) == 0 {
		return true
	}
	tags := p.TagNames()
	for _, e := range t.exprs {
		if !e.Evaluate(tags) {
			return false
		}
	}
	return true
}

// NamePredicate selects pickles whose name matches any of its patterns.
type NamePredicate struct {
	patterns []*regexp.Regexp
}

// NewNamePredicate compiles each pattern as a Go regular expression.
func NewNamePredicate(patterns []string) (*NamePredicate, error) {
	np := &NamePredicate{}
	for _, src := range patterns {
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("invalid name filter %q: %w", src, err)
		}
		np.patterns = append(np.patterns, re)
	}
	return np, nil
}

// Match implements Predicate. Without patterns every pickle matches.
func (n *NamePredicate) Match(p *pickle.Pickle) bool {
	if len(n.patterns) == 0 {
		return true
	}
	for _, re := range n.patterns {
		if re.MatchString(p.Name) {
			return true
		}
	}
	return false
}

// LinePredicate selects pickles by feature URI and line number.
//
// A pickle is accepted when any of its own locations, or any location of its
// steps, is listed for its URI. Pickles whose URI has no entry are accepted.
type LinePredicate struct {
	lines map[string]map[int]bool
}

// NewLinePredicate builds a predicate from uri → lines.
func NewLinePredicate(lines map[string][]int) *LinePredicate {
	lp := &LinePredicate{lines: make(map[string]map[int]bool, len(lines))}
	for uri, ls := range lines {
		if len(ls) == 0 {
			continue
		}
		set := make(map[int]bool, len(ls))
		for _, l := range ls {
			set[l] = true
		}
		lp.lines[uri] = set
	}
	return lp
}

// Match implements Predicate.
func (l *LinePredicate) Match(p *pickle.Pickle) bool {
	set, ok := l.lines[p.URI]
	if !ok {
		return true
	}
	for _, loc := range p.Locations {
		if set[loc.Line] {
			return true
		}
	}
	for _, s := range p.Steps {
		for _, loc := range s.Locations {
			if set[loc.Line] {
				return true
			}
		}
	}
	return false
}

// Options configures New.
type Options struct {
	Tags  []string
	Names []string
	Lines map[string][]int
}

// New builds the filter chain for a run. Invalid tag expressions or name
// patterns are configuration errors.
func New(opts Options) (Chain, error) {
	var chain Chain
	if len(opts.Tags) > 0 {
		tp, err := NewTagPredicate(opts.Tags)
		if err != nil {
			return nil, err
		}
		chain = append(chain, tp)
	}
	if len(opts.Names) > 0 {
		np, err := NewNamePredicate(opts.Names)
		if err != nil {
			return nil, err
		}
		chain = append(chain, np)
	}
	if len(opts.Lines) > 0 {
		chain = append(chain, NewLinePredicate(opts.Lines))
	}
	return chain, nil
}
