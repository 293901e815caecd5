package glue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/cuke/internal/event"
	"github.com/roach88/cuke/internal/pickle"
	"github.com/roach88/cuke/internal/tagexpr"
)

const (
	// DefaultBeforeOrder is the order of before hooks without an explicit one.
	DefaultBeforeOrder = 0
	// DefaultAfterOrder is the order of after hooks without an explicit one.
	DefaultAfterOrder = 1000
	// NoTimeout disables the timeout of a hook or step.
	NoTimeout time.Duration = 0
)

// HookBody is the executable part of a hook.
type HookBody func(ctx context.Context, s *Scenario) error

// HookDefinition is a lifecycle hook.
type HookDefinition struct {
	Phase event.Phase
	// TagExpression scopes the hook; empty matches every scenario.
	TagExpression string
	// Order sorts hooks ascending; ties keep registration order.
	Order    int
	Timeout  time.Duration
	Body     HookBody
	Location string

	tags tagexpr.Expr
	seq  int
}

// Matches reports whether the hook applies to a scenario with tags.
func (h *HookDefinition) Matches(tags []string) bool {
	if h.tags == nil {
		return true
	}
	return h.tags.Evaluate(tags)
}

// Execute runs the hook body under its timeout.
func (h *HookDefinition) Execute(ctx context.Context, s *Scenario) error {
	return Invoke(ctx, h.Timeout, func(ctx context.Context) error {
		return h.Body(ctx, s)
	})
}

// Registry holds the glue of a run.
//
// Step definitions are kept in registration order keyed by pattern. The
// registry is append-only until Freeze and read-only afterwards.
type Registry struct {
	steps    *orderedmap.OrderedMap[string, StepDefinition]
	owners   map[string]string
	before   []*HookDefinition
	after    []*HookDefinition
	backends []Backend
	loading  string
	frozen   bool
	hookSeq  int
}

// NewRegistry creates an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{
		steps:  orderedmap.New[string, StepDefinition](),
		owners: make(map[string]string),
	}
}

// Load builds a frozen registry from the backends. Each loaded step
// definition is passed to reporter when it is non-nil.
func Load(backends []Backend, reporter StepDefinitionReporter) (*Registry, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}
	r := NewRegistry()
	for _, b := range backends {
		r.loading = b.Name()
		if err := b.LoadGlue(r); err != nil {
			return nil, fmt.Errorf("load glue for backend %s: %w", b.Name(), err)
		}
		r.backends = append(r.backends, b)
	}
	r.loading = ""
	r.Freeze()

	slog.Debug("glue loaded",
		"backends", len(r.backends),
		"step_definitions", r.steps.Len(),
		"before_hooks", len(r.before),
		"after_hooks", len(r.after),
	)

	if reporter != nil {
		r.Report(reporter)
	}
	return r, nil
}

// Report passes every step definition, in registration order, to reporter
// together with the name of the backend that registered it.
func (r *Registry) Report(reporter StepDefinitionReporter) {
	for pair := r.steps.Oldest(); pair != nil; pair = pair.Next() {
		reporter.StepDefinitionLoaded(r.owners[pair.Key], pair.Value)
	}
}

// AddStepDefinition registers a step definition.
func (r *Registry) AddStepDefinition(def StepDefinition) error {
	if r.frozen {
		return ErrFrozen
	}
	pattern := def.Pattern()
	if existing, ok := r.steps.Get(pattern); ok {
		return &DuplicateStepDefinitionError{
			Pattern:  pattern,
			Existing: existing.Location(),
			Location: def.Location(),
		}
	}
	r.steps.Set(pattern, def)
	r.owners[pattern] = r.loading
	return nil
}

// AddHook registers a hook. The tag expression is parsed here so invalid
// scopes fail at load time.
func (r *Registry) AddHook(h HookDefinition) error {
	if r.frozen {
		return ErrFrozen
	}
	if h.Body == nil {
		return fmt.Errorf("hook at %s has no body", h.Location)
	}
	if h.TagExpression != "" {
		expr, err := tagexpr.Parse(h.TagExpression)
		if err != nil {
			return fmt.Errorf("hook at %s: %w", h.Location, err)
		}
		h.tags = expr
	}
	h.seq = r.hookSeq
	r.hookSeq++

	switch h.Phase {
	case event.PhaseBefore:
		r.before = append(r.before, &h)
	case event.PhaseAfter:
		r.after = append(r.after, &h)
	default:
		return fmt.Errorf("hook at %s: unknown phase %q", h.Location, h.Phase)
	}
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.frozen = true
}

// Frozen reports whether the registry is read-only.
func (r *Registry) Frozen() bool {
	return r.frozen
}

// Backends returns the backends the registry was loaded from.
func (r *Registry) Backends() []Backend {
	return r.backends
}

// StepDefinitions returns the step definitions in registration order.
func (r *Registry) StepDefinitions() []StepDefinition {
	out := make([]StepDefinition, 0, r.steps.Len())
	for pair := r.steps.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Match resolves a step to exactly one definition.
//
// No match yields an *UndefinedStepError carrying a snippet from every
// backend; several matches yield an *AmbiguousStepError.
func (r *Registry) Match(step *pickle.Step) (*Binding, error) {
	text := norm.NFC.String(step.Text)

	var matches []*Binding
	for pair := r.steps.Oldest(); pair != nil; pair = pair.Next() {
		if args, ok := pair.Value.Match(text); ok {
			matches = append(matches, &Binding{Step: step, Definition: pair.Value, Args: args})
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return nil, &UndefinedStepError{Text: step.Text, Snippets: r.Snippets(step)}
	default:
		amb := &AmbiguousStepError{Text: step.Text}
		for _, m := range matches {
			amb.Candidates = append(amb.Candidates, Candidate{
				Pattern:  m.Definition.Pattern(),
				Location: m.Definition.Location(),
			})
		}
		return nil, amb
	}
}

// Snippets returns one implementation suggestion per backend.
func (r *Registry) Snippets(step *pickle.Step) []string {
	var out []string
	for _, b := range r.backends {
		if s := b.Snippet(step); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Hooks returns the hooks of phase applying to tags, sorted ascending by
// order with ties in registration order.
func (r *Registry) Hooks(phase event.Phase, tags []string) []*HookDefinition {
	var src []*HookDefinition
	switch phase {
	case event.PhaseBefore:
		src = r.before
	case event.PhaseAfter:
		src = r.after
	}

	out := make([]*HookDefinition, 0, len(src))
	for _, h := range src {
		if h.Matches(tags) {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].seq < out[j].seq
	})
	return out
}
