package glue

import (
	"context"
	"sync"

	"github.com/roach88/cuke/internal/pickle"
	"github.com/roach88/cuke/internal/result"
)

// Scenario is the view of the running pickle handed to hooks and, through
// the context, to steps.
type Scenario struct {
	pickle *pickle.Pickle
	status func() result.Status

	mu    sync.Mutex
	write func(string)
	ended bool
}

// NewScenario builds a scenario view. status reports the aggregated status
// so far; write publishes free-form text.
func NewScenario(p *pickle.Pickle, status func() result.Status, write func(string)) *Scenario {
	return &Scenario{pickle: p, status: status, write: write}
}

// Pickle returns the running pickle.
func (s *Scenario) Pickle() *pickle.Pickle { return s.pickle }

// Name returns the scenario name.
func (s *Scenario) Name() string { return s.pickle.Name }

// URI returns the feature URI.
func (s *Scenario) URI() string { return s.pickle.URI }

// Line returns the scenario line.
func (s *Scenario) Line() int { return s.pickle.Line() }

// Tags returns the scenario tag names.
func (s *Scenario) Tags() []string { return s.pickle.TagNames() }

// Status returns the most severe status recorded so far.
func (s *Scenario) Status() result.Status {
	if s.status == nil {
		return result.Passed
	}
	return s.status()
}

// IsFailed reports whether the scenario has failed so far.
func (s *Scenario) IsFailed() bool {
	return s.Status() == result.Failed
}

// Write publishes text attached to the scenario. After End it does nothing,
// so a body abandoned on timeout cannot publish into a later scenario.
func (s *Scenario) Write(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended || s.write == nil {
		return
	}
	s.write(text)
}

// End stops Write from publishing. It waits for a Write in progress.
func (s *Scenario) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
}

type scenarioKey struct{}

// WithScenario returns a context carrying s.
func WithScenario(ctx context.Context, s *Scenario) context.Context {
	return context.WithValue(ctx, scenarioKey{}, s)
}

// ScenarioFromContext returns the scenario carried by ctx, if any.
func ScenarioFromContext(ctx context.Context) (*Scenario, bool) {
	s, ok := ctx.Value(scenarioKey{}).(*Scenario)
	return s, ok
}
