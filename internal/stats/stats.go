// Package stats aggregates run outcomes from the event stream.
//
// Stats and UndefinedStepsTracker are plain bus subscribers: they never see
// scenarios directly, only the events the runners publish.
package stats

import (
	"fmt"
	"sync"
	"time"

	"github.com/roach88/cuke/internal/event"
	"github.com/roach88/cuke/internal/pickle"
	"github.com/roach88/cuke/internal/result"
)

// Failure is a captured error together with the scenario it belongs to.
type Failure struct {
	URI      string
	Line     int
	Scenario string
	Step     string
	Err      error
}

// String formats the failure as "uri:line scenario: error".
func (f Failure) String() string {
	if f.Step != "" {
		return fmt.Sprintf("%s:%d %s [%s]: %v", f.URI, f.Line, f.Scenario, f.Step, f.Err)
	}
	return fmt.Sprintf("%s:%d %s: %v", f.URI, f.Line, f.Scenario, f.Err)
}

// Counts tallies outcomes by status.
type Counts map[result.Status]int

// Total returns the sum of all counts.
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// Snapshot is an immutable copy of the statistics.
type Snapshot struct {
	Scenarios Counts
	Steps     Counts
	Failures  []Failure
	// Failed lists failed, ambiguous, pending and undefined scenarios in
	// completion order.
	Failed   []ScenarioRef
	Duration time.Duration
}

// ScenarioRef identifies a finished scenario.
type ScenarioRef struct {
	URI    string
	Line   int
	Name   string
	Status result.Status
}

// Stats collects scenario and step counts.
//
// Thread-safety: Stats is safe for concurrent use.
type Stats struct {
	mu        sync.Mutex
	scenarios Counts
	steps     Counts
	failures  []Failure
	failed    []ScenarioRef
	started   int64
	finished  int64
}

// New creates empty statistics.
func New() *Stats {
	return &Stats{scenarios: Counts{}, steps: Counts{}}
}

// Subscribe attaches the statistics to a bus.
func (s *Stats) Subscribe(b event.Bus) {
	event.On(b, s.onRunStarted)
	event.On(b, s.onRunFinished)
	event.On(b, s.onStepFinished)
	event.On(b, s.onHookFinished)
	event.On(b, s.onScenarioFinished)
}

func (s *Stats) onRunStarted(e event.RunStarted) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = e.Timestamp()
}

func (s *Stats) onRunFinished(e event.RunFinished) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = e.Timestamp()
}

func (s *Stats) onStepFinished(e event.StepFinished) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps[e.Result.Status]++
	if e.Result.Status == result.Failed || e.Result.Status == result.Ambiguous {
		s.failures = append(s.failures, failureOf(e.Pickle, e.Step.Text, e.Result.Err))
	}
}

func (s *Stats) onHookFinished(e event.HookFinished) {
	if e.Result.Status != result.Failed {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failureOf(e.Pickle, string(e.Phase)+" hook "+e.Location, e.Result.Err))
}

func (s *Stats) onScenarioFinished(e event.ScenarioFinished) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := e.Result.Status
	s.scenarios[st]++
	if st != result.Passed && st != result.Skipped {
		s.failed = append(s.failed, ScenarioRef{
			URI:    e.Pickle.URI,
			Line:   e.Pickle.Line(),
			Name:   e.Pickle.Name,
			Status: st,
		})
	}
}

func failureOf(p *pickle.Pickle, where string, err error) Failure {
	f := Failure{Step: where, Err: err}
	if p != nil {
		f.URI, f.Line, f.Scenario = p.URI, p.Line(), p.Name
	}
	return f
}

// Snapshot returns a copy of the current statistics.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Scenarios: Counts{},
		Steps:     Counts{},
		Failures:  append([]Failure(nil), s.failures...),
		Failed:    append([]ScenarioRef(nil), s.failed...),
	}
	for k, v := range s.scenarios {
		snap.Scenarios[k] = v
	}
	for k, v := range s.steps {
		snap.Steps[k] = v
	}
	if s.finished > s.started {
		snap.Duration = time.Duration(s.finished - s.started)
	}
	return snap
}

// Errors returns the captured failure errors in order.
func (s *Stats) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]error, 0, len(s.failures))
	for _, f := range s.failures {
		if f.Err != nil {
			out = append(out, f.Err)
		}
	}
	return out
}

// HasFailures reports whether the run failed. In strict mode pending and
// undefined outcomes count as failures.
func (s *Stats) HasFailures(strict bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, counts := range []Counts{s.scenarios, s.steps} {
		for st, n := range counts {
			if n > 0 && !st.IsOK(strict) {
				return true
			}
		}
	}
	return false
}
