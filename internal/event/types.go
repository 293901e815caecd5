// Package event implements the execution event stream.
//
// Every observable fact of a run (a scenario starting, a step finishing, a
// snippet being suggested) is an immutable Event value published on a Bus.
// Subscribers such as the statistics collector, reporters and the run
// history recorder observe the run exclusively through the bus.
//
// Timestamps are assigned once, by the root bus, from its TimeSource. Events
// are delivered synchronously in publish order.
package event

import (
	"time"

	"github.com/roach88/cuke/internal/pickle"
	"github.com/roach88/cuke/internal/result"
)

// Kind identifies an event type.
type Kind string

const (
	KindRunStarted          Kind = "run_started"
	KindRunFinished         Kind = "run_finished"
	KindStepDefinitionAdded Kind = "step_definition_added"
	KindScenarioStarted     Kind = "scenario_started"
	KindScenarioFinished    Kind = "scenario_finished"
	KindStepStarted         Kind = "step_started"
	KindStepFinished        Kind = "step_finished"
	KindHookStarted         Kind = "hook_started"
	KindHookFinished        Kind = "hook_finished"
	KindSnippetSuggested    Kind = "snippet_suggested"
	KindWrite               Kind = "write"
)

// Kinds lists every event kind.
var Kinds = []Kind{
	KindRunStarted, KindRunFinished, KindStepDefinitionAdded,
	KindScenarioStarted, KindScenarioFinished,
	KindStepStarted, KindStepFinished,
	KindHookStarted, KindHookFinished,
	KindSnippetSuggested, KindWrite,
}

// Event is an immutable, timestamped fact about a run.
//
// The set of implementations is closed: only types in this package satisfy
// Event.
type Event interface {
	Kind() Kind
	// Timestamp is the TimeSource reading taken when the event was first
	// published. Zero means not yet published.
	Timestamp() int64
	stamped(ts int64) Event
}

// Header carries the timestamp shared by all events.
type Header struct {
	Time int64
}

// Timestamp implements Event.
func (h Header) Timestamp() int64 { return h.Time }

// Phase distinguishes before and after hooks.
type Phase string

const (
	PhaseBefore Phase = "before"
	PhaseAfter  Phase = "after"
)

// RunStarted opens the event stream of a run.
type RunStarted struct {
	Header
	RunID string
}

func (RunStarted) Kind() Kind { return KindRunStarted }

func (e RunStarted) stamped(ts int64) Event {
	e.Time = ts
	return e
}

// RunFinished closes the event stream of a run.
type RunFinished struct {
	Header
	RunID string
}

func (RunFinished) Kind() Kind { return KindRunFinished }

func (e RunFinished) stamped(ts int64) Event {
	e.Time = ts
	return e
}

// StepDefinitionAdded reports a step definition loaded from a backend.
type StepDefinitionAdded struct {
	Header
	Backend  string
	Pattern  string
	Location string
}

func (StepDefinitionAdded) Kind() Kind { return KindStepDefinitionAdded }

func (e StepDefinitionAdded) stamped(ts int64) Event {
	e.Time = ts
	return e
}

// ScenarioStarted precedes every other event of a scenario.
type ScenarioStarted struct {
	Header
	Pickle *pickle.Pickle
}

func (ScenarioStarted) Kind() Kind { return KindScenarioStarted }

func (e ScenarioStarted) stamped(ts int64) Event {
	e.Time = ts
	return e
}

// ScenarioFinished carries the aggregated result of a scenario.
type ScenarioFinished struct {
	Header
	Pickle *pickle.Pickle
	Result result.Result
}

func (ScenarioFinished) Kind() Kind { return KindScenarioFinished }

func (e ScenarioFinished) stamped(ts int64) Event {
	e.Time = ts
	return e
}

// StepStarted is published once a step has been resolved, before it runs.
// Location is the matched definition location, empty when undefined.
type StepStarted struct {
	Header
	Pickle   *pickle.Pickle
	Step     *pickle.Step
	Index    int
	Location string
}

func (StepStarted) Kind() Kind { return KindStepStarted }

func (e StepStarted) stamped(ts int64) Event {
	e.Time = ts
	return e
}

// StepFinished carries the result of one step.
type StepFinished struct {
	Header
	Pickle   *pickle.Pickle
	Step     *pickle.Step
	Index    int
	Location string
	Result   result.Result
}

func (StepFinished) Kind() Kind { return KindStepFinished }

func (e StepFinished) stamped(ts int64) Event {
	e.Time = ts
	return e
}

// HookStarted precedes the execution of one hook.
type HookStarted struct {
	Header
	Pickle   *pickle.Pickle
	Phase    Phase
	Location string
}

func (HookStarted) Kind() Kind { return KindHookStarted }

func (e HookStarted) stamped(ts int64) Event {
	e.Time = ts
	return e
}

// HookFinished carries the result of one hook.
type HookFinished struct {
	Header
	Pickle   *pickle.Pickle
	Phase    Phase
	Location string
	Result   result.Result
}

func (HookFinished) Kind() Kind { return KindHookFinished }

func (e HookFinished) stamped(ts int64) Event {
	e.Time = ts
	return e
}

// SnippetSuggested carries implementation suggestions for an undefined step.
type SnippetSuggested struct {
	Header
	Pickle   *pickle.Pickle
	Step     *pickle.Step
	Snippets []string
}

func (SnippetSuggested) Kind() Kind { return KindSnippetSuggested }

func (e SnippetSuggested) stamped(ts int64) Event {
	e.Time = ts
	return e
}

// Write carries free-form text emitted by a step or hook.
type Write struct {
	Header
	Pickle *pickle.Pickle
	Text   string
}

func (Write) Kind() Kind { return KindWrite }

func (e Write) stamped(ts int64) Event {
	e.Time = ts
	return e
}

// Duration converts the difference of two timestamps of the same clock.
func Duration(start, end Event) time.Duration {
	return time.Duration(end.Timestamp() - start.Timestamp())
}
