package stats

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cuke/internal/event"
	"github.com/roach88/cuke/internal/pickle"
	"github.com/roach88/cuke/internal/result"
	"github.com/roach88/cuke/internal/testutil"
)

func setup() (*event.SyncBus, *Stats, *UndefinedStepsTracker) {
	bus := event.NewBus(testutil.NewDeterministicClock())
	s := New()
	s.Subscribe(bus)
	u := NewUndefinedStepsTracker()
	u.Subscribe(bus)
	return bus, s, u
}

func finishScenario(bus event.Bus, name string, line int, statuses ...result.Status) {
	p := &pickle.Pickle{URI: "a.feature", Name: name, Locations: []pickle.Location{{Line: line}}}
	bus.Send(event.ScenarioStarted{Pickle: p})
	for i, st := range statuses {
		step := &pickle.Step{Text: name + " step"}
		var err error
		if st == result.Failed {
			err = errors.New(name + " broke")
		}
		bus.Send(event.StepFinished{Pickle: p, Step: step, Index: i, Result: result.New(st, 0, err)})
	}
	bus.Send(event.ScenarioFinished{Pickle: p, Result: result.New(result.Worst(statuses...), 0, nil)})
}

func TestStats_CountsScenariosAndSteps(t *testing.T) {
	bus, s, _ := setup()
	bus.Send(event.RunStarted{})
	finishScenario(bus, "ok", 3, result.Passed, result.Passed)
	finishScenario(bus, "bad", 7, result.Passed, result.Failed, result.Skipped)
	finishScenario(bus, "todo", 11, result.Undefined)
	bus.Send(event.RunFinished{})

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Scenarios[result.Passed])
	assert.Equal(t, 1, snap.Scenarios[result.Failed])
	assert.Equal(t, 1, snap.Scenarios[result.Undefined])
	assert.Equal(t, 3, snap.Scenarios.Total())
	assert.Equal(t, 3, snap.Steps[result.Passed])
	assert.Equal(t, 6, snap.Steps.Total())
	assert.Positive(t, snap.Duration)

	require.Len(t, snap.Failures, 1)
	assert.Equal(t, "a.feature:7 bad [bad step]: bad broke", snap.Failures[0].String())
	assert.Len(t, s.Errors(), 1)

	require.Len(t, snap.Failed, 2)
	assert.Equal(t, ScenarioRef{URI: "a.feature", Line: 7, Name: "bad", Status: result.Failed}, snap.Failed[0])
	assert.Equal(t, 11, snap.Failed[1].Line)
}

func TestStats_HasFailures(t *testing.T) {
	t.Run("undefined only", func(t *testing.T) {
		bus, s, _ := setup()
		finishScenario(bus, "todo", 1, result.Passed, result.Undefined)
		assert.False(t, s.HasFailures(false))
		assert.True(t, s.HasFailures(true))
	})
	t.Run("pending only", func(t *testing.T) {
		bus, s, _ := setup()
		finishScenario(bus, "later", 1, result.Pending)
		assert.False(t, s.HasFailures(false))
		assert.True(t, s.HasFailures(true))
	})
	t.Run("failed", func(t *testing.T) {
		bus, s, _ := setup()
		finishScenario(bus, "bad", 1, result.Failed)
		assert.True(t, s.HasFailures(false))
	})
	t.Run("clean", func(t *testing.T) {
		bus, s, _ := setup()
		finishScenario(bus, "ok", 1, result.Passed, result.Skipped)
		assert.False(t, s.HasFailures(true))
	})
}

func TestStats_FailedHookCaptured(t *testing.T) {
	bus, s, _ := setup()
	p := &pickle.Pickle{URI: "a.feature", Name: "s", Locations: []pickle.Location{{Line: 2}}}
	bus.Send(event.HookFinished{Pickle: p, Phase: event.PhaseAfter, Location: "hooks.go:3", Result: result.New(result.Failed, 0, errors.New("cleanup"))})

	snap := s.Snapshot()
	require.Len(t, snap.Failures, 1)
	assert.Equal(t, "after hook hooks.go:3", snap.Failures[0].Step)
}

func TestUndefinedStepsTracker_DeduplicatesSnippets(t *testing.T) {
	bus, _, u := setup()
	assert.False(t, u.HasUndefinedSteps())

	bus.Send(event.SnippetSuggested{Step: &pickle.Step{Text: "x"}, Snippets: []string{"snip-x", "yaml-x"}})
	bus.Send(event.SnippetSuggested{Step: &pickle.Step{Text: "x"}, Snippets: []string{"snip-x", "yaml-x"}})
	bus.Send(event.SnippetSuggested{Step: &pickle.Step{Text: "y"}, Snippets: []string{"snip-y"}})

	assert.True(t, u.HasUndefinedSteps())
	assert.Equal(t, []string{"snip-x", "yaml-x", "snip-y"}, u.Snippets())
	assert.Equal(t, []string{"x", "x", "y"}, u.UndefinedSteps())
}
