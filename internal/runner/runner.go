// Package runner executes one pickle at a time against a glue registry.
//
// A scenario moves through NotStarted → RunningBeforeHooks → RunningSteps →
// RunningAfterHooks → Finished. Every transition is published on the
// runner's bus:
//
//	ScenarioStarted
//	  HookStarted/HookFinished        (before hooks, ascending order)
//	  StepStarted/StepFinished        (document order)
//	  SnippetSuggested                (undefined steps only)
//	  HookStarted/HookFinished        (after hooks, always run)
//	ScenarioFinished                  (most severe status)
//
// A Runner is bound to a single caller and is not re-entrant.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/cuke/internal/event"
	"github.com/roach88/cuke/internal/glue"
	"github.com/roach88/cuke/internal/pickle"
	"github.com/roach88/cuke/internal/result"
)

// ErrRunnerBusy is returned when RunPickle is called while another call on
// the same Runner is in progress.
var ErrRunnerBusy = errors.New("runner is already executing a scenario")

// BeforeHookPolicy decides what happens to steps after a before hook fails.
type BeforeHookPolicy int

const (
	// AttemptSteps executes the steps anyway and records their results.
	AttemptSteps BeforeHookPolicy = iota
	// SkipSteps reports every step skipped without executing it.
	SkipSteps
)

// String returns the policy name used in configuration.
func (p BeforeHookPolicy) String() string {
	if p == SkipSteps {
		return "skip"
	}
	return "attempt"
}

// ParseBeforeHookPolicy parses "attempt" or "skip". Empty selects the default.
func ParseBeforeHookPolicy(s string) (BeforeHookPolicy, bool) {
	switch s {
	case "", "attempt":
		return AttemptSteps, true
	case "skip":
		return SkipSteps, true
	}
	return AttemptSteps, false
}

// State is the lifecycle position of the current scenario.
type State int32

const (
	NotStarted State = iota
	RunningBeforeHooks
	RunningSteps
	RunningAfterHooks
	Finished
)

// Options configures a Runner.
type Options struct {
	// DryRun skips hooks and reports defined steps as skipped.
	DryRun bool
	// BeforeHookPolicy applies when a before hook does not pass.
	BeforeHookPolicy BeforeHookPolicy
}

// Runner executes pickles.
type Runner struct {
	glue  *glue.Registry
	bus   event.Bus
	opts  Options
	busy  atomic.Bool
	state atomic.Int32
}

// New creates a runner over a frozen registry.
func New(registry *glue.Registry, bus event.Bus, opts Options) *Runner {
	return &Runner{glue: registry, bus: bus, opts: opts}
}

// Bus returns the bus the runner publishes on.
func (r *Runner) Bus() event.Bus { return r.bus }

// Glue returns the registry the runner resolves steps against.
func (r *Runner) Glue() *glue.Registry { return r.glue }

// State returns the lifecycle position of the scenario being run.
func (r *Runner) State() State { return State(r.state.Load()) }

// scenarioRun holds the mutable state of one RunPickle call.
type scenarioRun struct {
	mu       sync.Mutex
	statuses []result.Status
	errs     []error
}

func (s *scenarioRun) record(res result.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, res.Status)
	if res.Err != nil {
		s.errs = append(s.errs, res.Err)
	}
}

func (s *scenarioRun) status() result.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return result.Worst(s.statuses...)
}

func (s *scenarioRun) firstError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) == 0 {
		return nil
	}
	return s.errs[0]
}

// RunPickle executes one pickle and returns its aggregated result. The only
// error it returns is ErrRunnerBusy; scenario failures are part of the
// result.
func (r *Runner) RunPickle(ctx context.Context, p *pickle.Pickle) (result.Result, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return result.Result{}, ErrRunnerBusy
	}
	defer r.busy.Store(false)
	defer r.state.Store(int32(NotStarted))

	run := &scenarioRun{}
	start := r.bus.Time()
	r.bus.Send(event.ScenarioStarted{Pickle: p})

	scenario := glue.NewScenario(p, run.status, func(text string) {
		r.bus.Send(event.Write{Pickle: p, Text: text})
	})
	ctx = glue.WithScenario(ctx, scenario)

	tags := p.TagNames()

	r.state.Store(int32(RunningBeforeHooks))
	beforeFailed := false
	if !r.opts.DryRun {
		for _, h := range r.glue.Hooks(event.PhaseBefore, tags) {
			res := r.runHook(ctx, p, h, scenario)
			run.record(res)
			if res.Status != result.Passed {
				beforeFailed = true
			}
		}
	}

	r.state.Store(int32(RunningSteps))
	skipping := beforeFailed && r.opts.BeforeHookPolicy == SkipSteps
	aborted := false
	for i, step := range p.Steps {
		if aborted {
			res := r.reportStep(p, step, i, "", result.New(result.Skipped, 0, nil))
			run.record(res)
			continue
		}
		res := r.runStep(ctx, p, step, i, skipping)
		run.record(res)
		if res.Status != result.Passed {
			skipping = true
		}
		if res.Status == result.Ambiguous {
			aborted = true
		}
	}

	r.state.Store(int32(RunningAfterHooks))
	if !r.opts.DryRun {
		for _, h := range r.glue.Hooks(event.PhaseAfter, tags) {
			run.record(r.runHook(ctx, p, h, scenario))
		}
	}

	scenario.End()
	r.state.Store(int32(Finished))
	end := r.bus.Time()
	final := result.New(run.status(), time.Duration(end-start), run.firstError())
	r.bus.Send(event.ScenarioFinished{Pickle: p, Result: final})

	slog.Debug("scenario finished",
		"uri", p.URI,
		"line", p.Line(),
		"name", p.Name,
		"status", final.Status.String(),
	)
	return final, nil
}

func (r *Runner) runHook(ctx context.Context, p *pickle.Pickle, h *glue.HookDefinition, s *glue.Scenario) result.Result {
	r.bus.Send(event.HookStarted{Pickle: p, Phase: h.Phase, Location: h.Location})
	start := r.bus.Time()
	err := h.Execute(ctx, s)
	res := result.New(glue.StatusOf(err), time.Duration(r.bus.Time()-start), err)
	r.bus.Send(event.HookFinished{Pickle: p, Phase: h.Phase, Location: h.Location, Result: res})
	if err != nil {
		slog.Debug("hook did not pass", "location", h.Location, "phase", string(h.Phase), "error", err)
	}
	return res
}

// runStep resolves and, unless skipping, executes one step.
func (r *Runner) runStep(ctx context.Context, p *pickle.Pickle, step *pickle.Step, index int, skipping bool) result.Result {
	binding, err := r.glue.Match(step)
	if err != nil {
		var undefined *glue.UndefinedStepError
		if errors.As(err, &undefined) {
			r.bus.Send(event.StepStarted{Pickle: p, Step: step, Index: index})
			r.bus.Send(event.SnippetSuggested{Pickle: p, Step: step, Snippets: undefined.Snippets})
			res := result.New(result.Undefined, 0, err)
			r.bus.Send(event.StepFinished{Pickle: p, Step: step, Index: index, Result: res})
			return res
		}
		return r.reportStep(p, step, index, "", result.New(glue.StatusOf(err), 0, err))
	}

	location := binding.Location()
	if skipping || r.opts.DryRun {
		return r.reportStep(p, step, index, location, result.New(result.Skipped, 0, nil))
	}

	r.bus.Send(event.StepStarted{Pickle: p, Step: step, Index: index, Location: location})
	start := r.bus.Time()
	err = binding.Execute(ctx)
	res := result.New(glue.StatusOf(err), time.Duration(r.bus.Time()-start), err)
	r.bus.Send(event.StepFinished{Pickle: p, Step: step, Index: index, Location: location, Result: res})
	return res
}

// reportStep publishes a step that is not executed.
func (r *Runner) reportStep(p *pickle.Pickle, step *pickle.Step, index int, location string, res result.Result) result.Result {
	r.bus.Send(event.StepStarted{Pickle: p, Step: step, Index: index, Location: location})
	r.bus.Send(event.StepFinished{Pickle: p, Step: step, Index: index, Location: location, Result: res})
	return res
}
