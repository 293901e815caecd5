package harness

import (
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/roach88/cuke/internal/backend/shell"
	"github.com/roach88/cuke/internal/event"
	"github.com/roach88/cuke/internal/filter"
	"github.com/roach88/cuke/internal/glue"
	"github.com/roach88/cuke/internal/pickle"
	"github.com/roach88/cuke/internal/report"
	"github.com/roach88/cuke/internal/runner"
	"github.com/roach88/cuke/internal/runtime"
	"github.com/roach88/cuke/internal/testutil"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion holds.
	Pass bool `json:"pass"`

	RunID string `json:"run_id"`

	// Exit is the exit status derived from the run statistics.
	Exit int `json:"exit"`

	// Trace holds every published event, flattened, in delivery order.
	Trace []report.Record `json:"trace"`

	// Errors holds the failed assertions.
	Errors []string `json:"errors,omitempty"`
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Run executes a scenario and evaluates its assertions.
//
// The run uses a deterministic clock and the scenario's fixed run id.
// backends are loaded after the inline glue.
func Run(s *Scenario, backends ...glue.Backend) (*Result, error) {
	return RunContext(context.Background(), s, backends...)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, s *Scenario, backends ...glue.Backend) (*Result, error) {
	policy, ok := runner.ParseBeforeHookPolicy(s.BeforeHookPolicy)
	if !ok {
		return nil, fmt.Errorf("scenario %s: invalid before_hook_policy %q", s.Name, s.BeforeHookPolicy)
	}

	uri := s.URI
	if uri == "" {
		uri = path.Join("features", s.Name+".feature")
	}
	runID := s.RunID
	if runID == "" {
		runID = DefaultRunID
	}

	var all []glue.Backend
	if s.Glue != nil {
		all = append(all, shell.New(nil, shell.WithFiles(s.Glue)))
	}
	all = append(all, backends...)

	opts := runtime.Options{
		Strict:           s.Strict,
		DryRun:           s.DryRun,
		BeforeHookPolicy: policy,
		Filters:          filter.Options{Tags: s.Tags, Names: s.Names},
	}
	rt, err := runtime.New(opts,
		pickle.StaticLoader([]string{uri}, map[string]string{uri: s.Feature}),
		glue.Backends(all...),
		runtime.WithClock(testutil.NewDeterministicClock()),
		runtime.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(runID)),
	)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	res := &Result{Pass: true, RunID: runID, Trace: []report.Record{}}
	var mu sync.Mutex
	rt.Bus().SubscribeAll(func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		res.Trace = append(res.Trace, report.NewRecord(e))
	})

	if err := rt.Run(ctx); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	res.Exit = rt.ExitStatus()

	for _, msg := range EvaluateAssertions(res, s.Assertions) {
		res.AddError(msg)
	}
	return res, nil
}
