// Package runtime is the top-level control loop of a run.
//
// A Runtime loads every feature up front, loads the glue once, then compiles
// each feature, filters its pickles and drives the matching ones through a
// Session. Statistics and undefined-step snippets are collected by
// subscribers on the root bus; the exit status is derived from them.
//
// Error taxonomy:
//   - configuration errors (unparsable features, no backends, invalid
//     filters, duplicate step definitions) are returned before any event is
//     published
//   - undefined, ambiguous, failed and pending outcomes are scenario results
//     and never abort the run
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/cuke/internal/event"
	"github.com/roach88/cuke/internal/filter"
	"github.com/roach88/cuke/internal/glue"
	"github.com/roach88/cuke/internal/pickle"
	"github.com/roach88/cuke/internal/runner"
	"github.com/roach88/cuke/internal/stats"
)

// Exit statuses.
const (
	ExitOK     = 0
	ExitFailed = 1
)

// Options configures a run.
type Options struct {
	// Strict treats pending and undefined outcomes as failures.
	Strict bool
	// DryRun resolves steps without executing hooks or step bodies.
	DryRun bool
	// BeforeHookPolicy applies when a before hook does not pass.
	BeforeHookPolicy runner.BeforeHookPolicy
	// Filters selects the pickles to run.
	Filters filter.Options
}

// Summary is handed to the SummaryPrinter once, at the end of a run.
type Summary struct {
	RunID    string
	Strict   bool
	Stats    stats.Snapshot
	Snippets []string
}

// SummaryPrinter prints the end-of-run summary.
type SummaryPrinter interface {
	PrintSummary(s Summary)
}

// SummaryPrinterFunc adapts a function to SummaryPrinter.
type SummaryPrinterFunc func(s Summary)

// PrintSummary implements SummaryPrinter.
func (f SummaryPrinterFunc) PrintSummary(s Summary) { f(s) }

type nopSummaryPrinter struct{}

func (nopSummaryPrinter) PrintSummary(Summary) {}

// Option configures a Runtime.
type Option func(*Runtime)

// WithClock stamps events from clock. Ignored when WithBus is also given.
func WithClock(clock event.TimeSource) Option {
	return func(rt *Runtime) { rt.clock = clock }
}

// WithBus uses bus as the root bus.
func WithBus(bus *event.SyncBus) Option {
	return func(rt *Runtime) { rt.bus = bus }
}

// WithSummaryPrinter sets the printer used at the end of Run.
func WithSummaryPrinter(p SummaryPrinter) Option {
	return func(rt *Runtime) { rt.summary = p }
}

// WithRunIDGenerator sets the generator of run ids.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(rt *Runtime) { rt.ids = g }
}

// Runtime orchestrates a run.
//
// Thread-safety: a Runtime may be shared by several goroutines, each with
// its own Session. The root bus, statistics and glue registry are safe for
// concurrent use.
type Runtime struct {
	opts     Options
	loader   pickle.Loader
	provider glue.Provider

	clock     event.TimeSource
	bus       *event.SyncBus
	filters   filter.Chain
	stats     *stats.Stats
	undefined *stats.UndefinedStepsTracker
	summary   SummaryPrinter
	ids       RunIDGenerator

	glueMu sync.Mutex
	glue   *glue.Registry

	runID string
}

// New builds a runtime. Invalid filters are reported here.
func New(opts Options, loader pickle.Loader, provider glue.Provider, options ...Option) (*Runtime, error) {
	filters, err := filter.New(opts.Filters)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		opts:      opts,
		loader:    loader,
		provider:  provider,
		filters:   filters,
		stats:     stats.New(),
		undefined: stats.NewUndefinedStepsTracker(),
		summary:   nopSummaryPrinter{},
		ids:       UUIDv7Generator{},
	}
	for _, o := range options {
		o(rt)
	}
	if rt.bus == nil {
		rt.bus = event.NewBus(rt.clock)
	}
	rt.stats.Subscribe(rt.bus)
	rt.undefined.Subscribe(rt.bus)
	return rt, nil
}

// Bus returns the root bus. Reporters subscribe here before Run.
func (rt *Runtime) Bus() event.Bus { return rt.bus }

// Options returns the run options.
func (rt *Runtime) Options() Options { return rt.opts }

// Stats returns the run statistics.
func (rt *Runtime) Stats() *stats.Stats { return rt.stats }

// RunID returns the id of the current run, empty before Start.
func (rt *Runtime) RunID() string { return rt.runID }

// Run executes the whole run and prints the summary. The returned error is
// a configuration error or context cancellation; scenario failures are
// reported through ExitStatus.
func (rt *Runtime) Run(ctx context.Context) error {
	features, err := rt.LoadFeatures(ctx)
	if err != nil {
		return err
	}

	session, err := rt.NewSession()
	if err != nil {
		return err
	}
	rt.ReportStepDefinitions(nil)

	rt.Start()
	var runErr error
	for _, f := range features {
		if err := rt.RunFeature(ctx, session, f); err != nil {
			runErr = err
			break
		}
	}
	rt.Finish()
	return runErr
}

// LoadFeatures reads and parses every feature. Any failure aborts the run
// before an event is published.
func (rt *Runtime) LoadFeatures(ctx context.Context) ([]*pickle.Feature, error) {
	features, err := rt.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load features: %w", err)
	}
	slog.Info("features loaded", "count", len(features))
	return features, nil
}

// Glue loads the backends once and returns the shared, frozen registry.
func (rt *Runtime) Glue() (*glue.Registry, error) {
	rt.glueMu.Lock()
	defer rt.glueMu.Unlock()
	if rt.glue != nil {
		return rt.glue, nil
	}
	if rt.provider == nil {
		return nil, glue.ErrNoBackends
	}
	backends, err := rt.provider()
	if err != nil {
		return nil, fmt.Errorf("discover backends: %w", err)
	}
	reg, err := glue.Load(backends, nil)
	if err != nil {
		return nil, err
	}
	rt.glue = reg
	return reg, nil
}

// ReportStepDefinitions passes every loaded step definition to reporter.
// A nil reporter publishes StepDefinitionAdded events on the root bus.
func (rt *Runtime) ReportStepDefinitions(reporter glue.StepDefinitionReporter) {
	reg, err := rt.Glue()
	if err != nil {
		return
	}
	if reporter == nil {
		reporter = glue.ReporterFunc(func(backend string, def glue.StepDefinition) {
			rt.bus.Send(event.StepDefinitionAdded{Backend: backend, Pattern: def.Pattern(), Location: def.Location()})
		})
	}
	reg.Report(reporter)
}

// Start publishes RunStarted under a fresh run id.
func (rt *Runtime) Start() {
	rt.runID = rt.ids.Generate()
	slog.Info("run started", "run_id", rt.runID)
	rt.bus.Send(event.RunStarted{RunID: rt.runID})
}

// Finish publishes RunFinished and prints the summary.
func (rt *Runtime) Finish() {
	rt.bus.Send(event.RunFinished{RunID: rt.runID})
	snap := rt.stats.Snapshot()
	slog.Info("run finished",
		"run_id", rt.runID,
		"scenarios", snap.Scenarios.Total(),
		"steps", snap.Steps.Total(),
		"exit_status", rt.ExitStatus(),
	)
	rt.PrintSummary()
}

// PrintSummary hands the statistics to the summary printer.
func (rt *Runtime) PrintSummary() {
	rt.summary.PrintSummary(Summary{
		RunID:    rt.runID,
		Strict:   rt.opts.Strict,
		Stats:    rt.stats.Snapshot(),
		Snippets: rt.undefined.Snippets(),
	})
}

// CompileFeature expands a feature into its pickles.
func (rt *Runtime) CompileFeature(f *pickle.Feature) ([]*pickle.Pickle, error) {
	return pickle.Compile(f)
}

// MatchesFilters reports whether p is selected by the filter chain.
func (rt *Runtime) MatchesFilters(p *pickle.Pickle) bool {
	return rt.filters.Match(p)
}

// FilteredPickles compiles f and returns the pickles selected by the
// filters, in document order.
func (rt *Runtime) FilteredPickles(f *pickle.Feature) ([]*pickle.Pickle, error) {
	pickles, err := rt.CompileFeature(f)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", f.URI, err)
	}
	out := pickles[:0:0]
	for _, p := range pickles {
		if rt.MatchesFilters(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// RunFeature runs every selected pickle of f through session.
func (rt *Runtime) RunFeature(ctx context.Context, session *Session, f *pickle.Feature) error {
	pickles, err := rt.FilteredPickles(f)
	if err != nil {
		return err
	}
	slog.Debug("running feature", "uri", f.URI, "pickles", len(pickles))
	for _, p := range pickles {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := session.RunPickle(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// ExitStatus derives the process exit status from the statistics.
func (rt *Runtime) ExitStatus() int {
	if rt.stats.HasFailures(rt.opts.Strict) {
		return ExitFailed
	}
	return ExitOK
}

// Errors returns the errors captured from failed steps and hooks.
func (rt *Runtime) Errors() []error {
	return rt.stats.Errors()
}

// Snippets returns the distinct snippets suggested for undefined steps.
func (rt *Runtime) Snippets() []string {
	return rt.undefined.Snippets()
}
