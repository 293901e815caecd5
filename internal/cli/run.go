package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cuke/internal/backend/shell"
	"github.com/roach88/cuke/internal/config"
	"github.com/roach88/cuke/internal/event"
	"github.com/roach88/cuke/internal/glue"
	"github.com/roach88/cuke/internal/metrics"
	"github.com/roach88/cuke/internal/pickle"
	"github.com/roach88/cuke/internal/report"
	"github.com/roach88/cuke/internal/runtime"
	"github.com/roach88/cuke/internal/store"
	"github.com/roach88/cuke/internal/telemetry"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	featureFlags

	Plugins          []string
	Strict           bool
	DryRun           bool
	BeforeHookPolicy string
	Database         string
	Metrics          string
	OTelEndpoint     string
	Color            bool

	// RunIDGenerator allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDGenerator runtime.RunIDGenerator
	// Clock allows overriding the event clock (for testing).
	Clock event.TimeSource
}

// RunResult is the JSON payload of a finished run.
type RunResult struct {
	RunID     string         `json:"run_id"`
	Status    string         `json:"status"` // "passed" | "failed"
	Scenarios map[string]int `json:"scenarios"`
	Steps     map[string]int `json:"steps"`
	Failed    []string       `json:"failed,omitempty"` // uri:line of every scenario that did not pass
	Duration  string         `json:"duration"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Run feature files",
		Long: `Run the scenarios of the given feature files and directories.

A path may select scenarios by line (features/basket.feature:12:30), and an
@-prefixed path reads such entries from a rerun file. Without paths, the
configured paths are used (default: features).

Exit status is 0 when every scenario passed, 1 when a scenario failed and 2
on a configuration error.

Example:
  cuke run --glue steps features
  cuke run -t "@smoke and not @wip" -p pretty -p json:out/events.ndjson
  cuke run --db .cuke/history.db @rerun.txt`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeatures(opts, args, cmd)
		},
	}

	opts.featureFlags.register(cmd)
	cmd.Flags().StringArrayVarP(&opts.Plugins, "plugin", "p", nil, "formatter as name[:path] (pretty|progress|json|rerun)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "treat pending and undefined steps as failures")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "match steps without executing them")
	cmd.Flags().StringVar(&opts.BeforeHookPolicy, "before-hook-policy", "attempt", "steps after a failed before hook: attempt or skip")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite history database")
	cmd.Flags().StringVar(&opts.Metrics, "metrics", "", "write Prometheus metrics to this file")
	cmd.Flags().StringVar(&opts.OTelEndpoint, "otel-endpoint", "", "export traces to this OTLP gRPC endpoint")
	cmd.Flags().BoolVar(&opts.Color, "color", false, "force colored output")

	return cmd
}

// applyFlags overlays the flags given on the command line.
func (opts *RunOptions) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	opts.featureFlags.apply(cmd, cfg)
	flags := cmd.Flags()
	if flags.Changed("plugin") {
		cfg.Plugins = opts.Plugins
	}
	if flags.Changed("strict") {
		cfg.Strict = opts.Strict
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = opts.DryRun
	}
	if flags.Changed("before-hook-policy") {
		cfg.BeforeHookPolicy = opts.BeforeHookPolicy
	}
	if flags.Changed("db") {
		cfg.DB = opts.Database
	}
	if flags.Changed("metrics") {
		cfg.Metrics = opts.Metrics
	}
	if flags.Changed("otel-endpoint") {
		cfg.OTel.Endpoint = opts.OTelEndpoint
	}
}

func runFeatures(opts *RunOptions, args []string, cmd *cobra.Command) error {
	configureLogging(cmd.ErrOrStderr(), opts.Verbose)
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := loadConfig(opts.RootOptions, cmd, args, func(c *config.Config) { opts.applyFlags(cmd, c) })
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}
	rtOpts, paths, err := cfg.RuntimeOptions()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid feature paths", err)
	}

	// Reports go to stdout in text mode. In JSON mode stdout carries the
	// response, so they move to stderr.
	reportOut := cmd.OutOrStdout()
	if opts.Format == "json" {
		reportOut = cmd.ErrOrStderr()
	}
	reportOpts := report.Options{Strict: cfg.Strict, Color: opts.Color}

	var backends []glue.Backend
	if len(cfg.Glue) > 0 {
		backends = append(backends, shell.New(cfg.Glue))
	}

	rtOptions := []runtime.Option{runtime.WithSummaryPrinter(report.NewSummary(reportOut, reportOpts))}
	if opts.RunIDGenerator != nil {
		rtOptions = append(rtOptions, runtime.WithRunIDGenerator(opts.RunIDGenerator))
	}
	if opts.Clock != nil {
		rtOptions = append(rtOptions, runtime.WithClock(opts.Clock))
	}
	rt, err := runtime.New(rtOpts, pickle.NewFSLoader(paths...), glue.Backends(backends...), rtOptions...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid filters", err)
	}

	closePlugins, err := subscribePlugins(rt.Bus(), cfg.Plugins, reportOut, reportOpts)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to open formatter output", err)
	}
	defer closePlugins()

	var collector *metrics.Collector
	if cfg.Metrics != "" {
		collector = metrics.NewCollector()
		collector.Subscribe(rt.Bus())
	}

	var recorder *store.Recorder
	if cfg.DB != "" {
		st, err := openStore(cfg.DB)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		recorder = store.NewRecorder(st, cfg.Strict)
		recorder.Subscribe(rt.Bus())
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	tp, shutdown, err := telemetry.Init(ctx, cfg.Telemetry())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to start tracing", err)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Warn("trace export failed", "error", err)
		}
	}()
	if tp != nil {
		telemetry.NewTracer(tp).Subscribe(rt.Bus())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, stopping run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Debug("run starting", "paths", paths, "glue", cfg.Glue, "strict", cfg.Strict)
	if err := rt.Run(ctx); err != nil {
		switch {
		case errors.Is(err, glue.ErrNoBackends):
			return formatter.Fail(ExitCommandError, ErrCodeNoBackends, "no step definitions, pass --glue", err)
		case errors.Is(err, context.Canceled):
			return formatter.Fail(ExitFailure, ErrCodeGeneric, "run interrupted", err)
		default:
			return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, "failed to load features", err)
		}
	}

	if collector != nil {
		if err := collector.Write(cfg.Metrics); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to write metrics", err)
		}
	}
	if recorder != nil {
		if err := recorder.Err(); err != nil {
			slog.Warn("run history incomplete", "db", cfg.DB, "error", err)
		}
	}

	failed := rt.ExitStatus() != runtime.ExitOK
	if opts.Format == "json" {
		if err := formatter.SuccessRun(rt.RunID(), newRunResult(rt)); err != nil {
			return WrapExitError(ExitCommandError, "failed to write result", err)
		}
	}
	if failed {
		return WrapExitError(ExitFailure, "run", ErrScenariosFailed)
	}
	return nil
}

func newRunResult(rt *runtime.Runtime) RunResult {
	snap := rt.Stats().Snapshot()
	res := RunResult{
		RunID:     rt.RunID(),
		Status:    "passed",
		Scenarios: map[string]int{},
		Steps:     map[string]int{},
		Duration:  snap.Duration.String(),
	}
	if rt.ExitStatus() != runtime.ExitOK {
		res.Status = "failed"
	}
	for st, n := range snap.Scenarios {
		res.Scenarios[st.String()] = n
	}
	for st, n := range snap.Steps {
		res.Steps[st.String()] = n
	}
	for _, ref := range snap.Failed {
		res.Failed = append(res.Failed, fmt.Sprintf("%s:%d", ref.URI, ref.Line))
	}
	return res
}

// subscribePlugins registers the formatters on bus. A plugin without a
// path writes to out. The returned func closes the opened files.
func subscribePlugins(bus event.Bus, specs []string, out io.Writer, opts report.Options) (func(), error) {
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			if err := f.Close(); err != nil {
				slog.Warn("error closing formatter output", "path", f.Name(), "error", err)
			}
		}
	}

	for _, s := range specs {
		plugin, err := report.ParsePlugin(s)
		if err != nil {
			closeAll()
			return nil, err
		}
		w := out
		if plugin.Path != "" {
			f, err := createFile(plugin.Path)
			if err != nil {
				closeAll()
				return nil, err
			}
			files = append(files, f)
			w = f
		}
		fm, err := report.New(plugin.Name, w, opts)
		if err != nil {
			closeAll()
			return nil, err
		}
		fm.Subscribe(bus)
		slog.Debug("formatter registered", "plugin", plugin.String())
	}
	return closeAll, nil
}

func createFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.Create(path)
}

// openStore opens the history database, creating its directory.
func openStore(path string) (*store.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return store.Open(path)
}
