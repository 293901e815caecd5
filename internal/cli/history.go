package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cuke/internal/filter"
	"github.com/roach88/cuke/internal/report"
	"github.com/roach88/cuke/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
	RunID    string
	Scenario string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Long: `Show the runs recorded with run --db.

Without flags, the most recent runs are listed. --run lists the scenarios of
one run and --scenario lists the outcomes of one scenario across runs.

Example:
  cuke history --db .cuke/history.db
  cuke history --db .cuke/history.db --run 0190a3b2-...
  cuke history --db .cuke/history.db --scenario features/basket.feature:12`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the history database (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of rows")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "list the scenarios of this run (\"latest\" for the most recent)")
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "list the outcomes of the scenario at uri:line")
	_ = cmd.MarkFlagRequired("db")
	cmd.MarkFlagsMutuallyExclusive("run", "scenario")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	configureLogging(cmd.ErrOrStderr(), opts.Verbose)
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := commandContext(cmd)

	st, err := openHistory(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNoHistory, "failed to open history", err)
	}
	defer st.Close()

	switch {
	case opts.Scenario != "":
		return scenarioHistory(ctx, opts, st, formatter, cmd.OutOrStdout())
	case opts.RunID != "":
		return runScenarios(ctx, opts, st, formatter, cmd.OutOrStdout())
	default:
		runs, err := st.Runs(ctx, opts.Limit)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to read runs", err)
		}
		if opts.Format == "json" {
			return formatter.Success(runs)
		}
		return writeRuns(cmd.OutOrStdout(), runs)
	}
}

func runScenarios(ctx context.Context, opts *HistoryOptions, st *store.Store, formatter *OutputFormatter, w io.Writer) error {
	id := opts.RunID
	if id == "latest" {
		id = ""
	}
	run, err := resolveRun(ctx, st, id)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "run not found", err)
	}
	scenarios, err := st.Scenarios(ctx, run.ID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to read scenarios", err)
	}
	if opts.Format == "json" {
		return formatter.Success(scenarios)
	}
	return writeScenarios(w, scenarios, false)
}

func scenarioHistory(ctx context.Context, opts *HistoryOptions, st *store.Store, formatter *OutputFormatter, w io.Writer) error {
	fp, err := filter.ParseFeaturePath(opts.Scenario)
	if err != nil || len(fp.Lines) != 1 {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "--scenario must be uri:line", err)
	}
	uri := filepath.ToSlash(filepath.Clean(fp.Path))
	scenarios, err := st.ScenarioHistory(ctx, store.ScenarioKey(uri, fp.Lines[0]), opts.Limit)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to read scenario history", err)
	}
	if len(scenarios) == 0 {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("no recorded runs of %s", opts.Scenario), nil)
	}
	if opts.Format == "json" {
		return formatter.Success(scenarios)
	}
	return writeScenarios(w, scenarios, true)
}

func writeRuns(w io.Writer, runs []store.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tSTRICT\tSTATUS")
	for _, r := range runs {
		duration := "-"
		if r.Finished() {
			duration = report.FormatDuration(r.FinishedAt.Sub(r.StartedAt))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), duration, r.Strict, r.Status)
	}
	return tw.Flush()
}

func writeScenarios(w io.Writer, scenarios []store.Scenario, withRun bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if withRun {
		fmt.Fprintln(tw, "RUN\tSTATUS\tDURATION\tERROR")
	} else {
		fmt.Fprintln(tw, "SCENARIO\tSTATUS\tDURATION\tNAME")
	}
	for _, sc := range scenarios {
		if withRun {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", sc.RunID, sc.Status, report.FormatDuration(sc.Duration), oneLine(sc.Error))
			continue
		}
		fmt.Fprintf(tw, "%s:%d\t%s\t%s\t%s\n", sc.URI, sc.Line, sc.Status, report.FormatDuration(sc.Duration), sc.Name)
	}
	return tw.Flush()
}

// oneLine joins the lines of a multi-line error message.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// openHistory opens an existing history database. Unlike store.Open it
// never creates one.
func openHistory(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return store.Open(path)
}
