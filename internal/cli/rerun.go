package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/roach88/cuke/internal/report"
	"github.com/roach88/cuke/internal/store"
)

// RerunOptions holds flags for the rerun command.
type RerunOptions struct {
	*RootOptions
	Database string
	RunID    string
}

// RerunResult is the JSON payload of the rerun command.
type RerunResult struct {
	RunID   string   `json:"run_id"`
	Entries []string `json:"entries"`
}

// NewRerunCommand creates the rerun command.
func NewRerunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RerunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rerun",
		Short: "Print the failed scenarios of a recorded run",
		Long: `Print the scenarios of a recorded run that did not pass, in rerun file
format. Each line is uri:line[:line...]. Pending and undefined scenarios are
included when the run was strict.

Example:
  cuke rerun --db .cuke/history.db > rerun.txt
  cuke run --db .cuke/history.db @rerun.txt`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRerun(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the history database (required)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id (default: latest run)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runRerun(opts *RerunOptions, cmd *cobra.Command) error {
	configureLogging(cmd.ErrOrStderr(), opts.Verbose)
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := commandContext(cmd)

	st, err := openHistory(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNoHistory, "failed to open history", err)
	}
	defer st.Close()

	run, err := resolveRun(ctx, st, opts.RunID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "run not found", err)
	}

	failed, err := st.FailedScenarios(ctx, run.ID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to read scenarios", err)
	}

	// Group lines per feature, in the order the features first failed.
	lines := orderedmap.New[string, []int]()
	for _, sc := range failed {
		prev, _ := lines.Get(sc.URI)
		lines.Set(sc.URI, append(prev, sc.Line))
	}
	entries := make([]string, 0, lines.Len())
	for pair := lines.Oldest(); pair != nil; pair = pair.Next() {
		entries = append(entries, report.FormatRerunEntry(pair.Key, pair.Value))
	}

	if opts.Format == "json" {
		return formatter.Success(RerunResult{RunID: run.ID, Entries: entries})
	}
	if len(entries) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(entries, "\n"))
	}
	formatter.VerboseLog("run %s: %d failed scenarios", run.ID, len(failed))
	return nil
}

// resolveRun returns the run with the given id, or the latest run.
func resolveRun(ctx context.Context, st *store.Store, id string) (store.Run, error) {
	if id == "" {
		return st.LatestRun(ctx)
	}
	return st.GetRun(ctx, id)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
