package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/roach88/cuke/internal/backend/shell"
	"github.com/roach88/cuke/internal/config"
	"github.com/roach88/cuke/internal/describe"
	"github.com/roach88/cuke/internal/glue"
	"github.com/roach88/cuke/internal/pickle"
	"github.com/roach88/cuke/internal/runtime"
)

// DescribeOptions holds flags for the describe command.
type DescribeOptions struct {
	*RootOptions
	featureFlags

	Steps             bool
	FilenameSafeNames bool
	Strict            bool
	Execute           bool
}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DescribeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "describe [paths...]",
		Short: "Print the description tree of the selected scenarios",
		Long: `Print features, scenarios and, with --steps, steps as the tree a host
test runner sees. Every scenario and step carries its identity, uri:line.

With --execute the scenarios also run, and each node's outcome is printed
as it is notified.

Example:
  cuke describe --glue steps --steps features
  cuke describe --glue steps --execute -t @smoke`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDescribe(opts, args, cmd)
		},
	}

	opts.featureFlags.register(cmd)
	cmd.Flags().BoolVar(&opts.Steps, "steps", false, "describe steps as children of their scenario")
	cmd.Flags().BoolVar(&opts.FilenameSafeNames, "filename-compatible-names", false, "sanitize display names for use in file names")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "report pending and undefined steps as failures")
	cmd.Flags().BoolVar(&opts.Execute, "execute", false, "run the scenarios and print their outcomes")

	return cmd
}

func runDescribe(opts *DescribeOptions, args []string, cmd *cobra.Command) error {
	configureLogging(cmd.ErrOrStderr(), opts.Verbose)
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := commandContext(cmd)

	cfg, err := loadConfig(opts.RootOptions, cmd, args, func(c *config.Config) {
		opts.featureFlags.apply(cmd, c)
		if cmd.Flags().Changed("strict") {
			c.Strict = opts.Strict
		}
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}
	rtOpts, paths, err := cfg.RuntimeOptions()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid feature paths", err)
	}

	var backends []glue.Backend
	if len(cfg.Glue) > 0 {
		backends = append(backends, shell.New(cfg.Glue))
	}
	rt, err := runtime.New(rtOpts, pickle.NewFSLoader(paths...), glue.Backends(backends...))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid filters", err)
	}

	bridge, err := describe.New(ctx, rt, describe.Options{
		StepNotifications:       opts.Steps,
		FilenameCompatibleNames: opts.FilenameSafeNames,
		Strict:                  cfg.Strict,
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, "failed to build description", err)
	}

	if !opts.Execute {
		if opts.Format == "json" {
			return formatter.Success(bridge.Description())
		}
		if err := describe.Render(cmd.OutOrStdout(), bridge.Description()); err != nil {
			return WrapExitError(ExitCommandError, "failed to write description", err)
		}
		return nil
	}

	n := &printNotifier{w: cmd.OutOrStdout(), failed: map[*describe.Description]bool{}}
	if err := bridge.Run(ctx, n); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "run interrupted", err)
	}
	if rt.ExitStatus() != runtime.ExitOK {
		return WrapExitError(ExitFailure, "run", ErrScenariosFailed)
	}
	return nil
}

// printNotifier prints one line per finished description node.
type printNotifier struct {
	mu     sync.Mutex
	w      io.Writer
	failed map[*describe.Description]bool
}

func (n *printNotifier) TestStarted(*describe.Description) {}

func (n *printNotifier) TestFinished(d *describe.Description) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failed[d] {
		delete(n.failed, d)
		return
	}
	fmt.Fprintf(n.w, "ok    %s\n", label(d))
}

func (n *printNotifier) TestFailure(d *describe.Description, err error) {
	n.mark(d, "FAIL", err)
}

func (n *printNotifier) TestAssumptionFailure(d *describe.Description, err error) {
	n.mark(d, "skip", err)
}

func (n *printNotifier) TestIgnored(d *describe.Description) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, "ignored %s\n", label(d))
}

func (n *printNotifier) mark(d *describe.Description, verdict string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failed[d] {
		return
	}
	n.failed[d] = true
	fmt.Fprintf(n.w, "%-5s %s: %v\n", verdict, label(d), err)
}

func label(d *describe.Description) string {
	if d.Identity == nil {
		return d.DisplayName
	}
	return d.DisplayName + " [" + d.Identity.String() + "]"
}
