package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/cuke/internal/backend/shell"
	"github.com/roach88/cuke/internal/config"
	"github.com/roach88/cuke/internal/glue"
	"github.com/roach88/cuke/internal/report"
)

// StepsOptions holds flags for the steps command.
type StepsOptions struct {
	*RootOptions
	featureFlags
	Color bool
}

// NewStepsCommand creates the steps command.
func NewStepsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StepsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "steps",
		Short: "List step definitions",
		Long: `Load the glue and list every step definition with its location.

Loading fails when two definitions share a pattern, so the command also
checks the glue for duplicates.

Example:
  cuke steps --glue steps`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSteps(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.glue, "glue", "g", nil, "shell glue files or directories")
	cmd.Flags().BoolVar(&opts.Color, "color", false, "force colored output")

	return cmd
}

func runSteps(opts *StepsOptions, cmd *cobra.Command) error {
	configureLogging(cmd.ErrOrStderr(), opts.Verbose)
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := loadConfig(opts.RootOptions, cmd, nil, func(c *config.Config) { opts.featureFlags.apply(cmd, c) })
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	var backends []glue.Backend
	if len(cfg.Glue) > 0 {
		backends = append(backends, shell.New(cfg.Glue))
	}
	reg, err := glue.Load(backends, nil)
	if err != nil {
		if errors.Is(err, glue.ErrNoBackends) {
			return formatter.Fail(ExitCommandError, ErrCodeNoBackends, "no step definitions, pass --glue", err)
		}
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, "failed to load glue", err)
	}

	defs := report.CollectStepDefinitions(reg)
	if opts.Format == "json" {
		return formatter.Success(defs)
	}
	if err := report.WriteStepDefinitions(cmd.OutOrStdout(), defs, report.Options{Color: opts.Color}); err != nil {
		return WrapExitError(ExitCommandError, "failed to write step definitions", err)
	}
	return nil
}
