package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/cuke/internal/config"
)

// featureFlags are the settings shared by commands that select scenarios.
type featureFlags struct {
	glue  []string
	tags  []string
	names []string
}

func (f *featureFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.glue, "glue", "g", nil, "shell glue files or directories")
	cmd.Flags().StringArrayVarP(&f.tags, "tags", "t", nil, "tag expression; repeat to AND several")
	cmd.Flags().StringArrayVarP(&f.names, "name", "n", nil, "regular expression matched against scenario names")
}

func (f *featureFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("glue") {
		cfg.Glue = f.glue
	}
	if cmd.Flags().Changed("tags") {
		cfg.Tags = f.tags
	}
	if cmd.Flags().Changed("name") {
		cfg.Names = f.names
	}
}

// loadConfig merges the config file, the environment, the changed flags
// and the positional feature paths. Flags win.
func loadConfig(root *RootOptions, cmd *cobra.Command, args []string, apply func(*config.Config)) (config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		File:    root.Config,
		Dir:     ".",
		EnvFile: root.EnvFile,
	})
	if err != nil {
		return config.Config{}, err
	}
	if len(args) > 0 {
		cfg.Paths = args
	}
	if apply != nil {
		apply(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
