// Package config assembles the settings of a run.
//
// Values are merged from lowest to highest precedence: Default, a config
// file (cuke.yaml, cuke.yml or cuke.cue), environment variables (CUKE_*,
// optionally seeded from a .env file) and finally command-line flags,
// which the cli package applies on top of the loaded Config.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/cuke/internal/filter"
	"github.com/roach88/cuke/internal/runner"
	"github.com/roach88/cuke/internal/runtime"
	"github.com/roach88/cuke/internal/telemetry"
)

// Config controls a run.
type Config struct {
	// Paths are feature arguments: files, directories, "path:line" entries
	// and "@rerun.txt" files.
	Paths []string
	// Glue are shell glue files or directories.
	Glue             []string
	Tags             []string
	Names            []string
	Plugins          []string
	Strict           bool
	DryRun           bool
	BeforeHookPolicy string
	// DB is the run history database. Empty disables history.
	DB string
	// Metrics is the Prometheus text file written at the end of a run.
	// Empty disables metrics.
	Metrics string
	OTel    OTelConfig
}

// OTelConfig configures trace export.
type OTelConfig struct {
	Endpoint    string
	Insecure    bool
	Headers     string
	ServiceName string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Paths:   []string{"features"},
		Plugins: []string{"progress"},
		OTel: OTelConfig{
			Insecure:    true,
			ServiceName: "cuke",
		},
	}
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if len(c.Paths) == 0 {
		errs = append(errs, errors.New("no feature paths"))
	}
	if _, ok := runner.ParseBeforeHookPolicy(c.BeforeHookPolicy); !ok {
		errs = append(errs, fmt.Errorf("before_hook_policy must be attempt or skip, got %q", c.BeforeHookPolicy))
	}
	for _, f := range c.Plugins {
		if strings.TrimSpace(f) == "" {
			errs = append(errs, errors.New("empty plugin"))
		}
	}
	return errors.Join(errs...)
}

// FeaturePaths expands Paths into loader paths and per-URI line filters.
func (c Config) FeaturePaths() ([]string, map[string][]int, error) {
	return filter.ExpandPaths(c.Paths)
}

// RuntimeOptions converts the configuration into runtime options. Line
// filters come from the feature paths.
func (c Config) RuntimeOptions() (runtime.Options, []string, error) {
	paths, lines, err := c.FeaturePaths()
	if err != nil {
		return runtime.Options{}, nil, err
	}
	policy, ok := runner.ParseBeforeHookPolicy(c.BeforeHookPolicy)
	if !ok {
		return runtime.Options{}, nil, fmt.Errorf("invalid before_hook_policy %q", c.BeforeHookPolicy)
	}
	opts := runtime.Options{
		Strict:           c.Strict,
		DryRun:           c.DryRun,
		BeforeHookPolicy: policy,
		Filters: filter.Options{
			Tags:  c.Tags,
			Names: c.Names,
			Lines: lines,
		},
	}
	return opts, paths, nil
}

// Telemetry converts the OTel settings.
func (c Config) Telemetry() telemetry.Config {
	return telemetry.Config{
		Endpoint:    c.OTel.Endpoint,
		Insecure:    c.OTel.Insecure,
		Headers:     c.OTel.Headers,
		ServiceName: c.OTel.ServiceName,
	}
}
