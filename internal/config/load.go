package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CUKE_"

// LoadOptions locate the configuration sources.
type LoadOptions struct {
	// File is an explicit config file. When empty, Dir is searched.
	File string
	// Dir is searched for FileNames when File is empty.
	Dir string
	// EnvFile is a dotenv file. A missing file is ignored.
	EnvFile string
	// LookupEnv reads the process environment. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load merges defaults, the config file and the environment.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	path := opts.File
	if path == "" && opts.Dir != "" {
		path = FindFile(opts.Dir)
	}
	if path != "" {
		fc, err := ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		fc.Apply(&cfg)
		slog.Debug("config file loaded", "path", path)
	}

	env, err := newEnv(opts)
	if err != nil {
		return Config{}, err
	}
	if err := env.apply(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// env resolves CUKE_* variables from the process environment, falling back
// to the dotenv file.
type env struct {
	lookup func(string) (string, bool)
	dotenv map[string]string
}

func newEnv(opts LoadOptions) (*env, error) {
	e := &env{lookup: opts.LookupEnv, dotenv: map[string]string{}}
	if e.lookup == nil {
		e.lookup = os.LookupEnv
	}
	if opts.EnvFile != "" {
		values, err := godotenv.Read(opts.EnvFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read env file %s: %w", opts.EnvFile, err)
		default:
			e.dotenv = values
		}
	}
	return e, nil
}

func (e *env) get(name string) (string, bool) {
	key := EnvPrefix + name
	if v, ok := e.lookup(key); ok {
		return v, true
	}
	v, ok := e.dotenv[key]
	return v, ok
}

func (e *env) apply(cfg *Config) error {
	e.list("PATHS", &cfg.Paths)
	e.list("GLUE", &cfg.Glue)
	e.list("TAGS", &cfg.Tags)
	e.list("NAME", &cfg.Names)
	e.list("PLUGIN", &cfg.Plugins)
	e.str("BEFORE_HOOK_POLICY", &cfg.BeforeHookPolicy)
	e.str("DB", &cfg.DB)
	e.str("METRICS", &cfg.Metrics)
	e.str("OTEL_ENDPOINT", &cfg.OTel.Endpoint)
	e.str("OTEL_HEADERS", &cfg.OTel.Headers)
	e.str("OTEL_SERVICE_NAME", &cfg.OTel.ServiceName)

	return errors.Join(
		e.boolean("STRICT", &cfg.Strict),
		e.boolean("DRY_RUN", &cfg.DryRun),
		e.boolean("OTEL_INSECURE", &cfg.OTel.Insecure),
	)
}

func (e *env) str(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = strings.TrimSpace(v)
	}
}

// list reads a comma-separated value. Tag expressions use "and"/"or", so a
// comma never appears inside one.
func (e *env) list(name string, dst *[]string) {
	if v, ok := e.get(name); ok {
		*dst = splitCSV(v)
	}
}

func (e *env) boolean(name string, dst *bool) error {
	v, ok := e.get(name)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = b
	return nil
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
