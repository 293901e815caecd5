package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cuke/internal/runner"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(LoadOptions{Dir: t.TempDir(), LookupEnv: noEnv})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "cuke.yaml", `
paths: [specs]
glue: [steps]
tags: ["not @wip"]
plugin: [pretty, "json:out/events.ndjson"]
strict: true
before_hook_policy: skip
db: .cuke/history.db
otel:
  endpoint: localhost:4317
`)

	cfg, err := Load(LoadOptions{Dir: dir, LookupEnv: noEnv})
	require.NoError(t, err)
	assert.Equal(t, []string{"specs"}, cfg.Paths)
	assert.Equal(t, []string{"steps"}, cfg.Glue)
	assert.Equal(t, []string{"not @wip"}, cfg.Tags)
	assert.Equal(t, []string{"pretty", "json:out/events.ndjson"}, cfg.Plugins)
	assert.True(t, cfg.Strict)
	assert.Equal(t, "skip", cfg.BeforeHookPolicy)
	assert.Equal(t, ".cuke/history.db", cfg.DB)
	assert.Equal(t, "localhost:4317", cfg.OTel.Endpoint)
	assert.True(t, cfg.OTel.Insecure, "unset fields keep defaults")
	assert.Equal(t, "cuke", cfg.OTel.ServiceName)
}

func TestLoad_YAMLUnknownField(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "cuke.yml", "strictt: true\n")

	_, err := Load(LoadOptions{Dir: dir, LookupEnv: noEnv})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strictt")
}

func TestLoad_CUE(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cuke.cue", `
paths: ["features/basket.feature:3"]
names: ["apples"]
dry_run: true
otel: service_name: "basket"
`)

	cfg, err := Load(LoadOptions{File: path, LookupEnv: noEnv})
	require.NoError(t, err)
	assert.Equal(t, []string{"features/basket.feature:3"}, cfg.Paths)
	assert.Equal(t, []string{"apples"}, cfg.Names)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "basket", cfg.OTel.ServiceName)
}

func TestLoad_CUESchemaViolation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "wrong type", content: "strict: \"yes\"\n"},
		{name: "unknown field", content: "colour: true\n"},
		{name: "bad policy", content: "before_hook_policy: \"abort\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "cuke.cue", tt.content)
			_, err := Load(LoadOptions{File: path, LookupEnv: noEnv})
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "cuke.yaml", "strict: true\ntags: [\"@a\"]\n")
	envFile := writeFile(t, dir, ".env", "CUKE_DB=from-dotenv.db\nCUKE_TAGS=@dotenv\n")

	cfg, err := Load(LoadOptions{
		Dir:     dir,
		EnvFile: envFile,
		LookupEnv: envMap(map[string]string{
			"CUKE_STRICT": "false",
			"CUKE_TAGS":   "@b, not @c",
			"CUKE_PLUGIN": "pretty,rerun:rerun.txt",
		}),
	})
	require.NoError(t, err)
	assert.False(t, cfg.Strict)
	assert.Equal(t, []string{"@b", "not @c"}, cfg.Tags, "process env wins over dotenv")
	assert.Equal(t, "from-dotenv.db", cfg.DB)
	assert.Equal(t, []string{"pretty", "rerun:rerun.txt"}, cfg.Plugins)
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	_, err := Load(LoadOptions{EnvFile: filepath.Join(t.TempDir(), ".env"), LookupEnv: noEnv})
	assert.NoError(t, err)
}

func TestLoad_InvalidEnvBool(t *testing.T) {
	_, err := Load(LoadOptions{LookupEnv: envMap(map[string]string{"CUKE_DRY_RUN": "maybe"})})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUKE_DRY_RUN")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Paths = nil
	cfg.BeforeHookPolicy = "abort"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no feature paths")
	assert.Contains(t, err.Error(), "before_hook_policy")
}

func TestRuntimeOptions(t *testing.T) {
	cfg := Default()
	cfg.Paths = []string{"features/a.feature:3:9", "features/b.feature"}
	cfg.Tags = []string{"@smoke"}
	cfg.Strict = true
	cfg.BeforeHookPolicy = "skip"

	opts, paths, err := cfg.RuntimeOptions()
	require.NoError(t, err)
	assert.Equal(t, []string{"features/a.feature", "features/b.feature"}, paths)
	assert.Equal(t, map[string][]int{"features/a.feature": {3, 9}}, opts.Filters.Lines)
	assert.Equal(t, []string{"@smoke"}, opts.Filters.Tags)
	assert.True(t, opts.Strict)
	assert.Equal(t, runner.SkipSteps, opts.BeforeHookPolicy)
}

func TestTelemetry(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.Telemetry().Enabled())
	cfg.OTel.Endpoint = "collector:4317"
	tc := cfg.Telemetry()
	assert.True(t, tc.Enabled())
	assert.Equal(t, "cuke", tc.ServiceName)
}
