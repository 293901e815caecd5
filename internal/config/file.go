package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// FileNames are the config file names searched for, in order.
var FileNames = []string{"cuke.yaml", "cuke.yml", "cuke.cue"}

// FileConfig is the structured file configuration. Nil fields are unset.
type FileConfig struct {
	Paths            []string        `yaml:"paths" json:"paths,omitempty"`
	Glue             []string        `yaml:"glue" json:"glue,omitempty"`
	Tags             []string        `yaml:"tags" json:"tags,omitempty"`
	Names            []string        `yaml:"names" json:"names,omitempty"`
	Plugin           []string        `yaml:"plugin" json:"plugin,omitempty"`
	Strict           *bool           `yaml:"strict" json:"strict,omitempty"`
	DryRun           *bool           `yaml:"dry_run" json:"dry_run,omitempty"`
	BeforeHookPolicy *string         `yaml:"before_hook_policy" json:"before_hook_policy,omitempty"`
	DB               *string         `yaml:"db" json:"db,omitempty"`
	Metrics          *string         `yaml:"metrics" json:"metrics,omitempty"`
	OTel             *OTelFileConfig `yaml:"otel" json:"otel,omitempty"`
}

// OTelFileConfig is the otel section of a config file.
type OTelFileConfig struct {
	Endpoint    *string `yaml:"endpoint" json:"endpoint,omitempty"`
	Insecure    *bool   `yaml:"insecure" json:"insecure,omitempty"`
	Headers     *string `yaml:"headers" json:"headers,omitempty"`
	ServiceName *string `yaml:"service_name" json:"service_name,omitempty"`
}

// FindFile returns the first config file present in dir, or "".
func FindFile(dir string) string {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// ReadFile parses a config file. The format follows the extension.
func ReadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	switch filepath.Ext(path) {
	case ".cue":
		return ParseCUE(path, data)
	case ".yaml", ".yml":
		return ParseYAML(path, data)
	default:
		return nil, fmt.Errorf("config %s: unsupported file type", path)
	}
}

// ParseYAML decodes YAML config. Unknown keys are rejected.
func ParseYAML(path string, data []byte) (*FileConfig, error) {
	var fc FileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &fc, nil
}

// ParseCUE validates CUE config against the embedded schema and decodes it.
func ParseCUE(path string, data []byte) (*FileConfig, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("config schema: %w", err)
	}

	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	var fc FileConfig
	if err := unified.Decode(&fc); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &fc, nil
}

// Apply overlays the set fields of fc onto cfg.
func (fc *FileConfig) Apply(cfg *Config) {
	if fc == nil {
		return
	}
	if fc.Paths != nil {
		cfg.Paths = fc.Paths
	}
	if fc.Glue != nil {
		cfg.Glue = fc.Glue
	}
	if fc.Tags != nil {
		cfg.Tags = fc.Tags
	}
	if fc.Names != nil {
		cfg.Names = fc.Names
	}
	if fc.Plugin != nil {
		cfg.Plugins = fc.Plugin
	}
	setBool(&cfg.Strict, fc.Strict)
	setBool(&cfg.DryRun, fc.DryRun)
	setString(&cfg.BeforeHookPolicy, fc.BeforeHookPolicy)
	setString(&cfg.DB, fc.DB)
	setString(&cfg.Metrics, fc.Metrics)
	if o := fc.OTel; o != nil {
		setString(&cfg.OTel.Endpoint, o.Endpoint)
		setBool(&cfg.OTel.Insecure, o.Insecure)
		setString(&cfg.OTel.Headers, o.Headers)
		setString(&cfg.OTel.ServiceName, o.ServiceName)
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
