package shell

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GlueExt is the extension of shell glue files.
var GlueExt = []string{".yaml", ".yml"}

// GlueFile is the YAML layout of a shell glue file.
//
//	steps:
//	  - pattern: '^a file "([^"]*)" exists$'
//	    run: test -f "$1"
//	hooks:
//	  - phase: after
//	    tags: "@fs"
//	    run: rm -rf "$CUKE_TMP"
type GlueFile struct {
	Steps []StepEntry `yaml:"steps"`
	Hooks []HookEntry `yaml:"hooks,omitempty"`

	path string
}

// StepEntry is one step definition.
type StepEntry struct {
	// Pattern is a regular expression, anchored on both ends.
	Pattern string `yaml:"pattern"`
	// Run is the script passed to the shell. Captured groups are $1..$n.
	Run     string        `yaml:"run"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
	// Line is the position of the entry in its file.
	Line int `yaml:"-"`
}

// HookEntry is one before or after hook.
type HookEntry struct {
	Phase   string        `yaml:"phase"`
	Tags    string        `yaml:"tags,omitempty"`
	Order   *int          `yaml:"order,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
	Run     string        `yaml:"run"`
	Line    int           `yaml:"-"`
}

// ParseGlue decodes a glue file, rejecting unknown fields.
func ParseGlue(path string, data []byte) (*GlueFile, error) {
	var f GlueFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse glue file %s: %w", path, err)
	}
	f.path = path

	// A second pass over the node tree recovers entry lines for locations.
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err == nil {
		stepLines := sequenceLines(&doc, "steps")
		for i := range f.Steps {
			if i < len(stepLines) {
				f.Steps[i].Line = stepLines[i]
			}
		}
		hookLines := sequenceLines(&doc, "hooks")
		for i := range f.Hooks {
			if i < len(hookLines) {
				f.Hooks[i].Line = hookLines[i]
			}
		}
	}

	if err := validateGlue(&f); err != nil {
		return nil, fmt.Errorf("invalid glue file %s: %w", path, err)
	}
	return &f, nil
}

func sequenceLines(doc *yaml.Node, key string) []int {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != key {
			continue
		}
		var lines []int
		for _, item := range root.Content[i+1].Content {
			lines = append(lines, item.Line)
		}
		return lines
	}
	return nil
}

func validateGlue(f *GlueFile) error {
	for i, s := range f.Steps {
		if s.Pattern == "" {
			return fmt.Errorf("steps[%d]: pattern is required", i)
		}
		if strings.TrimSpace(s.Run) == "" {
			return fmt.Errorf("steps[%d]: run is required", i)
		}
	}
	for i, h := range f.Hooks {
		if h.Phase != "before" && h.Phase != "after" {
			return fmt.Errorf("hooks[%d]: phase must be before or after, got %q", i, h.Phase)
		}
		if strings.TrimSpace(h.Run) == "" {
			return fmt.Errorf("hooks[%d]: run is required", i)
		}
	}
	return nil
}

// LoadGlueFiles reads every glue file under paths. Directories are walked in
// lexical order.
func LoadGlueFiles(paths []string) ([]*GlueFile, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("glue path %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		var found []string
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isGlueFile(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk glue path %s: %w", p, err)
		}
		sort.Strings(found)
		files = append(files, found...)
	}

	out := make([]*GlueFile, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read glue file: %w", err)
		}
		f, err := ParseGlue(filepath.ToSlash(path), data)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func isGlueFile(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range GlueExt {
		if ext == e {
			return true
		}
	}
	return false
}
