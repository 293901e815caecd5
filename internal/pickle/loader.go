package pickle

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FeatureExt is the file extension of feature files.
const FeatureExt = ".feature"

// FSLoader loads feature files from the local filesystem.
//
// Each path may name a feature file or a directory. Directories are walked
// recursively and their feature files are loaded in lexical order. A path is
// loaded at most once even when it is reachable from several arguments.
type FSLoader struct {
	Paths []string
}

// NewFSLoader creates a loader over the given paths.
func NewFSLoader(paths ...string) *FSLoader {
	return &FSLoader{Paths: paths}
}

// Load implements Loader. Any read or parse failure is returned and no
// features are produced.
func (l *FSLoader) Load(ctx context.Context) ([]*Feature, error) {
	files, err := l.resolve()
	if err != nil {
		return nil, err
	}

	features := make([]*Feature, 0, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read feature %s: %w", path, err)
		}
		f, err := ParseFeature(filepath.ToSlash(path), src)
		if err != nil {
			return nil, err
		}
		slog.Debug("feature loaded", "uri", f.URI, "name", f.Name)
		features = append(features, f)
	}
	return features, nil
}

func (l *FSLoader) resolve() ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		clean := filepath.Clean(p)
		if !seen[clean] {
			seen[clean] = true
			files = append(files, clean)
		}
	}

	for _, root := range l.Paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("feature path %s: %w", root, err)
		}
		if !info.IsDir() {
			add(root)
			continue
		}

		var found []string
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), FeatureExt) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
		sort.Strings(found)
		for _, p := range found {
			add(p)
		}
	}
	return files, nil
}

// StaticLoader returns features parsed from in-memory sources, keyed by URI.
// Sources are parsed in the order of uris.
func StaticLoader(uris []string, sources map[string]string) Loader {
	return LoaderFunc(func(context.Context) ([]*Feature, error) {
		out := make([]*Feature, 0, len(uris))
		for _, uri := range uris {
			f, err := ParseFeature(uri, []byte(sources[uri]))
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
		return out, nil
	})
}
