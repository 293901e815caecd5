package filter

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FeaturePath is a feature location argument with optional line filters.
type FeaturePath struct {
	Path  string
	Lines []int
}

// ParseFeaturePath splits "dir/a.feature:3:9" into the path and its lines.
// Windows drive letters ("C:\x.feature") are left intact.
func ParseFeaturePath(arg string) (FeaturePath, error) {
	parts := strings.Split(arg, ":")
	end := len(parts)
	for end > 1 {
		if _, err := strconv.Atoi(parts[end-1]); err != nil {
			break
		}
		end--
	}

	fp := FeaturePath{Path: strings.Join(parts[:end], ":")}
	for _, s := range parts[end:] {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return FeaturePath{}, fmt.Errorf("invalid line %q in %q", s, arg)
		}
		fp.Lines = append(fp.Lines, n)
	}
	if fp.Path == "" {
		return FeaturePath{}, fmt.Errorf("empty feature path in %q", arg)
	}
	return fp, nil
}

// String formats the path back as "path:line:line".
func (fp FeaturePath) String() string {
	var b strings.Builder
	b.WriteString(fp.Path)
	for _, l := range fp.Lines {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(l))
	}
	return b.String()
}

// IsRerunFile reports whether a feature argument names a rerun file
// ("@rerun.txt").
func IsRerunFile(arg string) bool {
	return strings.HasPrefix(arg, "@")
}

// ReadRerunFile reads whitespace-separated "path:line" entries from a rerun
// file. The leading "@" of arg is optional.
func ReadRerunFile(arg string) ([]FeaturePath, error) {
	path := strings.TrimPrefix(arg, "@")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rerun file: %w", err)
	}
	defer f.Close()

	var out []FeaturePath
	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		fp, err := ParseFeaturePath(sc.Text())
		if err != nil {
			return nil, fmt.Errorf("rerun file %s: %w", path, err)
		}
		out = append(out, fp)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read rerun file %s: %w", path, err)
	}
	return out, nil
}

// ExpandPaths resolves feature arguments, including rerun files, into
// loader paths and a per-URI line map suitable for Options.Lines.
func ExpandPaths(args []string) (paths []string, lines map[string][]int, err error) {
	lines = make(map[string][]int)
	add := func(fp FeaturePath) {
		uri := filepath.ToSlash(filepath.Clean(fp.Path))
		if _, seen := lines[uri]; !seen {
			paths = append(paths, fp.Path)
			lines[uri] = nil
		}
		lines[uri] = append(lines[uri], fp.Lines...)
	}

	for _, arg := range args {
		if IsRerunFile(arg) {
			fps, err := ReadRerunFile(arg)
			if err != nil {
				return nil, nil, err
			}
			for _, fp := range fps {
				add(fp)
			}
			continue
		}
		fp, err := ParseFeaturePath(arg)
		if err != nil {
			return nil, nil, err
		}
		add(fp)
	}

	for uri, ls := range lines {
		if len(ls) == 0 {
			delete(lines, uri)
		}
	}
	return paths, lines, nil
}
