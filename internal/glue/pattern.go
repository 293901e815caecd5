package glue

import (
	"fmt"
	"regexp"
	"strings"
)

// Expression is a compiled step pattern shared by the bundled backends.
//
// Patterns are Go regular expressions anchored at both ends. Capture groups
// become step arguments.
type Expression struct {
	source string
	re     *regexp.Regexp
}

// CompileExpression compiles source anchored at both ends. A leading ^ and
// an unescaped trailing $ are accepted and dropped; the rest of the pattern
// is grouped, so alternations match the whole step text.
func CompileExpression(source string) (*Expression, error) {
	body := strings.TrimPrefix(source, "^")
	if strings.HasSuffix(body, "$") && !escaped(body, len(body)-1) {
		body = body[:len(body)-1]
	}
	re, err := regexp.Compile("^(?:" + body + ")$")
	if err != nil {
		return nil, fmt.Errorf("invalid step pattern %q: %w", source, err)
	}
	return &Expression{source: source, re: re}, nil
}

// escaped reports whether the byte at i is preceded by an odd number of
// backslashes.
func escaped(s string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

// Source returns the pattern as written.
func (e *Expression) Source() string { return e.source }

// NumArgs returns the number of capture groups.
func (e *Expression) NumArgs() int { return e.re.NumSubexp() }

// Match returns the capture groups when text matches.
func (e *Expression) Match(text string) ([]string, bool) {
	m := e.re.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	return m[1:], true
}
