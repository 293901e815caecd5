package glue

import (
	"regexp"
	"sort"
	"strings"
)

// ParamKind is the suggested type of a snippet parameter.
type ParamKind string

const (
	ParamInt    ParamKind = "int"
	ParamFloat  ParamKind = "float64"
	ParamString ParamKind = "string"
)

var (
	snippetQuoted = regexp.MustCompile(`"[^"]*"`)
	snippetNumber = regexp.MustCompile(`-?\d+(\.\d+)?`)
)

type capture struct {
	start, end int
	kind       ParamKind
	re         string
}

// SnippetPattern derives a step pattern from undefined step text. Quoted
// strings become string captures and numbers become numeric captures.
func SnippetPattern(text string) (string, []ParamKind) {
	var caps []capture
	for _, loc := range snippetQuoted.FindAllStringIndex(text, -1) {
		caps = append(caps, capture{loc[0], loc[1], ParamString, `"([^"]*)"`})
	}
	quoted := len(caps)
	for _, loc := range snippetNumber.FindAllStringSubmatchIndex(text, -1) {
		if within(loc[0], caps[:quoted]) {
			continue
		}
		c := capture{loc[0], loc[1], ParamInt, `(-?\d+)`}
		if loc[2] >= 0 {
			c.kind, c.re = ParamFloat, `(-?\d+\.\d+)`
		}
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i].start < caps[j].start })

	var b strings.Builder
	b.WriteByte('^')
	params := make([]ParamKind, 0, len(caps))
	pos := 0
	for _, c := range caps {
		b.WriteString(regexp.QuoteMeta(text[pos:c.start]))
		b.WriteString(c.re)
		params = append(params, c.kind)
		pos = c.end
	}
	b.WriteString(regexp.QuoteMeta(text[pos:]))
	b.WriteByte('$')
	return b.String(), params
}

func within(pos int, caps []capture) bool {
	for _, c := range caps {
		if pos >= c.start && pos < c.end {
			return true
		}
	}
	return false
}

// SnippetKeyword maps a step keyword to the registration verb used in
// snippets. Conjunctions and bullets fall back to "Step".
func SnippetKeyword(keyword string) string {
	switch kw := strings.TrimSpace(keyword); kw {
	case "Given", "When", "Then":
		return kw
	default:
		return "Step"
	}
}
