package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/roach88/cuke/internal/event"
)

// Rerun writes the scenarios that did not pass as a rerun file: one
// uri:line[:line...] entry per feature, in the order the features failed.
// The file can be passed back as @path to run exactly those scenarios.
type Rerun struct {
	mu     sync.Mutex
	w      io.Writer
	strict bool
	lines  *orderedmap.OrderedMap[string, []int]
}

// NewRerun creates a rerun formatter writing to w.
func NewRerun(w io.Writer, strict bool) *Rerun {
	return &Rerun{w: w, strict: strict, lines: orderedmap.New[string, []int]()}
}

// Subscribe implements Formatter.
func (r *Rerun) Subscribe(b event.Bus) {
	event.On(b, r.onScenarioFinished)
	event.On(b, r.onRunFinished)
}

func (r *Rerun) onScenarioFinished(e event.ScenarioFinished) {
	if e.Result.Status.IsOK(r.strict) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	lines, _ := r.lines.Get(e.Pickle.URI)
	r.lines.Set(e.Pickle.URI, append(lines, e.Pickle.Line()))
}

func (r *Rerun) onRunFinished(event.RunFinished) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for pair := r.lines.Oldest(); pair != nil; pair = pair.Next() {
		fmt.Fprintln(r.w, FormatRerunEntry(pair.Key, pair.Value))
	}
}

// FormatRerunEntry formats uri with lines as uri:line:line.
func FormatRerunEntry(uri string, lines []int) string {
	var b strings.Builder
	b.WriteString(uri)
	for _, l := range lines {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(l))
	}
	return b.String()
}
