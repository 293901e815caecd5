package report

import (
	"io"
	"sync"

	"github.com/roach88/cuke/internal/event"
	"github.com/roach88/cuke/internal/result"
)

var progressMarks = map[result.Status]string{
	result.Passed:    ".",
	result.Skipped:   "-",
	result.Pending:   "P",
	result.Failed:    "F",
	result.Undefined: "U",
	result.Ambiguous: "A",
}

// Progress prints one character per step and failing hook.
type Progress struct {
	mu     sync.Mutex
	w      io.Writer
	styles styles
}

// NewProgress creates a progress formatter writing to w.
func NewProgress(w io.Writer, opts Options) *Progress {
	return &Progress{w: w, styles: newStyles(w, opts)}
}

// Subscribe implements Formatter.
func (p *Progress) Subscribe(b event.Bus) {
	event.On(b, func(e event.StepFinished) { p.mark(e.Result.Status) })
	event.On(b, func(e event.HookFinished) {
		if e.Result.Status != result.Passed {
			p.mark(e.Result.Status)
		}
	})
	event.On(b, func(event.RunFinished) {
		p.mu.Lock()
		defer p.mu.Unlock()
		io.WriteString(p.w, "\n")
	})
}

func (p *Progress) mark(st result.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	io.WriteString(p.w, p.styles.render(st, progressMarks[st]))
}
