package report

import (
	"fmt"
	"io"
	"sync"

	"github.com/roach88/cuke/internal/event"
	"github.com/roach88/cuke/internal/result"
)

// Pretty prints every scenario with its steps as they finish.
type Pretty struct {
	mu     sync.Mutex
	w      io.Writer
	styles styles
}

// NewPretty creates a pretty formatter writing to w.
func NewPretty(w io.Writer, opts Options) *Pretty {
	return &Pretty{w: w, styles: newStyles(w, opts)}
}

// Subscribe implements Formatter.
func (p *Pretty) Subscribe(b event.Bus) {
	event.On(b, p.onScenarioStarted)
	event.On(b, p.onStepFinished)
	event.On(b, p.onHookFinished)
	event.On(b, p.onWrite)
	event.On(b, p.onScenarioFinished)
}

func (p *Pretty) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

func (p *Pretty) onScenarioStarted(e event.ScenarioStarted) {
	p.printf("%s %s\n",
		p.styles.bold.Render("Scenario: "+e.Pickle.Name),
		p.styles.comment.Render(fmt.Sprintf("# %s:%d", e.Pickle.URI, e.Pickle.Line())),
	)
}

func (p *Pretty) onStepFinished(e event.StepFinished) {
	text := p.styles.render(e.Result.Status, e.Step.KeywordText()+" "+e.Step.Text)
	if e.Location != "" {
		text += " " + p.styles.comment.Render("# "+e.Location)
	}
	p.printf("  %s\n", text)
	if e.Result.Err != nil && e.Result.Status != result.Undefined {
		p.printf("%s\n", p.styles.render(e.Result.Status, indent(e.Result.Err.Error(), "      ")))
	}
}

func (p *Pretty) onHookFinished(e event.HookFinished) {
	if e.Result.Status == result.Passed {
		return
	}
	p.printf("  %s %s\n",
		p.styles.render(e.Result.Status, fmt.Sprintf("%s hook %s", e.Phase, e.Result.Status)),
		p.styles.comment.Render("# "+e.Location),
	)
	if e.Result.Err != nil {
		p.printf("%s\n", p.styles.render(e.Result.Status, indent(e.Result.Err.Error(), "      ")))
	}
}

func (p *Pretty) onWrite(e event.Write) {
	p.printf("%s\n", indent(e.Text, "    "))
}

func (p *Pretty) onScenarioFinished(event.ScenarioFinished) {
	p.printf("\n")
}
