package stats

import (
	"sync"

	"github.com/roach88/cuke/internal/event"
)

// UndefinedStepsTracker collects distinct snippets for undefined steps in
// the order they were first suggested.
//
// Thread-safety: UndefinedStepsTracker is safe for concurrent use.
type UndefinedStepsTracker struct {
	mu       sync.Mutex
	seen     map[string]bool
	snippets []string
	steps    []string
}

// NewUndefinedStepsTracker creates an empty tracker.
func NewUndefinedStepsTracker() *UndefinedStepsTracker {
	return &UndefinedStepsTracker{seen: make(map[string]bool)}
}

// Subscribe attaches the tracker to a bus.
func (u *UndefinedStepsTracker) Subscribe(b event.Bus) {
	event.On(b, u.onSnippet)
}

func (u *UndefinedStepsTracker) onSnippet(e event.SnippetSuggested) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if e.Step != nil {
		u.steps = append(u.steps, e.Step.Text)
	}
	for _, s := range e.Snippets {
		if !u.seen[s] {
			u.seen[s] = true
			u.snippets = append(u.snippets, s)
		}
	}
}

// Snippets returns the distinct snippets.
func (u *UndefinedStepsTracker) Snippets() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.snippets...)
}

// UndefinedSteps returns the text of every undefined step occurrence.
func (u *UndefinedStepsTracker) UndefinedSteps() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.steps...)
}

// HasUndefinedSteps reports whether any undefined step was seen.
func (u *UndefinedStepsTracker) HasUndefinedSteps() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.steps) > 0
}
