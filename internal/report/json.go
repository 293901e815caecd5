package report

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/roach88/cuke/internal/event"
	"github.com/roach88/cuke/internal/pickle"
	"github.com/roach88/cuke/internal/result"
)

// Record is one line of the NDJSON event log.
type Record struct {
	Type      event.Kind `json:"type"`
	Timestamp int64      `json:"timestamp"`

	RunID    string `json:"run_id,omitempty"`
	URI      string `json:"uri,omitempty"`
	Line     int    `json:"line,omitempty"`
	Scenario string `json:"scenario,omitempty"`
	Step     string `json:"step,omitempty"`
	StepLine int    `json:"step_line,omitempty"`
	Index    *int   `json:"index,omitempty"`
	Phase    string `json:"phase,omitempty"`
	Location string `json:"location,omitempty"`
	Backend  string `json:"backend,omitempty"`
	Pattern  string `json:"pattern,omitempty"`

	Status     string   `json:"status,omitempty"`
	DurationNS int64    `json:"duration_ns,omitempty"`
	Error      string   `json:"error,omitempty"`
	Snippets   []string `json:"snippets,omitempty"`
	Text       string   `json:"text,omitempty"`
}

// NewRecord flattens e into a Record.
func NewRecord(e event.Event) Record {
	rec := Record{Type: e.Kind(), Timestamp: e.Timestamp()}
	withPickle := func(p *pickle.Pickle) {
		if p != nil {
			rec.URI, rec.Line, rec.Scenario = p.URI, p.Line(), p.Name
		}
	}
	withStep := func(s *pickle.Step, index int) {
		if s != nil {
			rec.Step, rec.StepLine = s.Text, s.Line()
		}
		rec.Index = &index
	}
	withResult := func(r result.Result) {
		rec.Status = r.Status.String()
		rec.DurationNS = int64(r.Duration)
		rec.Error = r.ErrorMessage()
	}

	switch ev := e.(type) {
	case event.RunStarted:
		rec.RunID = ev.RunID
	case event.RunFinished:
		rec.RunID = ev.RunID
	case event.StepDefinitionAdded:
		rec.Backend, rec.Pattern, rec.Location = ev.Backend, ev.Pattern, ev.Location
	case event.ScenarioStarted:
		withPickle(ev.Pickle)
	case event.ScenarioFinished:
		withPickle(ev.Pickle)
		withResult(ev.Result)
	case event.StepStarted:
		withPickle(ev.Pickle)
		withStep(ev.Step, ev.Index)
		rec.Location = ev.Location
	case event.StepFinished:
		withPickle(ev.Pickle)
		withStep(ev.Step, ev.Index)
		rec.Location = ev.Location
		withResult(ev.Result)
	case event.HookStarted:
		withPickle(ev.Pickle)
		rec.Phase, rec.Location = string(ev.Phase), ev.Location
	case event.HookFinished:
		withPickle(ev.Pickle)
		rec.Phase, rec.Location = string(ev.Phase), ev.Location
		withResult(ev.Result)
	case event.SnippetSuggested:
		withPickle(ev.Pickle)
		if ev.Step != nil {
			rec.Step, rec.StepLine = ev.Step.Text, ev.Step.Line()
		}
		rec.Snippets = ev.Snippets
	case event.Write:
		withPickle(ev.Pickle)
		rec.Text = ev.Text
	}
	return rec
}

// JSON writes every event as one JSON object per line.
type JSON struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

// NewJSON creates an NDJSON formatter writing to w.
func NewJSON(w io.Writer) *JSON {
	return &JSON{enc: json.NewEncoder(w)}
}

// Subscribe implements Formatter.
func (j *JSON) Subscribe(b event.Bus) {
	b.SubscribeAll(j.write)
}

func (j *JSON) write(e event.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return
	}
	j.err = j.enc.Encode(NewRecord(e))
}

// Err returns the first write error.
func (j *JSON) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}
