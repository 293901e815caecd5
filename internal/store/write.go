package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/roach88/cuke/internal/event"
	"github.com/roach88/cuke/internal/pickle"
	"github.com/roach88/cuke/internal/result"
)

// Run is one stored run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is in progress
	Strict     bool
	Status     result.Status
}

// Finished reports whether the run recorded its end.
func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// Scenario is one stored scenario outcome.
type Scenario struct {
	ID       int64
	RunID    string
	Seq      int
	Key      string
	URI      string
	Line     int
	Name     string
	Tags     []string
	Status   result.Status
	Duration time.Duration
	Error    string
}

// Step is one stored step outcome.
type Step struct {
	Index    int
	Keyword  string
	Text     string
	Line     int
	Location string
	Status   result.Status
	Duration time.Duration
	Error    string
}

// WriteRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, strict)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.StartedAt.UnixNano(), run.Strict)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// FinishRun records the end time and overall status of a run.
func (s *Store) FinishRun(ctx context.Context, id string, finishedAt time.Time, status result.Status) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, status = ? WHERE id = ?
	`, finishedAt.UnixNano(), status.String(), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %q: %w", id, ErrNotFound)
	}
	return nil
}

// WriteScenario inserts a scenario and its steps in one transaction and
// sets sc.ID. The run must exist (foreign key constraint).
func (s *Store) WriteScenario(ctx context.Context, sc *Scenario, steps []Step) (err error) {
	if sc.Key == "" {
		sc.Key = ScenarioKey(sc.URI, sc.Line)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write scenario: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO scenarios
		(run_id, seq, scenario_key, uri, line, name, tags, status, duration_ns, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sc.RunID,
		sc.Seq,
		sc.Key,
		sc.URI,
		sc.Line,
		sc.Name,
		strings.Join(sc.Tags, " "),
		sc.Status.String(),
		int64(sc.Duration),
		sc.Error,
	)
	if err != nil {
		return fmt.Errorf("write scenario: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("write scenario: %w", err)
	}

	for _, st := range steps {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO steps
			(scenario_id, idx, keyword, text, line, location, status, duration_ns, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			id,
			st.Index,
			st.Keyword,
			st.Text,
			st.Line,
			st.Location,
			st.Status.String(),
			int64(st.Duration),
			st.Error,
		)
		if err != nil {
			return fmt.Errorf("write step %d: %w", st.Index, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("write scenario: %w", err)
	}
	sc.ID = id
	return nil
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithNow sets the wall clock used for run start and end times.
func WithNow(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// Recorder writes the events of a run to a Store. It subscribes to the
// root bus, where each scenario's events arrive together after it
// finished.
//
// Thread-safety: handlers are serialized by an internal mutex.
type Recorder struct {
	store  *Store
	strict bool
	now    func() time.Time

	mu    sync.Mutex
	runID string
	seq   int
	worst result.Status
	steps map[*pickle.Pickle][]Step
	err   error
}

// NewRecorder creates a Recorder writing to s.
func NewRecorder(s *Store, strict bool, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:  s,
		strict: strict,
		now:    time.Now,
		steps:  make(map[*pickle.Pickle][]Step),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe registers the recorder on b.
func (r *Recorder) Subscribe(b event.Bus) {
	event.On(b, r.onRunStarted)
	event.On(b, r.onStepFinished)
	event.On(b, r.onScenarioFinished)
	event.On(b, r.onRunFinished)
}

// Err returns the first write error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// RunID returns the id of the recorded run.
func (r *Recorder) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

func (r *Recorder) fail(err error) {
	slog.Warn("run history write failed", "run_id", r.runID, "error", err)
	if r.err == nil {
		r.err = err
	}
}

func (r *Recorder) onRunStarted(e event.RunStarted) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runID, r.seq, r.worst = e.RunID, 0, result.Passed
	err := r.store.WriteRun(context.Background(), Run{ID: e.RunID, StartedAt: r.now(), Strict: r.strict})
	if err != nil {
		r.fail(err)
	}
}

func (r *Recorder) onStepFinished(e event.StepFinished) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[e.Pickle] = append(r.steps[e.Pickle], Step{
		Index:    e.Index,
		Keyword:  e.Step.KeywordText(),
		Text:     e.Step.Text,
		Line:     e.Step.Line(),
		Location: e.Location,
		Status:   e.Result.Status,
		Duration: e.Result.Duration,
		Error:    e.Result.ErrorMessage(),
	})
}

func (r *Recorder) onScenarioFinished(e event.ScenarioFinished) {
	r.mu.Lock()
	defer r.mu.Unlock()
	steps := r.steps[e.Pickle]
	delete(r.steps, e.Pickle)
	if r.runID == "" {
		return
	}

	r.seq++
	r.worst = result.Worst(r.worst, e.Result.Status)
	sc := &Scenario{
		RunID:    r.runID,
		Seq:      r.seq,
		URI:      e.Pickle.URI,
		Line:     e.Pickle.Line(),
		Name:     e.Pickle.Name,
		Tags:     e.Pickle.TagNames(),
		Status:   e.Result.Status,
		Duration: e.Result.Duration,
		Error:    e.Result.ErrorMessage(),
	}
	if err := r.store.WriteScenario(context.Background(), sc, steps); err != nil {
		r.fail(err)
	}
}

func (r *Recorder) onRunFinished(e event.RunFinished) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runID == "" {
		return
	}
	if err := r.store.FinishRun(context.Background(), r.runID, r.now(), r.worst); err != nil {
		r.fail(err)
		return
	}
	slog.Debug("run history recorded", "run_id", r.runID, "scenarios", r.seq)
}
