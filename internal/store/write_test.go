package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roach88/cuke/internal/result"
)

func TestWriteRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	run := Run{ID: "run-1", StartedAt: time.Unix(100, 0), Strict: true}

	for i := 0; i < 2; i++ {
		if err := s.WriteRun(ctx, run); err != nil {
			t.Fatalf("WriteRun() iteration %d failed: %v", i, err)
		}
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("runs = %d, want 1", count)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if !got.Strict || got.Finished() || !got.StartedAt.Equal(run.StartedAt) {
		t.Errorf("GetRun() = %+v", got)
	}
}

func TestFinishRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	if err := s.WriteRun(ctx, Run{ID: "run-1", StartedAt: time.Unix(100, 0)}); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
	if err := s.FinishRun(ctx, "run-1", time.Unix(105, 0), result.Failed); err != nil {
		t.Fatalf("FinishRun() failed: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if !got.FinishedAt.Equal(time.Unix(105, 0)) || got.Status != result.Failed {
		t.Errorf("GetRun() = %+v", got)
	}

	err = s.FinishRun(ctx, "nope", time.Unix(105, 0), result.Passed)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishRun(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestWriteScenario_WithSteps(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	if err := s.WriteRun(ctx, Run{ID: "run-1", StartedAt: time.Unix(100, 0)}); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}

	sc := &Scenario{
		RunID:    "run-1",
		Seq:      1,
		URI:      "a.feature",
		Line:     3,
		Name:     "add",
		Tags:     []string{"@smoke", "@fast"},
		Status:   result.Failed,
		Duration: 3 * time.Millisecond,
		Error:    "boom",
	}
	steps := []Step{
		{Index: 0, Keyword: "Given", Text: "a", Line: 4, Location: "s.go:1", Status: result.Passed, Duration: time.Millisecond},
		{Index: 1, Keyword: "Then", Text: "b", Line: 5, Location: "s.go:2", Status: result.Failed, Error: "boom"},
	}
	if err := s.WriteScenario(ctx, sc, steps); err != nil {
		t.Fatalf("WriteScenario() failed: %v", err)
	}
	if sc.ID == 0 {
		t.Fatal("WriteScenario() did not set ID")
	}
	if sc.Key != ScenarioKey("a.feature", 3) {
		t.Errorf("Key = %q, want ScenarioKey(a.feature, 3)", sc.Key)
	}

	got, err := s.Scenarios(ctx, "run-1")
	if err != nil {
		t.Fatalf("Scenarios() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Scenarios() = %d rows, want 1", len(got))
	}
	if got[0].Name != "add" || got[0].Status != result.Failed || got[0].Duration != 3*time.Millisecond {
		t.Errorf("Scenarios()[0] = %+v", got[0])
	}
	if len(got[0].Tags) != 2 || got[0].Tags[1] != "@fast" {
		t.Errorf("Tags = %v", got[0].Tags)
	}

	gotSteps, err := s.Steps(ctx, sc.ID)
	if err != nil {
		t.Fatalf("Steps() failed: %v", err)
	}
	if len(gotSteps) != 2 {
		t.Fatalf("Steps() = %d rows, want 2", len(gotSteps))
	}
	if gotSteps[1] != steps[1] {
		t.Errorf("Steps()[1] = %+v, want %+v", gotSteps[1], steps[1])
	}
}

func TestWriteScenario_RollsBackOnStepError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	if err := s.WriteRun(ctx, Run{ID: "run-1", StartedAt: time.Unix(100, 0)}); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}

	sc := &Scenario{RunID: "run-1", Seq: 1, URI: "a.feature", Line: 3, Status: result.Passed}
	dup := []Step{{Index: 0, Status: result.Passed}, {Index: 0, Status: result.Passed}}
	if err := s.WriteScenario(ctx, sc, dup); err == nil {
		t.Fatal("expected error for duplicate step index")
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM scenarios").Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("scenarios = %d after rollback, want 0", count)
	}
}

func TestWriteScenario_UnknownRun(t *testing.T) {
	s := createTestStore(t)
	sc := &Scenario{RunID: "missing", Seq: 1, URI: "a.feature", Line: 3}
	if err := s.WriteScenario(context.Background(), sc, nil); err == nil {
		t.Error("expected foreign key error for unknown run")
	}
}
