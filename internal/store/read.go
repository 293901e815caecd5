package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/cuke/internal/result"
)

// Runs returns the most recent runs, newest first. A limit of zero or less
// returns every run.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, started_at, finished_at, strict, status
		FROM runs
		ORDER BY started_at DESC, id COLLATE BINARY ASC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a single run by id.
// Returns ErrNotFound if the run does not exist.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, strict, status
		FROM runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %q: %w", id, ErrNotFound)
	}
	return run, err
}

// LatestRun returns the most recently started run.
// Returns ErrNotFound if the store is empty.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	runs, err := s.Runs(ctx, 1)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, fmt.Errorf("latest run: %w", ErrNotFound)
	}
	return runs[0], nil
}

// Scenarios returns the scenarios of a run in finish order.
func (s *Store) Scenarios(ctx context.Context, runID string) ([]Scenario, error) {
	return s.queryScenarios(ctx, `
		SELECT id, run_id, seq, scenario_key, uri, line, name, tags, status, duration_ns, error
		FROM scenarios
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
}

// FailedScenarios returns the scenarios of a run whose status is not OK
// under the run's strict flag, in finish order.
func (s *Store) FailedScenarios(ctx context.Context, runID string) ([]Scenario, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	all, err := s.Scenarios(ctx, runID)
	if err != nil {
		return nil, err
	}
	failed := []Scenario{}
	for _, sc := range all {
		if !sc.Status.IsOK(run.Strict) {
			failed = append(failed, sc)
		}
	}
	return failed, nil
}

// ScenarioHistory returns the outcomes of one scenario across runs, newest
// first. A limit of zero or less returns every outcome.
func (s *Store) ScenarioHistory(ctx context.Context, key string, limit int) ([]Scenario, error) {
	query := `
		SELECT s.id, s.run_id, s.seq, s.scenario_key, s.uri, s.line, s.name, s.tags, s.status, s.duration_ns, s.error
		FROM scenarios s
		JOIN runs r ON s.run_id = r.id
		WHERE s.scenario_key = ?
		ORDER BY r.started_at DESC, r.id COLLATE BINARY ASC
	`
	args := []any{key}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryScenarios(ctx, query, args...)
}

// Steps returns the steps of a stored scenario in execution order.
func (s *Store) Steps(ctx context.Context, scenarioID int64) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, keyword, text, line, location, status, duration_ns, error
		FROM steps
		WHERE scenario_id = ?
		ORDER BY idx ASC
	`, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	steps := []Step{}
	for rows.Next() {
		var (
			st       Step
			status   string
			duration int64
		)
		if err := rows.Scan(&st.Index, &st.Keyword, &st.Text, &st.Line, &st.Location, &status, &duration, &st.Error); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		st.Status = parseStatus(status)
		st.Duration = time.Duration(duration)
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}

func (s *Store) queryScenarios(ctx context.Context, query string, args ...any) ([]Scenario, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scenarios: %w", err)
	}
	defer rows.Close()

	scenarios := []Scenario{}
	for rows.Next() {
		var (
			sc       Scenario
			tags     string
			status   string
			duration int64
		)
		err := rows.Scan(&sc.ID, &sc.RunID, &sc.Seq, &sc.Key, &sc.URI, &sc.Line, &sc.Name, &tags, &status, &duration, &sc.Error)
		if err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		sc.Tags = strings.Fields(tags)
		sc.Status = parseStatus(status)
		sc.Duration = time.Duration(duration)
		scenarios = append(scenarios, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scenarios: %w", err)
	}
	return scenarios, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run        Run
		startedAt  int64
		finishedAt sql.NullInt64
		status     sql.NullString
	)
	if err := row.Scan(&run.ID, &startedAt, &finishedAt, &run.Strict, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = time.Unix(0, startedAt)
	if finishedAt.Valid {
		run.FinishedAt = time.Unix(0, finishedAt.Int64)
	}
	run.Status = parseStatus(status.String)
	return run, nil
}

func parseStatus(s string) result.Status {
	status, ok := result.ParseStatus(s)
	if !ok {
		return result.Passed
	}
	return status
}
