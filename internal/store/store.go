package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("not found")

// pragmas configure every connection of a history database.
var pragmas = []string{
	// WAL lets `cuke history` read while a run is still recording.
	"PRAGMA journal_mode = WAL",
	// NORMAL is durable across crashes of the process; only a power loss
	// can drop the last committed scenarios.
	"PRAGMA synchronous = NORMAL",
	// Two runs sharing one --db wait for each other instead of failing
	// with SQLITE_BUSY.
	"PRAGMA busy_timeout = 5000",
	// Scenarios must belong to a run and steps to a scenario.
	"PRAGMA foreign_keys = ON",
}

// migration upgrades a database from version-1 to version.
type migration struct {
	version int
	name    string
	apply   func(*sql.DB) error
}

// migrations run in order against databases whose user_version is lower
// than their version, including freshly created ones. Each step must be
// idempotent: a run interrupted before user_version is written repeats it.
//
// Schema versions:
//
//	0 - runs, scenarios and steps tables
//	1 - index on scenarios.scenario_key for `history --scenario` lookups
var migrations = []migration{
	{version: 1, name: "scenario key index", apply: migrateToV1},
}

// currentSchemaVersion is the user_version of a fully migrated database.
var currentSchemaVersion = migrations[len(migrations)-1].version

// Store is the run history of a project, kept in one SQLite file.
//
// A Recorder writes to it while a run executes; the CLI reads it for the
// history and rerun commands. Reads and writes share a single connection.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at path, applies the
// connection pragmas and brings the schema up to date. Opening an existing
// database is safe and leaves its rows untouched.
func Open(path string) (*Store, error) {
	// sql.Open only validates arguments; Ping creates the file.
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite serialises writers. One pooled connection keeps the recorder's
	// transactions and the CLI's reads from contending for the write lock
	// inside the same process, and keeps per-connection pragmas in effect.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: failed to execute %q: %w", pragma, err)
		}
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database. Closing a zero Store is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the connection for ad-hoc queries in tests and tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Query runs a read-only query against the history.
// Callers are responsible for closing the returned rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// applySchema creates missing tables, then runs pending migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	for _, m := range migrations {
		if version >= m.version {
			continue
		}
		if err := m.apply(db); err != nil {
			return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
		}
	}

	// PRAGMA does not take bind parameters.
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 indexes scenario keys for ScenarioHistory.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_scenarios_key
		ON scenarios(scenario_key, run_id)
	`)
	return err
}

// verifyPragma checks that a pragma is set to the expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
