// Package store provides SQLite-backed run history.
//
// A Recorder subscribes to the root event bus and appends:
//   - Runs: one row per run, keyed by run id
//   - Scenarios: one row per finished scenario, in finish order
//   - Steps: one row per finished step of a scenario
//
// Scenarios carry a scenario_key, a content hash of the feature URI and
// scenario line, so the same scenario can be followed across runs even
// when its name changes.
//
// # Ordering
//
// Scenario rows are ordered by seq, the position in which the scenario
// finished within its run. Queries always ORDER BY explicit columns.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
