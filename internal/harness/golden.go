package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cuke/internal/report"
)

// TraceSnapshot is the golden form of a scenario execution.
type TraceSnapshot struct {
	Scenario string          `json:"scenario"`
	RunID    string          `json:"run_id"`
	Exit     int             `json:"exit"`
	Trace    []report.Record `json:"trace"`
}

// Snapshot returns the indented JSON snapshot of res.
func Snapshot(name string, res *Result) ([]byte, error) {
	data, err := json.MarshalIndent(TraceSnapshot{
		Scenario: name,
		RunID:    res.RunID,
		Exit:     res.Exit,
		Trace:    res.Trace,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares the trace against a golden
// file. The golden file is stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./... -update
//
// Returns an error if the scenario cannot run. A trace mismatch fails t.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...goldie.Option) (*Result, error) {
	t.Helper()

	res, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return res, AssertGolden(t, scenario.Name, res, opts...)
}

// AssertGolden compares the trace of an existing result against a golden
// file. opts override the fixture directory and suffix.
func AssertGolden(t *testing.T, name string, res *Result, opts ...goldie.Option) error {
	t.Helper()

	data, err := Snapshot(name, res)
	if err != nil {
		return err
	}
	g := goldie.New(t, append([]goldie.Option{
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	}, opts...)...)
	g.Assert(t, name, data)
	return nil
}
