package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/cuke/internal/event"
	"github.com/roach88/cuke/internal/report"
)

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string          // Assertion type for categorization
	Expected string          // Human-readable expected outcome
	Actual   string          // Human-readable actual outcome
	Trace    []report.Record // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, rec := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s", i+1, rec.Type)
		if rec.Scenario != "" {
			fmt.Fprintf(&buf, " %q", rec.Scenario)
		}
		if rec.Step != "" {
			fmt.Fprintf(&buf, " step %q", rec.Step)
		}
		if rec.Phase != "" {
			fmt.Fprintf(&buf, " %s hook", rec.Phase)
		}
		if rec.Status != "" {
			fmt.Fprintf(&buf, " -> %s", rec.Status)
		}
		buf.WriteByte('\n')
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against the result and returns
// the messages of those that failed.
func EvaluateAssertions(res *Result, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluate(res, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(res *Result, a Assertion) error {
	switch a.Type {
	case AssertScenarioStatus:
		return assertScenarioStatus(res.Trace, a)
	case AssertStepStatus:
		return assertStepStatus(res.Trace, a)
	case AssertEventOrder:
		return assertEventOrder(res.Trace, a)
	case AssertEventCount:
		return assertEventCount(res.Trace, a)
	case AssertExitStatus:
		if res.Exit != a.Exit {
			return &AssertionError{
				Type:     AssertExitStatus,
				Expected: fmt.Sprintf("exit status %d", a.Exit),
				Actual:   fmt.Sprintf("exit status %d", res.Exit),
				Trace:    res.Trace,
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertScenarioStatus checks the final status of the first scenario with
// the given name.
func assertScenarioStatus(trace []report.Record, a Assertion) error {
	for _, rec := range trace {
		if rec.Type == event.KindScenarioFinished && rec.Scenario == a.Scenario {
			if rec.Status == a.Status {
				return nil
			}
			return &AssertionError{
				Type:     AssertScenarioStatus,
				Expected: fmt.Sprintf("scenario %q %s", a.Scenario, a.Status),
				Actual:   rec.Status,
				Trace:    trace,
			}
		}
	}
	return &AssertionError{
		Type:     AssertScenarioStatus,
		Expected: fmt.Sprintf("scenario %q %s", a.Scenario, a.Status),
		Actual:   "scenario not finished in trace",
		Trace:    trace,
	}
}

// assertStepStatus checks the status of a step of a scenario.
func assertStepStatus(trace []report.Record, a Assertion) error {
	for _, rec := range trace {
		if rec.Type == event.KindStepFinished && rec.Scenario == a.Scenario && rec.Step == a.Step {
			if rec.Status == a.Status {
				return nil
			}
			return &AssertionError{
				Type:     AssertStepStatus,
				Expected: fmt.Sprintf("step %q of %q %s", a.Step, a.Scenario, a.Status),
				Actual:   rec.Status,
				Trace:    trace,
			}
		}
	}
	return &AssertionError{
		Type:     AssertStepStatus,
		Expected: fmt.Sprintf("step %q of %q %s", a.Step, a.Scenario, a.Status),
		Actual:   "step not finished in trace",
		Trace:    trace,
	}
}

// assertEventOrder checks that the event kinds appear in the given order.
// Other events may appear in between.
func assertEventOrder(trace []report.Record, a Assertion) error {
	next := 0
	for _, rec := range trace {
		if next < len(a.Events) && string(rec.Type) == a.Events[next] {
			next++
		}
	}
	if next == len(a.Events) {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventOrder,
		Expected: fmt.Sprintf("events in order: %v", a.Events),
		Actual:   fmt.Sprintf("%s not found after %v", a.Events[next], a.Events[:next]),
		Trace:    trace,
	}
}

// assertEventCount checks that the event kind appears exactly Count times.
func assertEventCount(trace []report.Record, a Assertion) error {
	count := 0
	for _, rec := range trace {
		if string(rec.Type) == a.Event {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Event),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}
