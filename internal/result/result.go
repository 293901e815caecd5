// Package result defines the outcome model shared by the runner, the event
// stream and the statistics subscriber.
package result

import (
	"strings"
	"time"
)

// Status is the outcome of a step, a hook or a whole scenario.
type Status int

const (
	// Passed indicates the body ran to completion without error.
	Passed Status = iota
	// Skipped indicates the body was not executed.
	Skipped
	// Pending indicates the body signalled it is not implemented yet.
	Pending
	// Failed indicates the body returned an error, panicked or timed out.
	Failed
	// Undefined indicates no step definition matched the step text.
	Undefined
	// Ambiguous indicates more than one step definition matched the step text.
	Ambiguous
)

// severity ranks statuses for aggregation.
// Order: ambiguous = undefined > failed > pending > skipped > passed.
var severity = map[Status]int{
	Passed:    0,
	Skipped:   1,
	Pending:   2,
	Failed:    3,
	Undefined: 4,
	Ambiguous: 4,
}

var names = map[Status]string{
	Passed:    "passed",
	Skipped:   "skipped",
	Pending:   "pending",
	Failed:    "failed",
	Undefined: "undefined",
	Ambiguous: "ambiguous",
}

// Statuses lists every status in summary print order.
var Statuses = []Status{Failed, Ambiguous, Skipped, Pending, Undefined, Passed}

// String returns the lower-case status label.
func (s Status) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return "unknown"
}

// ParseStatus converts a status label back into a Status.
func ParseStatus(s string) (Status, bool) {
	for st, n := range names {
		if strings.EqualFold(n, s) {
			return st, true
		}
	}
	return Passed, false
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Severity returns the rank of s in the aggregation order.
func (s Status) Severity() int {
	return severity[s]
}

// IsOK reports whether s is passed or skipped. In strict mode pending and
// undefined outcomes are not OK either.
func (s Status) IsOK(strict bool) bool {
	switch s {
	case Passed, Skipped:
		return true
	case Pending, Undefined:
		return !strict
	default:
		return false
	}
}

// Worst returns the most severe of the given statuses. When two statuses
// share a rank the first one wins. Worst() is Passed.
func Worst(statuses ...Status) Status {
	worst := Passed
	for _, s := range statuses {
		if s.Severity() > worst.Severity() {
			worst = s
		}
	}
	return worst
}

// Result is the outcome of one executed unit.
type Result struct {
	Status   Status
	Duration time.Duration
	Err      error
}

// New builds a Result.
func New(status Status, duration time.Duration, err error) Result {
	return Result{Status: status, Duration: duration, Err: err}
}

// ErrorMessage returns the error text or an empty string.
func (r Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
