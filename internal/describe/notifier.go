package describe

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/cuke/internal/event"
	"github.com/roach88/cuke/internal/pickle"
	"github.com/roach88/cuke/internal/result"
)

// Notifier receives the outcome of description nodes.
type Notifier interface {
	TestStarted(d *Description)
	TestFinished(d *Description)
	TestFailure(d *Description, err error)
	// TestAssumptionFailure marks a node that could not complete for a
	// reason other than a failure, such as a pending or skipped step.
	TestAssumptionFailure(d *Description, err error)
	TestIgnored(d *Description)
}

// ErrSkipped is reported for skipped steps.
var ErrSkipped = errors.New("step skipped")

// reporter translates the events of one session into notifier calls for the
// execution unit in progress.
type reporter struct {
	strict bool

	mu       sync.Mutex
	unit     *pickleRunner
	notifier Notifier
	failed   bool
}

func newReporter(strict bool) *reporter {
	return &reporter{strict: strict}
}

func (r *reporter) subscribe(b event.Bus) {
	event.On(b, r.onScenarioStarted)
	event.On(b, r.onStepStarted)
	event.On(b, r.onStepFinished)
	event.On(b, r.onHookFinished)
	event.On(b, r.onScenarioFinished)
}

func (r *reporter) start(unit *pickleRunner, n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unit, r.notifier, r.failed = unit, n, false
}

func (r *reporter) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unit, r.notifier = nil, nil
}

func (r *reporter) current() (*pickleRunner, Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unit, r.notifier
}

func (r *reporter) onScenarioStarted(e event.ScenarioStarted) {
	unit, n := r.current()
	if unit == nil || e.Pickle != unit.pickle {
		return
	}
	n.TestStarted(unit.description)
}

func (r *reporter) stepDescription(p *pickle.Pickle, index int) (*Description, Notifier) {
	unit, n := r.current()
	if unit == nil || unit.steps == nil || p != unit.pickle || index >= len(unit.pickle.Steps) {
		return nil, nil
	}
	return unit.steps[unit.pickle.Steps[index]], n
}

func (r *reporter) onStepStarted(e event.StepStarted) {
	if d, n := r.stepDescription(e.Pickle, e.Index); d != nil {
		n.TestStarted(d)
	}
}

func (r *reporter) onStepFinished(e event.StepFinished) {
	d, n := r.stepDescription(e.Pickle, e.Index)
	if d == nil {
		return
	}
	r.notify(n, d, e.Result)
	n.TestFinished(d)
}

func (r *reporter) onHookFinished(e event.HookFinished) {
	unit, n := r.current()
	if unit == nil || e.Pickle != unit.pickle || e.Result.Status.IsOK(r.strict) {
		return
	}
	err := e.Result.Err
	if err == nil {
		err = fmt.Errorf("%s hook %s: %s", e.Phase, e.Location, e.Result.Status)
	}
	r.markFailed()
	n.TestFailure(unit.description, err)
}

func (r *reporter) onScenarioFinished(e event.ScenarioFinished) {
	unit, n := r.current()
	if unit == nil || e.Pickle != unit.pickle {
		return
	}
	r.mu.Lock()
	failed := r.failed
	r.mu.Unlock()
	if !failed {
		r.notify(n, unit.description, e.Result)
	}
	n.TestFinished(unit.description)
}

func (r *reporter) markFailed() {
	r.mu.Lock()
	r.failed = true
	r.mu.Unlock()
}

// notify reports a non-passing result of d.
func (r *reporter) notify(n Notifier, d *Description, res result.Result) {
	err := res.Err
	switch res.Status {
	case result.Passed:
		return
	case result.Skipped:
		if err == nil {
			err = ErrSkipped
		}
		n.TestAssumptionFailure(d, err)
	case result.Pending, result.Undefined:
		if err == nil {
			err = fmt.Errorf("scenario is %s", res.Status)
		}
		if r.strict {
			n.TestFailure(d, err)
		} else {
			n.TestAssumptionFailure(d, err)
		}
	default:
		if err == nil {
			err = fmt.Errorf("scenario is %s", res.Status)
		}
		n.TestFailure(d, err)
	}
}
