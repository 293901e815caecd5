package describe

import (
	"context"
	"testing"

	"github.com/roach88/cuke/internal/runtime"
)

// RunT runs rt under the Go test framework. Every feature becomes a subtest
// of t and every scenario a subtest of its feature; with StepNotifications
// every step becomes a subtest of its scenario.
//
// Failures fail the matching subtest. Skipped, pending and undefined
// outcomes skip it unless opts.Strict is set.
func RunT(t *testing.T, rt *runtime.Runtime, opts Options) {
	t.Helper()
	ctx := context.Background()

	b, err := New(ctx, rt, opts)
	if err != nil {
		t.Fatalf("cuke: %v", err)
	}

	rt.ReportStepDefinitions(nil)
	rt.Start()
	defer rt.Finish()

	for _, f := range b.Features() {
		if f.IsEmpty() {
			continue
		}
		t.Run(f.Description().DisplayName, func(t *testing.T) {
			for _, pr := range f.Children() {
				t.Run(pr.Description().DisplayName, func(t *testing.T) {
					n := &testNotifier{t: t, scenario: pr.Description()}
					if err := pr.Run(ctx, n); err != nil {
						t.Fatalf("cuke: %v", err)
					}
					n.apply()
				})
			}
		})
	}
}

// testNotifier maps notifications onto *testing.T. Steps run as subtests
// when they finish; the scenario outcome is applied once the scenario
// returns, since Skip and Fatal must not be called from an event handler.
type testNotifier struct {
	t        *testing.T
	scenario *Description

	stepFailure error
	stepSkip    error

	failures []error
	skip     error
}

func (n *testNotifier) TestStarted(d *Description) {
	if d != n.scenario {
		n.stepFailure, n.stepSkip = nil, nil
	}
}

func (n *testNotifier) TestFinished(d *Description) {
	if d == n.scenario {
		return
	}
	failure, skip := n.stepFailure, n.stepSkip
	n.t.Run(d.DisplayName, func(t *testing.T) {
		switch {
		case failure != nil:
			t.Error(failure)
		case skip != nil:
			t.Skip(skip.Error())
		}
	})
}

func (n *testNotifier) TestFailure(d *Description, err error) {
	if d == n.scenario {
		n.failures = append(n.failures, err)
		return
	}
	n.stepFailure = err
}

func (n *testNotifier) TestAssumptionFailure(d *Description, err error) {
	if d == n.scenario {
		n.skip = err
		return
	}
	n.stepSkip = err
}

func (n *testNotifier) TestIgnored(d *Description) {
	n.TestAssumptionFailure(d, ErrSkipped)
}

func (n *testNotifier) apply() {
	for _, err := range n.failures {
		n.t.Error(err)
	}
	if len(n.failures) == 0 && n.skip != nil {
		n.t.Skip(n.skip.Error())
	}
}
