package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cuke/internal/backend/funcs"
	"github.com/roach88/cuke/internal/event"
	"github.com/roach88/cuke/internal/glue"
	"github.com/roach88/cuke/internal/pickle"
	"github.com/roach88/cuke/internal/result"
	"github.com/roach88/cuke/internal/testutil"
)

func newRunner(t *testing.T, b *funcs.Backend, opts Options) (*Runner, *event.Recorder) {
	t.Helper()
	testutil.SilenceLogs(t)
	reg, err := glue.Load([]glue.Backend{b}, nil)
	require.NoError(t, err)
	bus := event.NewBus(testutil.NewDeterministicClock())
	return New(reg, bus, opts), event.NewRecorder(bus)
}

func scenario(tags []string, steps ...string) *pickle.Pickle {
	p := &pickle.Pickle{URI: "a.feature", Name: "s", Locations: []pickle.Location{{Line: 2}}}
	for _, tag := range tags {
		p.Tags = append(p.Tags, pickle.Tag{Name: tag})
	}
	for i, text := range steps {
		p.Steps = append(p.Steps, &pickle.Step{Keyword: "Given ", Text: text, Locations: []pickle.Location{{Line: 3 + i}}})
	}
	return p
}

func stepStatuses(rec *event.Recorder) []result.Status {
	var out []result.Status
	for _, e := range rec.Events() {
		if sf, ok := e.(event.StepFinished); ok {
			out = append(out, sf.Result.Status)
		}
	}
	return out
}

func hookLocations(rec *event.Recorder) []string {
	var out []string
	for _, e := range rec.Events() {
		if hf, ok := e.(event.HookFinished); ok {
			out = append(out, hf.Location)
		}
	}
	return out
}

func TestRunPickle_AllPass(t *testing.T) {
	b := funcs.New().
		Given(`^a$`, func() {}).
		Given(`^b$`, func() {}).
		Before(func() {}, funcs.WithLocation("before")).
		After(func() {}, funcs.WithLocation("after"))
	r, rec := newRunner(t, b, Options{})

	res, err := r.RunPickle(context.Background(), scenario(nil, "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, result.Passed, res.Status)

	assert.Equal(t, []event.Kind{
		event.KindScenarioStarted,
		event.KindHookStarted, event.KindHookFinished,
		event.KindStepStarted, event.KindStepFinished,
		event.KindStepStarted, event.KindStepFinished,
		event.KindHookStarted, event.KindHookFinished,
		event.KindScenarioFinished,
	}, rec.Kinds())
	assert.Equal(t, NotStarted, r.State())
}

func TestRunPickle_StepStartedCarriesMatchedLocation(t *testing.T) {
	r, rec := newRunner(t, funcs.New().Given(`^a$`, func() {}, funcs.WithLocation("steps.go:9")), Options{})
	_, err := r.RunPickle(context.Background(), scenario(nil, "a"))
	require.NoError(t, err)

	for _, e := range rec.Events() {
		if ss, ok := e.(event.StepStarted); ok {
			assert.Equal(t, "steps.go:9", ss.Location)
			assert.Equal(t, "a", ss.Step.Text)
		}
	}
}

func TestRunPickle_FailureSkipsRemainingSteps(t *testing.T) {
	var ran []string
	b := funcs.New().
		Given(`^ok (\w+)$`, func(s string) { ran = append(ran, s) }).
		Given(`^fail$`, func() error { return errors.New("nope") })
	r, rec := newRunner(t, b, Options{})

	res, err := r.RunPickle(context.Background(), scenario(nil, "ok one", "fail", "ok two"))
	require.NoError(t, err)
	assert.Equal(t, result.Failed, res.Status)
	assert.EqualError(t, res.Err, "nope")
	assert.Equal(t, []string{"one"}, ran)
	assert.Equal(t, []result.Status{result.Passed, result.Failed, result.Skipped}, stepStatuses(rec))
}

func TestRunPickle_UndefinedStepIsMostSevere(t *testing.T) {
	b := funcs.New().Given(`^a$`, func() {}).Given(`^b$`, func() error { return errors.New("x") })
	r, rec := newRunner(t, b, Options{})

	res, err := r.RunPickle(context.Background(), scenario(nil, "a", "missing", "a"))
	require.NoError(t, err)
	assert.Equal(t, result.Undefined, res.Status)
	assert.Equal(t, []result.Status{result.Passed, result.Undefined, result.Skipped}, stepStatuses(rec))

	var snippets []event.SnippetSuggested
	for _, e := range rec.Events() {
		if s, ok := e.(event.SnippetSuggested); ok {
			snippets = append(snippets, s)
		}
	}
	require.Len(t, snippets, 1)
	assert.Equal(t, "missing", snippets[0].Step.Text)
	assert.NotEmpty(t, snippets[0].Snippets)
}

func TestRunPickle_FailedAndPassedIsFailed(t *testing.T) {
	b := funcs.New().Given(`^a$`, func() {}).Given(`^b$`, func() error { return errors.New("x") })
	r, _ := newRunner(t, b, Options{})

	res, err := r.RunPickle(context.Background(), scenario(nil, "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, result.Failed, res.Status)
}

func TestRunPickle_UndefinedAfterFailureStillReported(t *testing.T) {
	b := funcs.New().Given(`^b$`, func() error { return errors.New("x") })
	r, rec := newRunner(t, b, Options{})

	res, err := r.RunPickle(context.Background(), scenario(nil, "b", "missing"))
	require.NoError(t, err)
	assert.Equal(t, result.Undefined, res.Status)
	assert.Equal(t, []result.Status{result.Failed, result.Undefined}, stepStatuses(rec))
}

func TestRunPickle_AmbiguousAbortsStepPhase(t *testing.T) {
	b := funcs.New().
		Given(`^a (.*)$`, func(string) {}).
		Given(`^(.*) b$`, func(string) {}).
		Given(`^c$`, func() {}).
		After(func() {}, funcs.WithLocation("cleanup"))
	r, rec := newRunner(t, b, Options{})

	res, err := r.RunPickle(context.Background(), scenario(nil, "a b", "c", "missing"))
	require.NoError(t, err)
	assert.Equal(t, result.Ambiguous, res.Status)
	assert.Equal(t, []result.Status{result.Ambiguous, result.Skipped, result.Skipped}, stepStatuses(rec))
	assert.Equal(t, []string{"cleanup"}, hookLocations(rec))
}

func TestRunPickle_PendingStep(t *testing.T) {
	b := funcs.New().Given(`^later$`, func() error { return glue.Pending("soon") }).Given(`^a$`, func() {})
	r, rec := newRunner(t, b, Options{})

	res, err := r.RunPickle(context.Background(), scenario(nil, "later", "a"))
	require.NoError(t, err)
	assert.Equal(t, result.Pending, res.Status)
	assert.Equal(t, []result.Status{result.Pending, result.Skipped}, stepStatuses(rec))
}

func TestRunPickle_HookOrdering(t *testing.T) {
	var order []string
	mark := func(s string) func() { return func() { order = append(order, s) } }
	b := funcs.New().
		Given(`^a$`, mark("step")).
		Before(mark("b1000"), funcs.WithOrder(1000)).
		Before(mark("b0"), funcs.WithOrder(0)).
		Before(mark("b500"), funcs.WithOrder(500)).
		Before(mark("b500-second"), funcs.WithOrder(500)).
		After(mark("after-default")).
		After(mark("after-10"), funcs.WithOrder(10))
	r, _ := newRunner(t, b, Options{})

	_, err := r.RunPickle(context.Background(), scenario(nil, "a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b0", "b500", "b500-second", "b1000", "step", "after-10", "after-default"}, order)
}

func TestRunPickle_AfterHooksRunWhenBeforeHookFails(t *testing.T) {
	var stepRan bool
	b := funcs.New().
		Given(`^a$`, func() { stepRan = true }).
		Before(func() error { return errors.New("setup") }, funcs.WithLocation("setup")).
		Before(func() {}, funcs.WithOrder(1), funcs.WithLocation("second-before")).
		After(func() {}, funcs.WithLocation("teardown"))

	t.Run("attempt steps", func(t *testing.T) {
		stepRan = false
		r, rec := newRunner(t, b, Options{BeforeHookPolicy: AttemptSteps})
		res, err := r.RunPickle(context.Background(), scenario(nil, "a"))
		require.NoError(t, err)
		assert.Equal(t, result.Failed, res.Status)
		assert.True(t, stepRan)
		assert.Equal(t, []result.Status{result.Passed}, stepStatuses(rec))
		assert.Equal(t, []string{"setup", "second-before", "teardown"}, hookLocations(rec))
	})

	t.Run("skip steps", func(t *testing.T) {
		stepRan = false
		r, rec := newRunner(t, b, Options{BeforeHookPolicy: SkipSteps})
		res, err := r.RunPickle(context.Background(), scenario(nil, "a"))
		require.NoError(t, err)
		assert.Equal(t, result.Failed, res.Status)
		assert.False(t, stepRan)
		assert.Equal(t, []result.Status{result.Skipped}, stepStatuses(rec))
		assert.Equal(t, []string{"setup", "second-before", "teardown"}, hookLocations(rec))
	})
}

func TestRunPickle_AfterHooksRunWhenStepFails(t *testing.T) {
	var scenarioFailed bool
	b := funcs.New().
		Given(`^boom$`, func() { panic("boom") }).
		After(func(_ context.Context, s *glue.Scenario) error {
			scenarioFailed = s.IsFailed()
			return nil
		}, funcs.WithLocation("teardown"))
	r, rec := newRunner(t, b, Options{})

	res, err := r.RunPickle(context.Background(), scenario(nil, "boom"))
	require.NoError(t, err)
	assert.Equal(t, result.Failed, res.Status)
	assert.True(t, scenarioFailed, "after hook sees the failed status")
	assert.Equal(t, []string{"teardown"}, hookLocations(rec))
}

func TestRunPickle_HookTimeoutIsHookFailure(t *testing.T) {
	b := funcs.New().
		Given(`^a$`, func() {}).
		After(func() { time.Sleep(time.Second) }, funcs.WithTimeout(10*time.Millisecond))
	r, rec := newRunner(t, b, Options{})

	res, err := r.RunPickle(context.Background(), scenario(nil, "a"))
	require.NoError(t, err)
	assert.Equal(t, result.Failed, res.Status)
	assert.True(t, glue.IsTimeout(res.Err))

	var hook event.HookFinished
	for _, e := range rec.Events() {
		if hf, ok := e.(event.HookFinished); ok {
			hook = hf
		}
	}
	assert.Equal(t, result.Failed, hook.Result.Status)
}

func TestRunPickle_TaggedHooks(t *testing.T) {
	var ran []string
	b := funcs.New().
		Given(`^a$`, func() {}).
		Before(func() { ran = append(ran, "db") }, funcs.WithTags("@db")).
		Before(func() { ran = append(ran, "all") })
	r, _ := newRunner(t, b, Options{})

	_, err := r.RunPickle(context.Background(), scenario(nil, "a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"all"}, ran)

	ran = nil
	_, err = r.RunPickle(context.Background(), scenario([]string{"@db"}, "a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "all"}, ran)
}

func TestRunPickle_DryRun(t *testing.T) {
	var executed bool
	b := funcs.New().
		Given(`^a$`, func() { executed = true }).
		Before(func() { executed = true })
	r, rec := newRunner(t, b, Options{DryRun: true})

	res, err := r.RunPickle(context.Background(), scenario(nil, "a", "missing"))
	require.NoError(t, err)
	assert.False(t, executed)
	assert.Equal(t, result.Undefined, res.Status)
	assert.Equal(t, []result.Status{result.Skipped, result.Undefined}, stepStatuses(rec))
	assert.Empty(t, hookLocations(rec))
}

func TestRunPickle_WriteFromHook(t *testing.T) {
	b := funcs.New().
		Given(`^a$`, func(ctx context.Context) error {
			s, _ := glue.ScenarioFromContext(ctx)
			s.Write("from step")
			return nil
		}).
		Before(func(s *glue.Scenario) { s.Write("from hook") })
	r, rec := newRunner(t, b, Options{})

	_, err := r.RunPickle(context.Background(), scenario(nil, "a"))
	require.NoError(t, err)

	var texts []string
	for _, e := range rec.Events() {
		if w, ok := e.(event.Write); ok {
			texts = append(texts, w.Text)
		}
	}
	assert.Equal(t, []string{"from hook", "from step"}, texts)
}

func TestRunPickle_AbandonedBodyCannotWriteIntoNextScenario(t *testing.T) {
	release := make(chan struct{})
	wrote := make(chan struct{})
	b := funcs.New().
		Given(`^slow$`, func(ctx context.Context) error {
			s, _ := glue.ScenarioFromContext(ctx)
			<-release
			s.Write("late")
			close(wrote)
			return nil
		}, funcs.WithTimeout(10*time.Millisecond)).
		Given(`^fast$`, func() {})
	r, rec := newRunner(t, b, Options{})

	res, err := r.RunPickle(context.Background(), scenario(nil, "slow"))
	require.NoError(t, err)
	assert.True(t, glue.IsTimeout(res.Err))

	close(release)
	<-wrote
	_, err = r.RunPickle(context.Background(), scenario(nil, "fast"))
	require.NoError(t, err)

	for _, e := range rec.Events() {
		_, ok := e.(event.Write)
		assert.False(t, ok, "write from abandoned body published: %v", e)
	}
}

func TestRunPickle_NotReentrant(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	b := funcs.New().Given(`^block$`, func() {
		close(started)
		<-release
	})
	r, _ := newRunner(t, b, Options{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := r.RunPickle(context.Background(), scenario(nil, "block"))
		assert.NoError(t, err)
	}()

	<-started
	assert.Equal(t, RunningSteps, r.State())
	_, err := r.RunPickle(context.Background(), scenario(nil, "block"))
	require.ErrorIs(t, err, ErrRunnerBusy)

	close(release)
	wg.Wait()
}

func TestRunPickle_DurationsFromBusClock(t *testing.T) {
	b := funcs.New().Given(`^a$`, func() {})
	reg, err := glue.Load([]glue.Backend{b}, nil)
	require.NoError(t, err)
	bus := event.NewBus(testutil.NewTickingClock(time.Millisecond))
	rec := event.NewRecorder(bus)

	res, err := New(reg, bus, Options{}).RunPickle(context.Background(), scenario(nil, "a"))
	require.NoError(t, err)
	assert.Positive(t, res.Duration)

	events := rec.Events()
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Timestamp(), events[i-1].Timestamp())
	}
}

func TestParseBeforeHookPolicy(t *testing.T) {
	p, ok := ParseBeforeHookPolicy("")
	assert.True(t, ok)
	assert.Equal(t, AttemptSteps, p)
	p, ok = ParseBeforeHookPolicy("skip")
	assert.True(t, ok)
	assert.Equal(t, SkipSteps, p)
	assert.Equal(t, "skip", p.String())
	_, ok = ParseBeforeHookPolicy("maybe")
	assert.False(t, ok)
}
