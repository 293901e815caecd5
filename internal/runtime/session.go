package runtime

import (
	"context"

	"github.com/roach88/cuke/internal/event"
	"github.com/roach88/cuke/internal/pickle"
	"github.com/roach88/cuke/internal/result"
	"github.com/roach88/cuke/internal/runner"
)

// Session owns the Runner of one logical execution thread.
//
// Each goroutine that drives scenarios creates its own Session. The runner
// publishes on a BufferingBus that forwards every event to the root bus as it
// happens, so root subscribers see one publish order with non-decreasing
// timestamps across all sessions. The session's private copy of a pickle's
// events is dropped once the pickle has finished.
type Session struct {
	rt     *Runtime
	bus    *event.BufferingBus
	runner *runner.Runner
}

// NewSession loads the glue if needed and creates a session.
// glue.ErrNoBackends is returned when the provider yields no backend.
func (rt *Runtime) NewSession() (*Session, error) {
	reg, err := rt.Glue()
	if err != nil {
		return nil, err
	}
	bus := event.NewBufferingBus(rt.bus)
	r := runner.New(reg, bus, runner.Options{
		DryRun:           rt.opts.DryRun,
		BeforeHookPolicy: rt.opts.BeforeHookPolicy,
	})
	return &Session{rt: rt, bus: bus, runner: r}, nil
}

// Runner returns the session's runner.
func (s *Session) Runner() *runner.Runner { return s.runner }

// Bus returns the session's buffering bus. Subscribers registered here see
// only this session's events, right after the root bus has delivered them.
func (s *Session) Bus() *event.BufferingBus { return s.bus }

// RunPickle runs one pickle.
func (s *Session) RunPickle(ctx context.Context, p *pickle.Pickle) (result.Result, error) {
	res, err := s.runner.RunPickle(ctx, p)
	s.bus.Discard()
	return res, err
}
