package glue

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/roach88/cuke/internal/result"
)

// Body is an executable step or hook body.
type Body func(ctx context.Context) error

// Invoke runs body and converts its outcome into an error.
//
// A zero timeout runs body inline without a deadline. A positive timeout
// runs body on its own goroutine under a context deadline; when the deadline
// passes first Invoke returns a *TimeoutError and the body is abandoned.
// When ctx itself ends first its error is returned as is. A panicking body
// yields a *PanicError.
func Invoke(ctx context.Context, timeout time.Duration, body Body) error {
	if timeout <= 0 {
		return call(ctx, body)
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- call(ctx, body)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if err := parent.Err(); err != nil {
			return err
		}
		return &TimeoutError{Timeout: timeout}
	}
}

func call(ctx context.Context, body Body) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return body(ctx)
}

// StatusOf classifies the error returned by a body.
func StatusOf(err error) result.Status {
	switch {
	case err == nil:
		return result.Passed
	case IsPending(err):
		return result.Pending
	case IsUndefined(err):
		return result.Undefined
	case IsAmbiguous(err):
		return result.Ambiguous
	default:
		return result.Failed
	}
}
