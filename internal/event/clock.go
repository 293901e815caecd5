package event

import (
	"sync/atomic"
	"time"
)

// TimeSource supplies event timestamps.
//
// All events of a run are stamped from one TimeSource. Implementations must
// never return a value smaller than a previously returned one.
type TimeSource interface {
	Now() int64
}

// SystemClock reports monotonic nanoseconds elapsed since it was created.
type SystemClock struct {
	start time.Time
}

// NewSystemClock creates a clock anchored at the current instant.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now returns nanoseconds since construction, never less than 1 since zero
// marks an unstamped event. time.Since uses the monotonic reading, so
// wall-clock adjustments do not affect it.
func (c *SystemClock) Now() int64 {
	return max(int64(time.Since(c.start)), 1)
}

// LogicalClock is a strictly increasing counter.
//
// Thread-safety: LogicalClock is safe for concurrent use (atomic operations).
type LogicalClock struct {
	seq atomic.Int64
}

// NewLogicalClock creates a logical clock starting at 0.
func NewLogicalClock() *LogicalClock {
	return &LogicalClock{}
}

// NewLogicalClockAt creates a logical clock whose next value is start+1.
func NewLogicalClockAt(start int64) *LogicalClock {
	c := &LogicalClock{}
	c.seq.Store(start)
	return c
}

// Now returns the next value. Calls are linearizable: each returns a unique,
// increasing value.
func (c *LogicalClock) Now() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out without advancing.
func (c *LogicalClock) Current() int64 {
	return c.seq.Load()
}
