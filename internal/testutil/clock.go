package testutil

import (
	"sync"
	"time"
)

// DeterministicClock provides a thread-safe monotonic clock for tests.
//
// Every call to Now advances the clock by a fixed tick, so the durations
// computed from event timestamps are reproducible. Unlike event.LogicalClock,
// DeterministicClock can be reset for test reuse.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu   sync.Mutex
	seq  int64
	tick int64
}

// NewDeterministicClock creates a clock starting at 0 with a tick of 1.
//
// The first call to Now() returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{tick: 1}
}

// NewTickingClock creates a clock that advances by d on every read.
func NewTickingClock(d time.Duration) *DeterministicClock {
	if d <= 0 {
		d = 1
	}
	return &DeterministicClock{tick: int64(d)}
}

// Now advances the clock by one tick and returns the new reading.
//
// Implements event.TimeSource.
func (c *DeterministicClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq += c.tick
	return c.seq
}

// Current returns the current reading without advancing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds the clock to 0.
//
// After Reset(), the next call to Now() returns one tick.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
