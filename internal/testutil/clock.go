package testutil

import (
	"sync"
	"time"
)

// DeterministicClock is a settable wall clock for tests.
//
// Now returns the same instant until Advance moves it, so merge stamps and
// registration times are reproducible across runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
}

// NewDeterministicClock creates a clock reading start, normalized to UTC.
func NewDeterministicClock(start time.Time) *DeterministicClock {
	start = start.UTC()
	return &DeterministicClock{start: start, now: start}
}

// Now returns the current instant. It has the signature of time.Now so it
// can be passed wherever a clock function is expected.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new instant.
//
// Panics if d is negative: the clock never runs backwards.
func (c *DeterministicClock) Advance(d time.Duration) time.Time {
	if d < 0 {
		panic("DeterministicClock: negative advance")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Reset returns the clock to its start instant.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
