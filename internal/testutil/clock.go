package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time for manual clocks in tests and scenarios.
var Epoch = time.Unix(1_700_000_000, 0).UTC()

// ManualClock is a thread-safe clock that only moves when told to.
//
// Unlike clock.System, ManualClock can be advanced and reset so the same
// scenario produces identical timestamps on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
}

// NewManualClock creates a clock reading start. A zero start uses Epoch.
func NewManualClock(start time.Time) *ManualClock {
	if start.IsZero() {
		start = Epoch
	}
	return &ManualClock{start: start, now: start}
}

// Now implements clock.Clock.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. Negative durations are ignored so
// the clock never runs backwards.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return c.now
}

// Set moves the clock to start+offset, never backwards.
func (c *ManualClock) Set(offset time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.start.Add(offset)
	if next.After(c.now) {
		c.now = next
	}
	return c.now
}

// Elapsed returns how far the clock has moved since start.
func (c *ManualClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Sub(c.start)
}

// Reset returns the clock to its start time.
//
// Used for test reuse.
func (c *ManualClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
