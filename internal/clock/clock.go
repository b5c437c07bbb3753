// Package clock provides the time source consumed by every time-gated check.
package clock

import "time"

// Clock returns the current time. Implementations must be monotonic
// non-decreasing across calls.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock, truncated to whole seconds in UTC so that
// stored timestamps round-trip exactly through unix-second columns.
type System struct{}

// Now implements Clock.
func (System) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// Func adapts a plain function to Clock.
type Func func() time.Time

// Now implements Clock.
func (f Func) Now() time.Time {
	return f()
}
