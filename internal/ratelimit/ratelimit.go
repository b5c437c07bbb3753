// Package ratelimit implements rolling time-window accounting.
//
// Every check here is a pure function of (now, state). Nothing is stored:
// the state lives in the owning engine's aggregate (a last-action time or
// an ir.RateWindow), and a check that succeeds returns the value the caller
// should commit alongside the guarded operation.
//
// Each limiter fails with its own named code so callers can tell "too soon"
// from "too much":
//   - Cooldown: caller-chosen code (RateLimited, TransactionCooldownActive)
//   - DailyCap: DailyLimitExceeded
//   - StaticCap: RateLimitExceeded
package ratelimit

import (
	"fmt"
	"math/bits"
	"strconv"
	"time"

	"github.com/roach88/quorum/internal/authz"
	"github.com/roach88/quorum/internal/ir"
)

// DefaultWindow is the rolling period of a daily cap.
const DefaultWindow = 24 * time.Hour

// Cooldown enforces a minimum gap between two actions of the same actor.
type Cooldown struct {
	Period time.Duration // Minimum elapsed time between actions
	Code   authz.Code    // Failure code reported while cooling down
}

// Check passes when now >= last + Period. A zero last means the actor has
// never acted and always passes.
func (c Cooldown) Check(now, last time.Time) error {
	if last.IsZero() {
		return nil
	}
	readyAt := last.Add(c.Period)
	if now.Before(readyAt) {
		return authz.Newf(c.Code, "cooldown active for another %s", readyAt.Sub(now)).
			With("ready_at", strconv.FormatInt(readyAt.Unix(), 10))
	}
	return nil
}

// DailyCap bounds the volume accumulated within a rolling window.
//
// The window resets lazily: it only moves when a check runs after the
// window has elapsed, and then restarts at that check's time rather than
// at a fixed wall-clock boundary.
type DailyCap struct {
	Limit  uint64        // Maximum accumulated amount per window
	Window time.Duration // Window length (DefaultWindow when zero)
}

func (c DailyCap) window() time.Duration {
	if c.Window <= 0 {
		return DefaultWindow
	}
	return c.Window
}

// Roll applies the lazy reset: if now - LastReset >= Window, the returned
// window is zeroed and restarted at now. The input is not modified.
func (c DailyCap) Roll(w ir.RateWindow, now time.Time) ir.RateWindow {
	if now.Sub(w.LastReset) >= c.window() {
		return ir.RateWindow{Accumulated: 0, LastReset: now}
	}
	return w
}

// Admit reports whether amount fits under the cap after the lazy reset,
// without accumulating it. Used at admission time (proposal).
func (c DailyCap) Admit(w ir.RateWindow, now time.Time, amount uint64) error {
	_, err := c.Check(w, now, amount)
	return err
}

// Check evaluates the cap and returns the window to commit if the guarded
// operation goes ahead: rolled, with amount accumulated. On failure the
// returned window is the input, unchanged.
func (c DailyCap) Check(w ir.RateWindow, now time.Time, amount uint64) (ir.RateWindow, error) {
	rolled := c.Roll(w, now)

	total, carry := bits.Add64(rolled.Accumulated, amount, 0)
	if carry != 0 || total > c.Limit {
		return w, authz.Newf(authz.CodeDailyLimitExceeded,
			"daily limit %d exceeded: %d already transferred, %d requested", c.Limit, rolled.Accumulated, amount).
			With("limit", strconv.FormatUint(c.Limit, 10)).
			With("accumulated", strconv.FormatUint(rolled.Accumulated, 10))
	}

	rolled.Accumulated = total
	return rolled, nil
}

// Remaining returns how much can still be accumulated at now.
func (c DailyCap) Remaining(w ir.RateWindow, now time.Time) uint64 {
	rolled := c.Roll(w, now)
	if rolled.Accumulated >= c.Limit {
		return 0
	}
	return c.Limit - rolled.Accumulated
}

// StaticCap is a single-call ceiling expressed as a percentage of a base
// (total supply), independent of history.
type StaticCap struct {
	Percent uint64 // Allowed share of base, 0-100
}

// Check passes when amount <= base * Percent / 100, computed without
// truncation or overflow.
func (c StaticCap) Check(amount, base uint64) error {
	if !AtMostPercent(amount, base, c.Percent) {
		return authz.Newf(authz.CodeRateLimitExceeded,
			"amount %d exceeds %d%% of %d", amount, c.Percent, base).
			With("percent", strconv.FormatUint(c.Percent, 10))
	}
	return nil
}

// AtMostPercent reports amount*100 <= base*percent using 128-bit products.
func AtMostPercent(amount, base, percent uint64) bool {
	return cmp128(mul128(amount, 100), mul128(base, percent)) <= 0
}

// AtLeastPercent reports amount*100 >= base*percent.
func AtLeastPercent(amount, base, percent uint64) bool {
	return cmp128(mul128(amount, 100), mul128(base, percent)) >= 0
}

// MoreThanPercent reports amount*100 > base*percent.
func MoreThanPercent(amount, base, percent uint64) bool {
	return cmp128(mul128(amount, 100), mul128(base, percent)) > 0
}

type uint128 struct{ hi, lo uint64 }

func mul128(a, b uint64) uint128 {
	hi, lo := bits.Mul64(a, b)
	return uint128{hi, lo}
}

func cmp128(a, b uint128) int {
	switch {
	case a.hi < b.hi:
		return -1
	case a.hi > b.hi:
		return 1
	case a.lo < b.lo:
		return -1
	case a.lo > b.lo:
		return 1
	}
	return 0
}

// String renders a cap for logs.
func (c DailyCap) String() string {
	return fmt.Sprintf("%d per %s", c.Limit, c.window())
}
