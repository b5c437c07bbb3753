// Package breaker implements the administrative circuit breaker shared by
// the governance and treasury engines.
//
// The breaker holds no identity of its own. Its state is an ir.BreakerState
// embedded in the owning engine's aggregate and is mutated only through
// that engine's operations.
package breaker

import (
	"github.com/roach88/quorum/internal/authz"
	"github.com/roach88/quorum/internal/ir"
)

// RequireUnpaused fails ContractPaused if the breaker is tripped.
// Every mutating engine operation calls this before any other check.
func RequireUnpaused(s ir.BreakerState) error {
	if s.Paused {
		return authz.New(authz.CodeContractPaused, "engine is paused")
	}
	return nil
}

// RequireAdmin fails Unauthorized unless caller is the breaker admin.
func RequireAdmin(s ir.BreakerState, caller ir.Identity) error {
	if caller == "" || caller != s.Admin {
		return authz.New(authz.CodeUnauthorized, "caller is not the emergency admin").
			With("caller", string(caller))
	}
	return nil
}

// Pause trips the breaker. Pausing an already-paused engine is a no-op.
func Pause(s *ir.BreakerState, caller ir.Identity) error {
	if err := RequireAdmin(*s, caller); err != nil {
		return err
	}
	s.Paused = true
	return nil
}

// Unpause resets the breaker.
func Unpause(s *ir.BreakerState, caller ir.Identity) error {
	if err := RequireAdmin(*s, caller); err != nil {
		return err
	}
	s.Paused = false
	return nil
}

// RotateAdmin hands the admin role to next.
func RotateAdmin(s *ir.BreakerState, caller, next ir.Identity) error {
	if err := RequireAdmin(*s, caller); err != nil {
		return err
	}
	if next == "" {
		return authz.New(authz.CodeInvalidInput, "new admin identity is empty")
	}
	s.Admin = next
	return nil
}
