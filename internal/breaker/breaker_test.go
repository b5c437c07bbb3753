package breaker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quorum/internal/authz"
	"github.com/roach88/quorum/internal/ir"
)

func TestRequireUnpaused(t *testing.T) {
	assert.NoError(t, RequireUnpaused(ir.BreakerState{}))

	err := RequireUnpaused(ir.BreakerState{Paused: true})
	assert.True(t, authz.Is(err, authz.CodeContractPaused))
}

func TestRequireAdmin(t *testing.T) {
	s := ir.BreakerState{Admin: "root"}
	assert.NoError(t, RequireAdmin(s, "root"))
	assert.True(t, authz.Is(RequireAdmin(s, "mallory"), authz.CodeUnauthorized))
	assert.True(t, authz.Is(RequireAdmin(s, ""), authz.CodeUnauthorized))

	// An unset admin matches nobody, including the empty identity.
	assert.True(t, authz.Is(RequireAdmin(ir.BreakerState{}, ""), authz.CodeUnauthorized))
}

func TestPauseUnpause(t *testing.T) {
	s := ir.BreakerState{Admin: "root"}

	require.NoError(t, Pause(&s, "root"))
	assert.True(t, s.Paused)

	require.NoError(t, Pause(&s, "root"), "pause is idempotent")
	assert.True(t, s.Paused)

	require.NoError(t, Unpause(&s, "root"))
	assert.False(t, s.Paused)
}

func TestPause_NonAdminLeavesStateUntouched(t *testing.T) {
	s := ir.BreakerState{Admin: "root"}
	err := Pause(&s, "mallory")
	assert.True(t, authz.Is(err, authz.CodeUnauthorized))
	assert.False(t, s.Paused)

	s.Paused = true
	err = Unpause(&s, "mallory")
	assert.True(t, authz.Is(err, authz.CodeUnauthorized))
	assert.True(t, s.Paused)
}

func TestRotateAdmin(t *testing.T) {
	s := ir.BreakerState{Admin: "root"}

	require.NoError(t, RotateAdmin(&s, "root", "ops"))
	assert.Equal(t, ir.Identity("ops"), s.Admin)

	// The old admin has lost control.
	assert.True(t, authz.Is(Pause(&s, "root"), authz.CodeUnauthorized))
	require.NoError(t, Pause(&s, "ops"))

	err := RotateAdmin(&s, "ops", "")
	assert.True(t, authz.Is(err, authz.CodeInvalidInput))
	assert.Equal(t, ir.Identity("ops"), s.Admin)
}
