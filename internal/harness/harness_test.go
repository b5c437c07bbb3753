package harness

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioDir = "../../testdata/scenarios"

func uptr(v uint64) *uint64 { return &v }

func TestRunWithGolden_Scenarios(t *testing.T) {
	tests := []string{
		"governance_lifecycle",
		"governance_guards",
		"treasury_threshold",
		"treasury_transfer_failure",
	}

	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join(scenarioDir, name+".yaml"))
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name, "scenario name must match its golden file")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Len(t, result.Trace, len(scenario.Steps))
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenarioDir, "treasury_threshold.yaml"))
	require.NoError(t, err)

	first, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	second, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	a, err := MarshalTrace(first.Trace)
	require.NoError(t, err)
	b, err := MarshalTrace(second.Trace)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_ExpectationMismatch(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "second init is rejected but expected to succeed",
		Steps: []Step{
			{Op: OpGovInit, Args: StepArgs{Caller: "alice"}},
			{Op: OpGovInit, Args: StepArgs{Caller: "alice"}},
			{Op: OpGovPause, Args: StepArgs{Caller: "alice"}, Expect: OutcomeOK},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "step 1 (gov.init): expected ok, got AlreadyInitialized")

	// The run continues past the mismatch.
	require.Len(t, result.Trace, 3)
	assert.Equal(t, "AlreadyInitialized", result.Trace[1].Outcome)
	assert.Equal(t, OutcomeOK, result.Trace[2].Outcome)
}

func TestRun_UninitializedEngines(t *testing.T) {
	scenario := &Scenario{
		Name:        "uninitialized",
		Description: "every op against a missing aggregate is NotInitialized",
		Steps: []Step{
			{Op: OpGovCreate, Args: StepArgs{Proposer: "alice", Title: "t"}, Expect: "NotInitialized"},
			{Op: OpTreasuryExecute, Args: StepArgs{ID: uptr(0)}, Expect: "NotInitialized"},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_UnknownChoiceIsInvalidInput(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_choice",
		Description: "unknown ballot option",
		Config:      map[string]any{"governance": map[string]any{"min_proposal_weight": 1}},
		Balances:    map[string]uint64{"alice": 10},
		Steps: []Step{
			{Op: OpGovInit, Args: StepArgs{Caller: "alice"}},
			{Op: OpGovCreate, Args: StepArgs{Proposer: "alice", Title: "t"}},
			{Op: OpGovVote, Args: StepArgs{ID: uptr(1), Voter: "alice", Choice: "maybe"}, Expect: "InvalidInput"},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_LedgerSetChangesLiveWeight(t *testing.T) {
	scenario := &Scenario{
		Name:        "live_weight",
		Description: "vote weight is read when the vote is cast",
		Config:      map[string]any{"governance": map[string]any{"min_proposal_weight": 1}},
		Balances:    map[string]uint64{"alice": 10, "bob": 90},
		Steps: []Step{
			{Op: OpGovInit, Args: StepArgs{Caller: "alice"}},
			{Op: OpGovCreate, Args: StepArgs{Proposer: "alice", Title: "t"}},
			{Op: OpLedgerSet, Args: StepArgs{Identity: "bob", Amount: 0}},
			{Op: OpGovVote, Args: StepArgs{ID: uptr(1), Voter: "bob", Choice: "yes"}, Expect: "ZeroWeight"},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_InvalidConfig(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_config",
		Description: "quorum above 100 percent",
		Config:      map[string]any{"governance": map[string]any{"quorum_percent": 150}},
		Steps:       []Step{{Op: OpGovInit, Args: StepArgs{Caller: "alice"}}},
	}

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad_config")
}

func TestRun_ClockNeverMovesBackwards(t *testing.T) {
	scenario := &Scenario{
		Name:        "clock",
		Description: "offsets are absolute",
		Steps: []Step{
			{At: Offset(90 * time.Minute), Op: OpGovInit, Args: StepArgs{Caller: "alice"}},
			{At: Offset(90 * time.Minute), Op: OpGovPause, Args: StepArgs{Caller: "alice"}},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, int64(5400), result.Trace[0].At)
	assert.Equal(t, int64(5400), result.Trace[1].At)
	assert.Equal(t, int64(1), result.Trace[0].Seq)
	assert.Equal(t, int64(2), result.Trace[1].Seq)
}
