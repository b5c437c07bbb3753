package ir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProposalStatusTransitions(t *testing.T) {
	all := []ProposalStatus{StatusActive, StatusPassed, StatusFailed, StatusExecuted}
	legal := map[[2]ProposalStatus]bool{
		{StatusActive, StatusPassed}:   true,
		{StatusActive, StatusFailed}:   true,
		{StatusPassed, StatusExecuted}: true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, legal[[2]ProposalStatus{from, to}], from.CanTransition(to),
				"%s -> %s", from, to)
		}
	}
}

func TestProposalStatusRoundTrip(t *testing.T) {
	for _, s := range []ProposalStatus{StatusActive, StatusPassed, StatusFailed, StatusExecuted} {
		parsed, err := ParseProposalStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseProposalStatus("Cancelled")
	assert.Error(t, err)
}

func TestParseVoteChoice(t *testing.T) {
	c, err := ParseVoteChoice("yes")
	require.NoError(t, err)
	assert.Equal(t, VoteYes, c)

	c, err = ParseVoteChoice("Abstain")
	require.NoError(t, err)
	assert.Equal(t, VoteAbstain, c)

	_, err = ParseVoteChoice("maybe")
	assert.Error(t, err)
}

func TestVoteTallyAdd(t *testing.T) {
	var tally VoteTally
	require.NoError(t, tally.Add(VoteYes, 70))
	require.NoError(t, tally.Add(VoteNo, 30))
	require.NoError(t, tally.Add(VoteAbstain, 5))

	assert.Equal(t, VoteTally{Yes: 70, No: 30, Abstain: 5}, tally)
	assert.Equal(t, uint64(100), tally.Decided())

	assert.Error(t, tally.Add(VoteChoice(9), 1))
	assert.Equal(t, uint64(100), tally.Decided(), "unknown choice must not mutate")
}

func TestCloneDoesNotAlias(t *testing.T) {
	p := &Proposal{Voters: []Identity{"a"}, Payload: []byte{1}}
	c := p.Clone()
	c.Voters[0] = "b"
	c.Payload[0] = 2
	assert.Equal(t, Identity("a"), p.Voters[0])
	assert.Equal(t, byte(1), p.Payload[0])

	tx := &Transaction{Approvals: []Identity{"a"}}
	tc := tx.Clone()
	tc.Approvals = append(tc.Approvals, "b")
	assert.Len(t, tx.Approvals, 1)

	gs := &GovernanceState{LastProposalAt: map[Identity]time.Time{}}
	gc := gs.Clone()
	gc.LastProposalAt["x"] = time.Unix(1, 0)
	assert.Empty(t, gs.LastProposalAt)

	ts := &TreasuryState{Signers: []Identity{"a"}}
	tsc := ts.Clone()
	tsc.Signers[0] = "z"
	assert.Equal(t, Identity("a"), ts.Signers[0])
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("r-1")
	assert.Equal(t, "r-1", g.Generate())
	assert.Equal(t, "receipt-2", g.Generate())
}

func TestProposalStatusJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Status ProposalStatus `json:"status"`
	}{StatusPassed})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"Passed"}`, string(data))

	var decoded struct {
		Status ProposalStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"status":"Executed"}`), &decoded))
	assert.Equal(t, StatusExecuted, decoded.Status)

	assert.Error(t, json.Unmarshal([]byte(`{"status":"Pending"}`), &decoded))
}
