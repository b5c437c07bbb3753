package governance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quorum/internal/authz"
	"github.com/roach88/quorum/internal/config"
	"github.com/roach88/quorum/internal/ir"
	"github.com/roach88/quorum/internal/testutil"
)

func (f *fixture) vote(t *testing.T, id uint64, voter ir.Identity, choice ir.VoteChoice) *ir.Proposal {
	t.Helper()
	p, err := f.engine.CastVote(context.Background(), id, voter, choice)
	require.NoError(t, err)
	return p
}

func TestCastVote_TallyAndQuorum(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "alice")

	f.clock.Advance(time.Hour)
	got := f.vote(t, p.ID, "carol", ir.VoteNo)
	assert.Equal(t, ir.VoteTally{No: 30}, got.Tally)
	assert.Equal(t, uint64(30), got.VotingPower)
	assert.False(t, got.QuorumReached, "30 of 200 is below 20%")

	got = f.vote(t, p.ID, "bob", ir.VoteAbstain)
	assert.Equal(t, ir.VoteTally{No: 30, Abstain: 70}, got.Tally)
	assert.True(t, got.QuorumReached)
	assert.Equal(t, []ir.Identity{"carol", "bob"}, got.Voters)
	assert.Equal(t, ir.StatusActive, got.Status)
}

// Deadline-crossing votes finalize in the same operation.
func TestCastVote_FinalizeOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		yes, no  uint64
		abstain  uint64
		expected ir.ProposalStatus
	}{
		{"70/30 passes", 70, 30, 0, ir.StatusPassed},
		{"60/40 fails", 60, 40, 0, ir.StatusFailed},
		{"exactly 66% fails", 66, 34, 0, ir.StatusFailed},
		{"67% passes", 67, 33, 0, ir.StatusPassed},
		{"only abstain fails", 0, 0, 100, ir.StatusFailed},
		{"abstain excluded from ratio", 70, 30, 100, ir.StatusPassed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			for id, amount := range map[ir.Identity]uint64{"y": tt.yes, "n": tt.no, "a": tt.abstain} {
				f.ledger.SetBalance(id, amount)
			}
			p := f.create(t, "alice")

			if tt.yes > 0 {
				f.vote(t, p.ID, "y", ir.VoteYes)
			}
			if tt.abstain > 0 {
				f.vote(t, p.ID, "a", ir.VoteAbstain)
			}

			// The closing vote lands exactly on the deadline.
			f.clock.Set(24 * time.Hour)
			closer, choice := ir.Identity("n"), ir.VoteNo
			if tt.no == 0 {
				closer, choice = "alice", ir.VoteAbstain
			}
			got := f.vote(t, p.ID, closer, choice)
			assert.Equal(t, tt.expected, got.Status)

			state, err := f.engine.State(ctx)
			require.NoError(t, err)
			if tt.expected == ir.StatusFailed {
				assert.Zero(t, state.ActiveProposals)
			} else {
				assert.Equal(t, 1, state.ActiveProposals, "passed proposals count until executed")
			}
		})
	}
}

func TestCastVote_NoQuorumFails(t *testing.T) {
	f := newFixture(t)
	f.ledger.SetBalance("whale", 10_000)
	p := f.create(t, "alice")

	f.clock.Set(24 * time.Hour)
	got := f.vote(t, p.ID, "bob", ir.VoteYes)
	assert.False(t, got.QuorumReached)
	assert.Equal(t, ir.StatusFailed, got.Status)
}

func TestCastVote_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "alice")
	f.vote(t, p.ID, "bob", ir.VoteYes)

	_, err := f.engine.CastVote(ctx, 99, "bob", ir.VoteYes)
	requireCode(t, err, authz.CodeProposalNotFound)

	_, err = f.engine.CastVote(ctx, p.ID, "carol", ir.VoteChoice(9))
	requireCode(t, err, authz.CodeInvalidInput)

	_, err = f.engine.CastVote(ctx, p.ID, "nobody", ir.VoteYes)
	requireCode(t, err, authz.CodeZeroWeight)

	// A second vote is a replay regardless of choice.
	for _, choice := range []ir.VoteChoice{ir.VoteYes, ir.VoteNo, ir.VoteAbstain} {
		_, err = f.engine.CastVote(ctx, p.ID, "bob", choice)
		requireCode(t, err, authz.CodeDuplicateVote)
		assert.Equal(t, authz.CategoryReplay, authz.CodeOf(err).Category())
	}

	f.clock.Set(24*time.Hour + time.Second)
	_, err = f.engine.CastVote(ctx, p.ID, "carol", ir.VoteNo)
	requireCode(t, err, authz.CodeVotingClosed)

	stored, err := f.engine.Proposal(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.VoteTally{Yes: 70}, stored.Tally, "rejected votes change nothing")
	assert.Equal(t, []ir.Identity{"bob"}, stored.Voters)
}

func TestCastVote_NotActive(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "alice")

	f.clock.Set(24 * time.Hour)
	f.vote(t, p.ID, "bob", ir.VoteYes)

	_, err := f.engine.CastVote(context.Background(), p.ID, "carol", ir.VoteYes)
	requireCode(t, err, authz.CodeNotActive)
}

// Weight is read from the oracle at vote time, not snapshotted.
func TestCastVote_LiveWeight(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "alice")

	f.ledger.SetBalance("bob", 5)
	got := f.vote(t, p.ID, "bob", ir.VoteYes)
	assert.Equal(t, uint64(5), got.Tally.Yes)

	f.ledger.SetBalance("carol", 90)
	got = f.vote(t, p.ID, "carol", ir.VoteYes)
	assert.Equal(t, uint64(95), got.Tally.Yes)
}

func TestCastVote_Paused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "alice")
	require.NoError(t, f.engine.Pause(ctx, admin))

	// Even a nonexistent proposal reports paused first.
	_, err := f.engine.CastVote(ctx, 99, "nobody", ir.VoteChoice(0))
	requireCode(t, err, authz.CodeContractPaused)
	_, err = f.engine.CastVote(ctx, p.ID, "bob", ir.VoteYes)
	requireCode(t, err, authz.CodeContractPaused)
}

func TestCastVote_VoterCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "alice")

	limit := config.Default().Store.MaxVoters
	for i := 0; i < limit; i++ {
		id := ir.Identity("v" + string(rune('a'+i%26)) + string(rune('a'+i/26)))
		f.ledger.SetBalance(id, 1)
		f.vote(t, p.ID, id, ir.VoteYes)
	}

	f.ledger.SetBalance("late", 1)
	_, err := f.engine.CastVote(ctx, p.ID, "late", ir.VoteYes)
	requireCode(t, err, authz.CodeCapacityExceeded)
}

func TestFinalize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "alice")
	f.vote(t, p.ID, "bob", ir.VoteYes)

	_, err := f.engine.Finalize(ctx, 42)
	requireCode(t, err, authz.CodeProposalNotFound)

	_, err = f.engine.Finalize(ctx, p.ID)
	requireCode(t, err, authz.CodeVotingStillOpen)

	f.clock.Set(30 * time.Hour)
	got, err := f.engine.Finalize(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.StatusPassed, got.Status)

	_, err = f.engine.Finalize(ctx, p.ID)
	requireCode(t, err, authz.CodeNotActive)

	require.NoError(t, f.engine.Pause(ctx, admin))
	_, err = f.engine.Finalize(ctx, 42)
	requireCode(t, err, authz.CodeContractPaused)
}

func TestFinalize_AtDeadline(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "alice")

	f.clock.Set(24 * time.Hour)
	got, err := f.engine.Finalize(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.StatusFailed, got.Status)
}

func TestOutcome_RequiresDecidedVotes(t *testing.T) {
	p := &ir.Proposal{QuorumReached: true, Tally: ir.VoteTally{Yes: 1}}
	assert.Equal(t, ir.StatusPassed, outcome(p, 66))

	p.Tally = ir.VoteTally{}
	assert.Equal(t, ir.StatusFailed, outcome(p, 66))
}

func TestCastVote_DeadlineSubSecond(t *testing.T) {
	start := testutil.Epoch.Add(900 * time.Millisecond)
	f := newFixtureAt(t, start)
	p := f.create(t, "alice")

	stored, err := f.engine.Proposal(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, stored.VotingEndsAt.Equal(start.Add(24*time.Hour)), "VotingEndsAt = %v", stored.VotingEndsAt)

	f.clock.Advance(24*time.Hour - 200*time.Millisecond)
	got := f.vote(t, p.ID, "carol", ir.VoteYes)
	assert.Equal(t, ir.StatusActive, got.Status)
	assert.Equal(t, uint64(30), got.Tally.Yes)
}
