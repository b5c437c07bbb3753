package governance

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quorum/internal/authz"
	"github.com/roach88/quorum/internal/ir"
)

func TestCastVote_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "alice")

	voters := []ir.Identity{"alice", "bob", "carol"}
	const perVoter = 4

	var wg sync.WaitGroup
	errs := make(chan error, len(voters)*perVoter)
	for _, voter := range voters {
		for i := 0; i < perVoter; i++ {
			wg.Add(1)
			go func(voter ir.Identity) {
				defer wg.Done()
				_, err := f.engine.CastVote(ctx, p.ID, voter, ir.VoteYes)
				errs <- err
			}(voter)
		}
	}
	wg.Wait()
	close(errs)

	var accepted, duplicates int
	for err := range errs {
		switch {
		case err == nil:
			accepted++
		case authz.CodeOf(err) == authz.CodeDuplicateVote:
			duplicates++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, len(voters), accepted)
	assert.Equal(t, len(voters)*(perVoter-1), duplicates)

	stored, err := f.engine.Proposal(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.VoteTally{Yes: 200}, stored.Tally)
	assert.ElementsMatch(t, voters, stored.Voters)
	assert.True(t, stored.QuorumReached)
}

func TestCreateProposal_ConcurrentSingleProposer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const callers = 6
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.CreateProposal(ctx, ProposalRequest{Proposer: "alice", Title: "t"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var created int
	for err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.Equal(t, authz.CodeRateLimited, authz.CodeOf(err), "error: %v", err)
	}
	assert.Equal(t, 1, created, "the cooldown admits one proposal per window")

	state, err := f.engine.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), state.ProposalCount)
	assert.Equal(t, 1, state.ActiveProposals)
}
