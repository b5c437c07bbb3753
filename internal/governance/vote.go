package governance

import (
	"context"
	"fmt"
	"log/slog"
	"math/bits"
	"strconv"
	"time"

	"github.com/roach88/quorum/internal/authz"
	"github.com/roach88/quorum/internal/breaker"
	"github.com/roach88/quorum/internal/ir"
	"github.com/roach88/quorum/internal/ratelimit"
)

// CastVote records voter's current oracle weight for choice.
//
// A vote is accepted up to and including the deadline. If the vote's time
// is at or past the deadline the proposal is finalized in the same commit.
func (e *Engine) CastVote(ctx context.Context, id uint64, voter ir.Identity, choice ir.VoteChoice) (*ir.Proposal, error) {
	const op = "cast_vote"

	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.loadState(ctx, op)
	if err != nil {
		return nil, err
	}
	if err := breaker.RequireUnpaused(state.Breaker); err != nil {
		return nil, reject(op, err)
	}
	p, err := e.loadProposal(ctx, op, id)
	if err != nil {
		return nil, err
	}

	switch choice {
	case ir.VoteYes, ir.VoteNo, ir.VoteAbstain:
	default:
		return nil, reject(op, authz.Newf(authz.CodeInvalidInput, "unknown vote choice %s", choice))
	}

	if p.Status != ir.StatusActive {
		return nil, reject(op, authz.Newf(authz.CodeNotActive, "proposal %d is %s", id, p.Status))
	}
	now := e.clock.Now()
	if now.After(p.VotingEndsAt) {
		return nil, reject(op, authz.Newf(authz.CodeVotingClosed, "voting on proposal %d closed", id).
			With("voting_ends_at", formatUnix(p.VotingEndsAt)))
	}

	weight, err := e.oracle.BalanceOf(ctx, voter)
	if err != nil {
		return nil, fmt.Errorf("%s: balance of %s: %w", op, voter, err)
	}
	if weight == 0 {
		return nil, reject(op, authz.New(authz.CodeZeroWeight, "voter has no weight").
			With("voter", string(voter)))
	}
	if p.HasVoted(voter) {
		return nil, reject(op, authz.Newf(authz.CodeDuplicateVote, "%s already voted on proposal %d", voter, id))
	}
	if _, carry := bits.Add64(p.VotingPower, weight, 0); carry != 0 {
		return nil, reject(op, authz.New(authz.CodeInvalidInput, "voting power overflows"))
	}

	supply, err := e.oracle.TotalSupply(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: total supply: %w", op, err)
	}

	next := p.Clone()
	// The closed choice set was checked above, so Add cannot fail.
	_ = next.Tally.Add(choice, weight)
	next.VotingPower += weight
	next.Voters = append(next.Voters, voter)
	if !next.QuorumReached && ratelimit.AtLeastPercent(next.VotingPower, supply, e.cfg.QuorumPercent) {
		next.QuorumReached = true
	}

	nextState := state.Clone()
	if !now.Before(next.VotingEndsAt) {
		e.finalize(nextState, next)
	}

	if err := e.commit(ctx, op, nextState, next); err != nil {
		return nil, err
	}

	slog.Info("vote cast",
		"proposal", id,
		"voter", voter,
		"choice", choice,
		"weight", weight,
		"quorum_reached", next.QuorumReached,
		"status", next.Status)
	return next.Clone(), nil
}

// Finalize resolves an Active proposal whose deadline has passed without a
// deadline-crossing vote.
func (e *Engine) Finalize(ctx context.Context, id uint64) (*ir.Proposal, error) {
	const op = "finalize"

	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.loadState(ctx, op)
	if err != nil {
		return nil, err
	}
	if err := breaker.RequireUnpaused(state.Breaker); err != nil {
		return nil, reject(op, err)
	}
	p, err := e.loadProposal(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if p.Status != ir.StatusActive {
		return nil, reject(op, authz.Newf(authz.CodeNotActive, "proposal %d is %s", id, p.Status))
	}
	now := e.clock.Now()
	if now.Before(p.VotingEndsAt) {
		return nil, reject(op, authz.Newf(authz.CodeVotingStillOpen, "voting on proposal %d still open", id).
			With("voting_ends_at", formatUnix(p.VotingEndsAt)))
	}

	next := p.Clone()
	nextState := state.Clone()
	e.finalize(nextState, next)

	if err := e.commit(ctx, op, nextState, next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// finalize applies the outcome rule to p and adjusts the active count.
// A Passed proposal stays counted as active until it is executed.
func (e *Engine) finalize(state *ir.GovernanceState, p *ir.Proposal) {
	p.Status = outcome(p, e.cfg.SupermajorityPercent)
	if p.Status == ir.StatusFailed && state.ActiveProposals > 0 {
		state.ActiveProposals--
	}

	slog.Info("proposal finalized",
		"proposal", p.ID,
		"status", p.Status,
		"yes", p.Tally.Yes,
		"no", p.Tally.No,
		"abstain", p.Tally.Abstain,
		"quorum_reached", p.QuorumReached)
}

// outcome is the pass rule: quorum, then yes/(yes+no) strictly above the
// supermajority percentage.
func outcome(p *ir.Proposal, supermajority uint64) ir.ProposalStatus {
	if !p.QuorumReached {
		return ir.StatusFailed
	}
	decided := p.Tally.Decided()
	if decided == 0 {
		return ir.StatusFailed
	}
	if ratelimit.MoreThanPercent(p.Tally.Yes, decided, supermajority) {
		return ir.StatusPassed
	}
	return ir.StatusFailed
}

func formatUnix(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
