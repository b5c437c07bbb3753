package governance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/quorum/internal/authz"
	"github.com/roach88/quorum/internal/breaker"
	"github.com/roach88/quorum/internal/ir"
)

// Execute marks a Passed proposal Executed once its timelock has elapsed and
// returns the authorization receipt. No value moves here.
func (e *Engine) Execute(ctx context.Context, id uint64, executor ir.Identity) (*ir.ExecutionAuthorization, error) {
	const op = "execute"

	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.loadState(ctx, op)
	if err != nil {
		return nil, err
	}
	if err := breaker.RequireUnpaused(state.Breaker); err != nil {
		return nil, reject(op, err)
	}
	if executor == "" {
		return nil, reject(op, authz.New(authz.CodeInvalidInput, "executor identity is empty"))
	}
	p, err := e.loadProposal(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if p.Status != ir.StatusPassed {
		return nil, reject(op, authz.Newf(authz.CodeNotPassed, "proposal %d is %s", id, p.Status))
	}

	now := e.clock.Now()
	unlocksAt := p.VotingEndsAt.Add(e.cfg.Timelock)
	if now.Before(unlocksAt) {
		return nil, reject(op, authz.Newf(authz.CodeTimelockActive, "proposal %d timelocked for another %s", id, unlocksAt.Sub(now)).
			With("unlocks_at", formatUnix(unlocksAt)))
	}

	digest, err := ir.ProposalDigest(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	next := p.Clone()
	next.Status = ir.StatusExecuted
	nextState := state.Clone()
	if nextState.ActiveProposals > 0 {
		nextState.ActiveProposals--
	}

	if err := e.commit(ctx, op, nextState, next); err != nil {
		return nil, err
	}

	auth := &ir.ExecutionAuthorization{
		ID:             e.ids.Generate(),
		ProposalID:     id,
		Executor:       executor,
		ProposalDigest: digest,
		ExecutedAt:     now,
	}
	slog.Info("proposal executed", "proposal", id, "executor", executor, "authorization", auth.ID)
	return auth, nil
}
