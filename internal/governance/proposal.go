package governance

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/quorum/internal/authz"
	"github.com/roach88/quorum/internal/breaker"
	"github.com/roach88/quorum/internal/ir"
	"github.com/roach88/quorum/internal/ratelimit"
)

// ProposalRequest is the input to CreateProposal.
type ProposalRequest struct {
	Proposer    ir.Identity
	Title       string
	Description string
	Payload     []byte // Opaque; interpreted only by whatever acts on the authorization
}

// CreateProposal opens a new Active proposal.
//
// Checks run in this order and the first failure wins: paused, proposer
// weight, proposer cooldown, active-proposal cap, input bounds.
func (e *Engine) CreateProposal(ctx context.Context, req ProposalRequest) (*ir.Proposal, error) {
	const op = "create_proposal"

	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.loadState(ctx, op)
	if err != nil {
		return nil, err
	}
	if err := breaker.RequireUnpaused(state.Breaker); err != nil {
		return nil, reject(op, err)
	}
	if req.Proposer == "" {
		return nil, reject(op, authz.New(authz.CodeInvalidInput, "proposer identity is empty"))
	}

	weight, err := e.oracle.BalanceOf(ctx, req.Proposer)
	if err != nil {
		return nil, fmt.Errorf("%s: balance of %s: %w", op, req.Proposer, err)
	}
	if weight < e.cfg.MinProposalWeight {
		return nil, reject(op, authz.Newf(authz.CodeInsufficientWeight,
			"proposer weight %d below minimum %d", weight, e.cfg.MinProposalWeight).
			With("proposer", string(req.Proposer)))
	}

	now := e.clock.Now()
	cooldown := ratelimit.Cooldown{Period: e.cfg.ProposalCooldown, Code: authz.CodeRateLimited}
	if err := cooldown.Check(now, state.LastProposalAt[req.Proposer]); err != nil {
		return nil, reject(op, err)
	}

	if state.ActiveProposals >= e.cfg.MaxActiveProposals {
		return nil, reject(op, authz.Newf(authz.CodeCapacityExceeded,
			"%d active proposals, cap is %d", state.ActiveProposals, e.cfg.MaxActiveProposals))
	}

	title := norm.NFC.String(req.Title)
	description := norm.NFC.String(req.Description)
	if err := e.checkBounds(title, description, req.Payload); err != nil {
		return nil, reject(op, err)
	}

	p := &ir.Proposal{
		ID:           state.ProposalCount + 1,
		Proposer:     req.Proposer,
		Title:        title,
		Description:  description,
		Payload:      append([]byte(nil), req.Payload...),
		Status:       ir.StatusActive,
		CreatedAt:    now,
		VotingEndsAt: now.Add(e.cfg.VotingPeriod),
	}

	next := state.Clone()
	next.ProposalCount = p.ID
	next.ActiveProposals++
	next.LastProposalAt[req.Proposer] = now

	if err := e.commit(ctx, op, next, p); err != nil {
		return nil, err
	}

	slog.Info("proposal created",
		"proposal", p.ID,
		"proposer", p.Proposer,
		"voting_ends_at", p.VotingEndsAt.Unix(),
		"active", next.ActiveProposals)
	return p.Clone(), nil
}

func (e *Engine) checkBounds(title, description string, payload []byte) error {
	switch {
	case title == "":
		return authz.New(authz.CodeInvalidInput, "title is empty")
	case len(title) > e.cfg.MaxTitleBytes:
		return authz.Newf(authz.CodeInvalidInput, "title is %d bytes, limit %d", len(title), e.cfg.MaxTitleBytes).
			With("field", "title")
	case len(description) > e.cfg.MaxDescriptionBytes:
		return authz.Newf(authz.CodeInvalidInput, "description is %d bytes, limit %d", len(description), e.cfg.MaxDescriptionBytes).
			With("field", "description")
	case len(payload) > e.cfg.MaxPayloadBytes:
		return authz.Newf(authz.CodeInvalidInput, "payload is %d bytes, limit %d", len(payload), e.cfg.MaxPayloadBytes).
			With("field", "payload").
			With("limit", strconv.Itoa(e.cfg.MaxPayloadBytes))
	}
	return nil
}
