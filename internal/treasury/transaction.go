package treasury

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

// TransactionRequest is the input to Propose.
type TransactionRequest struct {
	Proposer    ir.Identity
	Amount      uint64
	Destination ir.Identity
	Description string
}

// Propose opens a Pending transaction with the proposer as first approver.
//
// Admission runs every rate check without committing any of them: the
// single-call ceiling, a projection of the daily cap, and the large-transfer
// cooldown. The daily total only moves on Execute.
func (e *Engine) Propose(ctx context.Context, req TransactionRequest) (*ir.Transaction, error) {
	const op = "propose"

	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.loadState(ctx, op)
	if err != nil {
		return nil, err
	}
	if err := breaker.RequireUnpaused(state.Breaker); err != nil {
		return nil, reject(op, err)
	}
	if !state.IsSigner(req.Proposer) {
		return nil, reject(op, authz.New(authz.CodeUnauthorized, "proposer is not a signer").
			With("caller", string(req.Proposer)))
	}

	description := norm.NFC.String(req.Description)
	switch {
	case req.Amount == 0:
		return nil, reject(op, authz.New(authz.CodeInvalidInput, "amount is zero"))
	case req.Destination == "":
		return nil, reject(op, authz.New(authz.CodeInvalidInput, "destination is empty"))
	case len(description) > e.cfg.MaxDescriptionBytes:
		return nil, reject(op, authz.Newf(authz.CodeInvalidInput,
			"description is %d bytes, limit %d", len(description), e.cfg.MaxDescriptionBytes).
			With("field", "description"))
	}

	supply, err := e.supply.TotalSupply(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: total supply: %w", op, err)
	}
	ceiling := ratelimit.StaticCap{Percent: e.cfg.MaxCallSupplyPercent}
	if err := ceiling.Check(req.Amount, supply); err != nil {
		return nil, reject(op, err)
	}

	now := e.clock.Now()
	if err := e.dailyCap().Admit(state.Daily, now, req.Amount); err != nil {
		return nil, reject(op, err)
	}
	if req.Amount >= e.cfg.LargeTransferAmount {
		cooldown := ratelimit.Cooldown{
			Period: e.cfg.LargeTransferCooldown,
			Code:   authz.CodeTransactionCooldownActive,
		}
		if err := cooldown.Check(now, state.LastTransactionAt); err != nil {
			return nil, reject(op, err)
		}
	}

	tx := &ir.Transaction{
		ID:          state.TransactionCount,
		Amount:      req.Amount,
		Destination: req.Destination,
		Description: description,
		Approvals:   []ir.Identity{req.Proposer},
		CreatedAt:   now,
	}
	next := state.Clone()
	next.TransactionCount++

	if err := e.commit(ctx, op, next, tx); err != nil {
		return nil, err
	}

	slog.Info("transaction proposed",
		"transaction", tx.ID,
		"proposer", req.Proposer,
		"amount", tx.Amount,
		"destination", tx.Destination)
	return tx.Clone(), nil
}

// Approve adds signer to a Pending transaction's approver set.
func (e *Engine) Approve(ctx context.Context, id uint64, signer ir.Identity) (*ir.Transaction, error) {
	const op = "approve"

	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.loadState(ctx, op)
	if err != nil {
		return nil, err
	}
	if err := breaker.RequireUnpaused(state.Breaker); err != nil {
		return nil, reject(op, err)
	}
	tx, err := e.loadTransaction(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if tx.Executed {
		return nil, reject(op, authz.Newf(authz.CodeAlreadyExecuted, "transaction %d already executed", id))
	}
	if !state.IsSigner(signer) {
		return nil, reject(op, authz.New(authz.CodeUnauthorized, "approver is not a signer").
			With("caller", string(signer)))
	}
	if tx.HasApproved(signer) {
		return nil, reject(op, authz.Newf(authz.CodeDuplicateApproval, "%s already approved transaction %d", signer, id))
	}

	next := tx.Clone()
	next.Approvals = append(next.Approvals, signer)
	if err := e.commit(ctx, op, state.Clone(), next); err != nil {
		return nil, err
	}

	slog.Info("transaction approved",
		"transaction", id,
		"signer", signer,
		"approvals", len(next.Approvals),
		"required", state.RequiredSigners)
	return next.Clone(), nil
}

// Execute transfers a fully approved transaction's amount from the vault and
// marks it Executed.
func (e *Engine) Execute(ctx context.Context, id uint64) (*ir.TransferReceipt, error) {
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
	tx, err := e.loadTransaction(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if tx.Executed {
		return nil, reject(op, authz.Newf(authz.CodeAlreadyExecuted, "transaction %d already executed", id))
	}
	if len(tx.Approvals) < state.RequiredSigners {
		return nil, reject(op, authz.Newf(authz.CodeInsufficientApprovals,
			"transaction %d has %d of %d approvals", id, len(tx.Approvals), state.RequiredSigners).
			With("approvals", strconv.Itoa(len(tx.Approvals))))
	}

	now := e.clock.Now()
	window, err := e.dailyCap().Check(state.Daily, now, tx.Amount)
	if err != nil {
		return nil, reject(op, err)
	}

	req := ir.TransferRequest{
		Key:    ir.TransferKey(e.cfg.Vault, id),
		From:   e.cfg.Vault,
		To:     tx.Destination,
		Amount: tx.Amount,
	}
	if err := e.transfer.Transfer(ctx, req); err != nil {
		slog.Error("transfer failed", "transaction", id, "key", req.Key, "error", err)
		return nil, authz.Wrap(authz.CodeTransferFailed, "value transfer failed", err)
	}

	next := tx.Clone()
	next.Executed = true
	nextState := state.Clone()
	nextState.Daily = window
	nextState.LastTransactionAt = now

	if err := e.commit(ctx, op, nextState, next); err != nil {
		return nil, err
	}

	receipt := &ir.TransferReceipt{
		ID:             e.ids.Generate(),
		TransactionID:  id,
		IdempotencyKey: req.Key,
		From:           req.From,
		To:             req.To,
		Amount:         req.Amount,
		ExecutedAt:     now,
	}
	slog.Info("transaction executed",
		"transaction", id,
		"amount", tx.Amount,
		"destination", tx.Destination,
		"daily_total", window.Accumulated,
		"receipt", receipt.ID)
	return receipt, nil
}
