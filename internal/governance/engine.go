package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/quorum/internal/authz"
	"github.com/roach88/quorum/internal/breaker"
	"github.com/roach88/quorum/internal/clock"
	"github.com/roach88/quorum/internal/config"
	"github.com/roach88/quorum/internal/ir"
)

// Store persists the governance aggregate and its proposals.
type Store interface {
	// LoadGovernance returns the aggregate or ir.ErrNotFound.
	LoadGovernance(ctx context.Context) (*ir.GovernanceState, error)

	// LoadProposal returns a proposal or ir.ErrNotFound.
	LoadProposal(ctx context.Context, id uint64) (*ir.Proposal, error)

	// CommitGovernance atomically writes the aggregate and, if non-nil, one
	// proposal. state.Version must equal the stored version (0 for a new
	// aggregate) or ir.ErrConflict is returned; on success state.Version is
	// incremented. Returns ir.ErrCapacity when a store bound is exhausted.
	CommitGovernance(ctx context.Context, state *ir.GovernanceState, p *ir.Proposal) error
}

// BalanceOracle reports voting weight. It is queried live at proposal and
// vote time; no snapshot is taken.
type BalanceOracle interface {
	BalanceOf(ctx context.Context, id ir.Identity) (uint64, error)
	TotalSupply(ctx context.Context) (uint64, error)
}

// Engine is the governance state machine.
//
// Thread-safety: all methods are safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	store  Store
	oracle BalanceOracle
	cfg    config.Governance
	clock  clock.Clock
	ids    ir.ReceiptIDGenerator
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock for deterministic testing.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithReceiptIDs overrides the receipt id generator.
func WithReceiptIDs(g ir.ReceiptIDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// New creates an Engine.
func New(s Store, oracle BalanceOracle, cfg config.Governance, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		oracle: oracle,
		cfg:    cfg,
		clock:  clock.System{},
		ids:    ir.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize creates the governance aggregate with admin as the emergency
// admin.
func (e *Engine) Initialize(ctx context.Context, admin ir.Identity) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if admin == "" {
		return reject("initialize", authz.New(authz.CodeInvalidInput, "admin identity is empty"))
	}

	_, err := e.store.LoadGovernance(ctx)
	switch {
	case err == nil:
		return reject("initialize", authz.New(authz.CodeAlreadyInitialized, "governance already initialized"))
	case !errors.Is(err, ir.ErrNotFound):
		return fmt.Errorf("initialize: %w", err)
	}

	state := &ir.GovernanceState{
		Breaker:        ir.BreakerState{Admin: admin},
		LastProposalAt: make(map[ir.Identity]time.Time),
	}
	if err := e.commit(ctx, "initialize", state, nil); err != nil {
		return err
	}

	slog.Info("governance initialized", "admin", admin)
	return nil
}

// State returns a copy of the aggregate.
func (e *Engine) State(ctx context.Context) (*ir.GovernanceState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadState(ctx, "state")
}

// Proposal returns a copy of a proposal.
func (e *Engine) Proposal(ctx context.Context, id uint64) (*ir.Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadProposal(ctx, "proposal", id)
}

// Pause trips the circuit breaker. Only the emergency admin may call it.
func (e *Engine) Pause(ctx context.Context, caller ir.Identity) error {
	return e.adminOp(ctx, "pause", func(s *ir.GovernanceState) error {
		return breaker.Pause(&s.Breaker, caller)
	})
}

// Unpause resets the circuit breaker.
func (e *Engine) Unpause(ctx context.Context, caller ir.Identity) error {
	return e.adminOp(ctx, "unpause", func(s *ir.GovernanceState) error {
		return breaker.Unpause(&s.Breaker, caller)
	})
}

// RotateAdmin transfers the emergency admin role.
func (e *Engine) RotateAdmin(ctx context.Context, caller, next ir.Identity) error {
	return e.adminOp(ctx, "rotate_admin", func(s *ir.GovernanceState) error {
		return breaker.RotateAdmin(&s.Breaker, caller, next)
	})
}

func (e *Engine) adminOp(ctx context.Context, op string, mutate func(*ir.GovernanceState) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.loadState(ctx, op)
	if err != nil {
		return err
	}
	next := state.Clone()
	if err := mutate(next); err != nil {
		return reject(op, err)
	}
	if err := e.commit(ctx, op, next, nil); err != nil {
		return err
	}

	slog.Info("governance breaker updated", "op", op, "paused", next.Breaker.Paused, "admin", next.Breaker.Admin)
	return nil
}

// loadState maps a missing aggregate to NotInitialized.
func (e *Engine) loadState(ctx context.Context, op string) (*ir.GovernanceState, error) {
	state, err := e.store.LoadGovernance(ctx)
	if errors.Is(err, ir.ErrNotFound) {
		return nil, reject(op, authz.New(authz.CodeNotInitialized, "governance not initialized"))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: load governance: %w", op, err)
	}
	return state, nil
}

func (e *Engine) loadProposal(ctx context.Context, op string, id uint64) (*ir.Proposal, error) {
	p, err := e.store.LoadProposal(ctx, id)
	if errors.Is(err, ir.ErrNotFound) {
		return nil, reject(op, authz.Newf(authz.CodeProposalNotFound, "proposal %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: load proposal %d: %w", op, id, err)
	}
	return p, nil
}

// commit maps store capacity exhaustion to CapacityExceeded.
func (e *Engine) commit(ctx context.Context, op string, state *ir.GovernanceState, p *ir.Proposal) error {
	err := e.store.CommitGovernance(ctx, state, p)
	if errors.Is(err, ir.ErrCapacity) {
		return reject(op, authz.Wrap(authz.CodeCapacityExceeded, "store capacity exhausted", err))
	}
	if err != nil {
		slog.Error("governance commit failed", "op", op, "error", err)
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

// reject logs a rejected operation and returns err unchanged.
func reject(op string, err error) error {
	slog.Debug("governance operation rejected", "op", op, "code", authz.CodeOf(err), "error", err)
	return err
}
