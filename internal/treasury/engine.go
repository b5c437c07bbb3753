package treasury

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/quorum/internal/authz"
	"github.com/roach88/quorum/internal/breaker"
	"github.com/roach88/quorum/internal/clock"
	"github.com/roach88/quorum/internal/config"
	"github.com/roach88/quorum/internal/ir"
	"github.com/roach88/quorum/internal/ratelimit"
)

// Store persists the treasury aggregate and its transactions.
type Store interface {
	// LoadTreasury returns the aggregate or ir.ErrNotFound.
	LoadTreasury(ctx context.Context) (*ir.TreasuryState, error)

	// LoadTransaction returns a transaction or ir.ErrNotFound.
	LoadTransaction(ctx context.Context, id uint64) (*ir.Transaction, error)

	// CommitTreasury atomically writes the aggregate and, if non-nil, one
	// transaction, with the same version contract as the governance store.
	CommitTreasury(ctx context.Context, state *ir.TreasuryState, tx *ir.Transaction) error
}

// Transferer is the value-transfer service. Transfer must be idempotent on
// the request key.
type Transferer interface {
	Transfer(ctx context.Context, req ir.TransferRequest) error
}

// SupplyOracle reports the total supply used by the single-call ceiling.
type SupplyOracle interface {
	TotalSupply(ctx context.Context) (uint64, error)
}

// Engine is the treasury state machine.
//
// Thread-safety: all methods are safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	store    Store
	supply   SupplyOracle
	transfer Transferer
	cfg      config.Treasury
	clock    clock.Clock
	ids      ir.ReceiptIDGenerator
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
func New(s Store, supply SupplyOracle, transfer Transferer, cfg config.Treasury, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		supply:   supply,
		transfer: transfer,
		cfg:      cfg,
		clock:    clock.System{},
		ids:      ir.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) dailyCap() ratelimit.DailyCap {
	return ratelimit.DailyCap{Limit: e.cfg.DailyCap}
}

// Initialize creates the treasury with authority as its only signer and as
// emergency admin.
func (e *Engine) Initialize(ctx context.Context, authority ir.Identity, required int) error {
	const op = "initialize"

	e.mu.Lock()
	defer e.mu.Unlock()

	if authority == "" {
		return reject(op, authz.New(authz.CodeInvalidInput, "authority identity is empty"))
	}
	if required < 1 || required > e.cfg.MaxSigners {
		return reject(op, authz.Newf(authz.CodeInvalidSignerCount,
			"required signers %d outside 1..%d", required, e.cfg.MaxSigners))
	}

	_, err := e.store.LoadTreasury(ctx)
	switch {
	case err == nil:
		return reject(op, authz.New(authz.CodeAlreadyInitialized, "treasury already initialized"))
	case !errors.Is(err, ir.ErrNotFound):
		return fmt.Errorf("%s: %w", op, err)
	}

	now := e.clock.Now()
	state := &ir.TreasuryState{
		Breaker:         ir.BreakerState{Admin: authority},
		Signers:         []ir.Identity{authority},
		RequiredSigners: required,
		Daily:           ir.RateWindow{LastReset: now},
	}
	if err := e.commit(ctx, op, state, nil); err != nil {
		return err
	}

	slog.Info("treasury initialized", "authority", authority, "required_signers", required)
	return nil
}

// AddSigner appends signer to the signer set. Admin only.
func (e *Engine) AddSigner(ctx context.Context, caller, signer ir.Identity) error {
	const op = "add_signer"

	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.loadState(ctx, op)
	if err != nil {
		return err
	}
	if err := breaker.RequireUnpaused(state.Breaker); err != nil {
		return reject(op, err)
	}
	if err := breaker.RequireAdmin(state.Breaker, caller); err != nil {
		return reject(op, err)
	}
	if signer == "" {
		return reject(op, authz.New(authz.CodeInvalidInput, "signer identity is empty"))
	}
	if len(state.Signers) >= e.cfg.MaxSigners {
		return reject(op, authz.Newf(authz.CodeMaxSignersReached, "signer set is full at %d", len(state.Signers)))
	}
	if state.IsSigner(signer) {
		return reject(op, authz.Newf(authz.CodeSignerAlreadyExists, "%s is already a signer", signer))
	}

	next := state.Clone()
	next.Signers = append(next.Signers, signer)
	if err := e.commit(ctx, op, next, nil); err != nil {
		return err
	}

	slog.Info("signer added", "signer", signer, "signers", len(next.Signers))
	return nil
}

// State returns a copy of the aggregate.
func (e *Engine) State(ctx context.Context) (*ir.TreasuryState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadState(ctx, "state")
}

// Transaction returns a copy of a transaction.
func (e *Engine) Transaction(ctx context.Context, id uint64) (*ir.Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadTransaction(ctx, "transaction", id)
}

// Pause trips the circuit breaker.
func (e *Engine) Pause(ctx context.Context, caller ir.Identity) error {
	return e.adminOp(ctx, "pause", func(s *ir.TreasuryState) error {
		return breaker.Pause(&s.Breaker, caller)
	})
}

// Unpause resets the circuit breaker.
func (e *Engine) Unpause(ctx context.Context, caller ir.Identity) error {
	return e.adminOp(ctx, "unpause", func(s *ir.TreasuryState) error {
		return breaker.Unpause(&s.Breaker, caller)
	})
}

// RotateAdmin transfers the emergency admin role.
func (e *Engine) RotateAdmin(ctx context.Context, caller, next ir.Identity) error {
	return e.adminOp(ctx, "rotate_admin", func(s *ir.TreasuryState) error {
		return breaker.RotateAdmin(&s.Breaker, caller, next)
	})
}

func (e *Engine) adminOp(ctx context.Context, op string, mutate func(*ir.TreasuryState) error) error {
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

	slog.Info("treasury breaker updated", "op", op, "paused", next.Breaker.Paused, "admin", next.Breaker.Admin)
	return nil
}

func (e *Engine) loadState(ctx context.Context, op string) (*ir.TreasuryState, error) {
	state, err := e.store.LoadTreasury(ctx)
	if errors.Is(err, ir.ErrNotFound) {
		return nil, reject(op, authz.New(authz.CodeNotInitialized, "treasury not initialized"))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: load treasury: %w", op, err)
	}
	return state, nil
}

func (e *Engine) loadTransaction(ctx context.Context, op string, id uint64) (*ir.Transaction, error) {
	tx, err := e.store.LoadTransaction(ctx, id)
	if errors.Is(err, ir.ErrNotFound) {
		return nil, reject(op, authz.Newf(authz.CodeTransactionNotFound, "transaction %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: load transaction %d: %w", op, id, err)
	}
	return tx, nil
}

func (e *Engine) commit(ctx context.Context, op string, state *ir.TreasuryState, tx *ir.Transaction) error {
	err := e.store.CommitTreasury(ctx, state, tx)
	if errors.Is(err, ir.ErrCapacity) {
		return reject(op, authz.Wrap(authz.CodeCapacityExceeded, "store capacity exhausted", err))
	}
	if err != nil {
		slog.Error("treasury commit failed", "op", op, "error", err)
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

func reject(op string, err error) error {
	slog.Debug("treasury operation rejected", "op", op, "code", authz.CodeOf(err), "error", err)
	return err
}
