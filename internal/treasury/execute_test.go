package treasury

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quorum/internal/authz"
	"github.com/roach88/quorum/internal/config"
	"github.com/roach88/quorum/internal/ir"
	"github.com/roach88/quorum/internal/store"
	"github.com/roach88/quorum/internal/testutil"
)

func TestExecute_Threshold(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	tx := f.propose(t, 250)
	f.approve(t, tx.ID, "bob")

	_, err := f.engine.Execute(ctx, tx.ID)
	requireCode(t, err, authz.CodeInsufficientApprovals)
	assert.Zero(t, f.ledger.Transfers())

	f.approve(t, tx.ID, "carol")
	receipt, err := f.engine.Execute(ctx, tx.ID)
	require.NoError(t, err)

	assert.Equal(t, "rcpt-1", receipt.ID)
	assert.Equal(t, tx.ID, receipt.TransactionID)
	assert.Equal(t, ir.TransferKey(vault, tx.ID), receipt.IdempotencyKey)
	assert.Equal(t, vault, receipt.From)
	assert.Equal(t, ir.Identity("grantee"), receipt.To)
	assert.Equal(t, uint64(250), receipt.Amount)
	assert.Equal(t, testutil.Epoch, receipt.ExecutedAt)

	bal, _ := f.ledger.BalanceOf(ctx, "grantee")
	assert.Equal(t, uint64(250), bal)

	// A second execute is rejected and never reaches the transfer service.
	_, err = f.engine.Execute(ctx, tx.ID)
	requireCode(t, err, authz.CodeAlreadyExecuted)
	assert.Equal(t, 1, f.ledger.Transfers())

	state, err := f.engine.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), state.Daily.Accumulated)
	assert.Equal(t, testutil.Epoch, state.LastTransactionAt)

	stored, err := f.engine.Transaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, stored.Executed)
}

func TestExecute_DailyCap(t *testing.T) {
	f := newFixture(t, 1, func(c *config.Treasury) { c.LargeTransferAmount = 10_000 })
	ctx := context.Background()

	first := f.propose(t, 600)
	second := f.propose(t, 300)
	_, err := f.engine.Execute(ctx, first.ID)
	require.NoError(t, err)

	// Admitted at proposal time, but only 400 remains once the first executed.
	third := f.propose(t, 400)

	f.clock.Advance(time.Hour)
	_, err = f.engine.Execute(ctx, second.ID)
	require.NoError(t, err)

	_, err = f.engine.Execute(ctx, third.ID)
	requireCode(t, err, authz.CodeDailyLimitExceeded)

	_, err = f.engine.Propose(ctx, TransactionRequest{Proposer: "alice", Amount: 600, Destination: "x"})
	requireCode(t, err, authz.CodeDailyLimitExceeded)

	// The window resets lazily, measured from the first check after expiry.
	f.clock.Set(24 * time.Hour)
	_, err = f.engine.Execute(ctx, third.ID)
	require.NoError(t, err)

	state, err := f.engine.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), state.Daily.Accumulated)
	assert.Equal(t, testutil.Epoch.Add(24*time.Hour), state.Daily.LastReset)
}

func TestExecute_TwoOf600WithinWindow(t *testing.T) {
	f := newFixture(t, 1, func(c *config.Treasury) { c.LargeTransferAmount = 10_000 })
	ctx := context.Background()

	a := f.propose(t, 600)
	_, err := f.engine.Execute(ctx, a.ID)
	require.NoError(t, err)

	f.clock.Set(12 * time.Hour)
	_, err = f.engine.Propose(ctx, TransactionRequest{Proposer: "alice", Amount: 600, Destination: "x"})
	requireCode(t, err, authz.CodeDailyLimitExceeded)

	f.clock.Set(24 * time.Hour)
	b := f.propose(t, 600)
	_, err = f.engine.Execute(ctx, b.ID)
	require.NoError(t, err)
}

func TestExecute_TransferFailure(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	tx := f.propose(t, 100)

	f.ledger.FailTransfers(errors.New("service unavailable"))
	_, err := f.engine.Execute(ctx, tx.ID)
	requireCode(t, err, authz.CodeTransferFailed)
	assert.Equal(t, authz.CategoryExternal, authz.CodeOf(err).Category())

	stored, err := f.engine.Transaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.False(t, stored.Executed)
	state, err := f.engine.State(ctx)
	require.NoError(t, err)
	assert.Zero(t, state.Daily.Accumulated)

	f.ledger.FailTransfers(nil)
	_, err = f.engine.Execute(ctx, tx.ID)
	require.NoError(t, err)
}

func TestExecute_InsufficientVaultFunds(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	tx := f.propose(t, 100)

	f.ledger.SetBalance(vault, 50)
	_, err := f.engine.Execute(ctx, tx.ID)
	requireCode(t, err, authz.CodeTransferFailed)
	assert.ErrorIs(t, err, store.ErrInsufficientFunds)
}

// failingCommit drops the first commit that marks a transaction executed,
// standing in for a crash between the transfer and the state flip.
type failingCommit struct {
	Store
	failed bool
}

func (s *failingCommit) CommitTreasury(ctx context.Context, state *ir.TreasuryState, tx *ir.Transaction) error {
	if tx != nil && tx.Executed && !s.failed {
		s.failed = true
		return errors.New("connection reset")
	}
	return s.Store.CommitTreasury(ctx, state, tx)
}

func TestExecute_RetryAfterLostCommit(t *testing.T) {
	s := &failingCommit{Store: store.NewMemoryStore(config.Default().Store)}
	f := newFixtureWithStore(t, s, 1)
	ctx := context.Background()
	tx := f.propose(t, 100)

	_, err := f.engine.Execute(ctx, tx.ID)
	require.Error(t, err)
	assert.False(t, authz.IsRejection(err), "store failures are not rejections")
	assert.Equal(t, 1, f.ledger.Transfers())

	stored, err := f.engine.Transaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.False(t, stored.Executed, "executed is never set without a confirmed commit")

	// The retry resends the same key; the ledger applies it once.
	_, err = f.engine.Execute(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.ledger.Transfers())

	bal, _ := f.ledger.BalanceOf(ctx, "grantee")
	assert.Equal(t, uint64(100), bal)
}

func TestExecute_NotFound(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.engine.Execute(context.Background(), 3)
	requireCode(t, err, authz.CodeTransactionNotFound)
}
