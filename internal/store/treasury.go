package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/quorum/internal/ir"
)

// LoadTreasury reads the treasury aggregate.
// Returns ir.ErrNotFound if it has not been initialized.
func (s *Store) LoadTreasury(ctx context.Context) (*ir.TreasuryState, error) {
	var (
		st                         ir.TreasuryState
		admin, signers             string
		accumulated, reset, lastTx int64
		count                      int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT version, paused, admin, signers, required_signers,
			daily_accumulated, daily_last_reset, last_transaction_at, transaction_count
		FROM treasury_state WHERE id = 1
	`).Scan(&st.Version, &st.Breaker.Paused, &admin, &signers, &st.RequiredSigners,
		&accumulated, &reset, &lastTx, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ir.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load treasury: %w", err)
	}

	st.Signers, err = unmarshalIdentities(signers)
	if err != nil {
		return nil, fmt.Errorf("load treasury: %w", err)
	}
	st.Breaker.Admin = ir.Identity(admin)
	st.Daily = ir.RateWindow{Accumulated: uint64(accumulated), LastReset: fromUnixNano(reset)}
	st.LastTransactionAt = fromUnixNano(lastTx)
	st.TransactionCount = uint64(count)
	return &st, nil
}

// LoadTransaction reads one transaction by id.
func (s *Store) LoadTransaction(ctx context.Context, id uint64) (*ir.Transaction, error) {
	key, err := toInt64("transaction id", id)
	if err != nil {
		return nil, err
	}
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, s.dialect.q(`
		SELECT id, amount, destination, description, approvals, executed, created_at
		FROM transactions WHERE id = ?
	`), key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ir.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load transaction %d: %w", id, err)
	}
	return tx, nil
}

// ListTransactions returns all transactions in id order.
func (s *Store) ListTransactions(ctx context.Context) ([]*ir.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, amount, destination, description, approvals, executed, created_at
		FROM transactions
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*ir.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

func scanTransaction(row scanner) (*ir.Transaction, error) {
	var (
		t                          ir.Transaction
		id, amount, created        int64
		destination, approvalsJSON string
	)
	err := row.Scan(&id, &amount, &destination, &t.Description, &approvalsJSON, &t.Executed, &created)
	if err != nil {
		return nil, err
	}
	approvals, err := unmarshalIdentities(approvalsJSON)
	if err != nil {
		return nil, err
	}
	t.ID = uint64(id)
	t.Amount = uint64(amount)
	t.Destination = ir.Identity(destination)
	t.Approvals = approvals
	t.CreatedAt = fromUnixNano(created)
	return &t, nil
}

// CommitTreasury writes the aggregate and, if non-nil, one transaction in a
// single database transaction. A transaction not yet stored counts against
// the pending-transaction bound.
func (s *Store) CommitTreasury(ctx context.Context, state *ir.TreasuryState, t *ir.Transaction) error {
	signers, err := marshalIdentities(state.Signers)
	if err != nil {
		return fmt.Errorf("commit treasury: %w", err)
	}
	accumulated, err := toInt64("daily accumulated", state.Daily.Accumulated)
	if err != nil {
		return fmt.Errorf("commit treasury: %w", err)
	}
	count, err := toInt64("transaction count", state.TransactionCount)
	if err != nil {
		return fmt.Errorf("commit treasury: %w", err)
	}

	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit treasury: begin tx: %w", err)
	}
	defer dbtx.Rollback() // No-op if committed

	var result sql.Result
	if state.Version == 0 {
		result, err = dbtx.ExecContext(ctx, s.dialect.q(`
			INSERT INTO treasury_state (id, version, paused, admin, signers, required_signers,
				daily_accumulated, daily_last_reset, last_transaction_at, transaction_count)
			VALUES (1, 1, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING
		`), state.Breaker.Paused, string(state.Breaker.Admin), signers, state.RequiredSigners,
			accumulated, toUnixNano(state.Daily.LastReset), toUnixNano(state.LastTransactionAt), count)
	} else {
		result, err = dbtx.ExecContext(ctx, s.dialect.q(`
			UPDATE treasury_state
			SET version = version + 1, paused = ?, admin = ?, signers = ?, required_signers = ?,
				daily_accumulated = ?, daily_last_reset = ?, last_transaction_at = ?, transaction_count = ?
			WHERE id = 1 AND version = ?
		`), state.Breaker.Paused, string(state.Breaker.Admin), signers, state.RequiredSigners,
			accumulated, toUnixNano(state.Daily.LastReset), toUnixNano(state.LastTransactionAt), count,
			int64(state.Version))
	}
	if err != nil {
		return fmt.Errorf("commit treasury: write state: %w", err)
	}
	if err := requireOneRow(result, "treasury_state"); err != nil {
		return err
	}

	if t != nil {
		if err := s.writeTransaction(ctx, dbtx, t); err != nil {
			return err
		}
	}

	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit treasury: %w", err)
	}
	state.Version++
	return nil
}

func (s *Store) writeTransaction(ctx context.Context, dbtx *sql.Tx, t *ir.Transaction) error {
	id, err := toInt64("transaction id", t.ID)
	if err != nil {
		return fmt.Errorf("commit treasury: %w", err)
	}
	amount, err := toInt64("amount", t.Amount)
	if err != nil {
		return fmt.Errorf("commit treasury: %w", err)
	}
	approvals, err := marshalIdentities(t.Approvals)
	if err != nil {
		return fmt.Errorf("commit treasury: %w", err)
	}

	var exists int
	if err := dbtx.QueryRowContext(ctx, s.dialect.q(`
		SELECT COUNT(*) FROM transactions WHERE id = ?
	`), id).Scan(&exists); err != nil {
		return fmt.Errorf("commit treasury: %w", err)
	}
	if exists == 0 && s.limits.MaxPendingTransactions > 0 {
		var pending int
		if err := dbtx.QueryRowContext(ctx, s.dialect.q(`
			SELECT COUNT(*) FROM transactions WHERE executed = ?
		`), false).Scan(&pending); err != nil {
			return fmt.Errorf("commit treasury: count pending: %w", err)
		}
		if pending >= s.limits.MaxPendingTransactions {
			return fmt.Errorf("%d pending transactions, limit %d: %w",
				pending, s.limits.MaxPendingTransactions, ir.ErrCapacity)
		}
	}

	_, err = dbtx.ExecContext(ctx, s.dialect.q(`
		INSERT INTO transactions (id, amount, destination, description, approvals, executed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			approvals = excluded.approvals,
			executed = excluded.executed
	`), id, amount, string(t.Destination), t.Description, approvals, t.Executed, toUnixNano(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("commit treasury: write transaction %d: %w", t.ID, err)
	}
	return nil
}
