package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/quorum/internal/ir"
)

// Ledger errors.
var (
	// ErrInsufficientFunds is returned when a transfer source cannot cover
	// the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrKeyReused is returned when a transfer key was already applied with
	// different parameters.
	ErrKeyReused = errors.New("idempotency key reused with different transfer")

	// ErrOverflow is returned when a credit would push a balance or the
	// total supply past the uint64 range.
	ErrOverflow = errors.New("balance overflow")
)

// Ledger is a token ledger: balances plus an append-only transfer log keyed
// by idempotency key. It serves as the balance oracle and value-transfer
// service for the engines.
type Ledger struct {
	db      *sql.DB
	dialect dialect
}

// BalanceOf returns an identity's balance; unknown identities hold 0.
func (l *Ledger) BalanceOf(ctx context.Context, id ir.Identity) (uint64, error) {
	var amount int64
	err := l.db.QueryRowContext(ctx, l.dialect.q(`
		SELECT amount FROM balances WHERE identity = ?
	`), string(id)).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("balance of %s: %w", id, err)
	}
	return uint64(amount), nil
}

// TotalSupply returns the sum of all balances.
func (l *Ledger) TotalSupply(ctx context.Context) (uint64, error) {
	var total int64
	if err := l.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM balances
	`).Scan(&total); err != nil {
		return 0, fmt.Errorf("total supply: %w", err)
	}
	return uint64(total), nil
}

// Mint credits amount to id.
func (l *Ledger) Mint(ctx context.Context, id ir.Identity, amount uint64) error {
	n, err := toInt64("amount", amount)
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, l.dialect.q(`
		INSERT INTO balances (identity, amount) VALUES (?, ?)
		ON CONFLICT (identity) DO UPDATE SET amount = balances.amount + excluded.amount
	`), string(id), n); err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	return nil
}

// Transfer moves req.Amount from req.From to req.To once per req.Key.
// A key already applied with the same parameters is a no-op success.
func (l *Ledger) Transfer(ctx context.Context, req ir.TransferRequest) error {
	amount, err := toInt64("amount", req.Amount)
	if err != nil {
		return fmt.Errorf("transfer: %w", err)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("transfer: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, l.dialect.q(`
		INSERT INTO transfers (idempotency_key, from_identity, to_identity, amount)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (idempotency_key) DO NOTHING
	`), req.Key, string(req.From), string(req.To), amount)
	if err != nil {
		return fmt.Errorf("transfer: record: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transfer: rows affected: %w", err)
	}
	if inserted == 0 {
		return l.checkApplied(ctx, tx, req, amount)
	}

	debit, err := tx.ExecContext(ctx, l.dialect.q(`
		UPDATE balances SET amount = amount - ?
		WHERE identity = ? AND amount >= ?
	`), amount, string(req.From), amount)
	if err != nil {
		return fmt.Errorf("transfer: debit: %w", err)
	}
	if n, err := debit.RowsAffected(); err != nil {
		return fmt.Errorf("transfer: rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("transfer %d from %s: %w", req.Amount, req.From, ErrInsufficientFunds)
	}

	if _, err := tx.ExecContext(ctx, l.dialect.q(`
		INSERT INTO balances (identity, amount) VALUES (?, ?)
		ON CONFLICT (identity) DO UPDATE SET amount = balances.amount + excluded.amount
	`), string(req.To), amount); err != nil {
		return fmt.Errorf("transfer: credit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	return nil
}

// checkApplied confirms a replayed key matches the transfer on record.
func (l *Ledger) checkApplied(ctx context.Context, tx *sql.Tx, req ir.TransferRequest, amount int64) error {
	var (
		from, to string
		prior    int64
	)
	if err := tx.QueryRowContext(ctx, l.dialect.q(`
		SELECT from_identity, to_identity, amount FROM transfers WHERE idempotency_key = ?
	`), req.Key).Scan(&from, &to, &prior); err != nil {
		return fmt.Errorf("transfer: read prior: %w", err)
	}
	if ir.Identity(from) != req.From || ir.Identity(to) != req.To || prior != amount {
		return fmt.Errorf("transfer key %s: %w", req.Key, ErrKeyReused)
	}
	return tx.Commit()
}
