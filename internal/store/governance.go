package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/quorum/internal/ir"
)

// LoadGovernance reads the governance aggregate.
// Returns ir.ErrNotFound if it has not been initialized.
func (s *Store) LoadGovernance(ctx context.Context) (*ir.GovernanceState, error) {
	var (
		st     ir.GovernanceState
		paused bool
		admin  string
		count  int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT version, paused, admin, active_proposals, proposal_count
		FROM governance_state WHERE id = 1
	`).Scan(&st.Version, &paused, &admin, &st.ActiveProposals, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ir.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load governance: %w", err)
	}
	st.Breaker = ir.BreakerState{Paused: paused, Admin: ir.Identity(admin)}
	st.ProposalCount = uint64(count)

	rows, err := s.db.QueryContext(ctx, `
		SELECT proposer, last_proposal_at
		FROM proposer_activity
		ORDER BY proposer ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load proposer activity: %w", err)
	}
	defer rows.Close()

	st.LastProposalAt = make(map[ir.Identity]time.Time)
	for rows.Next() {
		var (
			proposer string
			at       int64
		)
		if err := rows.Scan(&proposer, &at); err != nil {
			return nil, fmt.Errorf("scan proposer activity: %w", err)
		}
		st.LastProposalAt[ir.Identity(proposer)] = fromUnixNano(at)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposer activity: %w", err)
	}

	return &st, nil
}

// LoadProposal reads one proposal by id.
func (s *Store) LoadProposal(ctx context.Context, id uint64) (*ir.Proposal, error) {
	key, err := toInt64("proposal id", id)
	if err != nil {
		return nil, err
	}
	p, err := scanProposal(s.db.QueryRowContext(ctx, s.dialect.q(`
		SELECT id, proposer, title, description, payload,
			yes_weight, no_weight, abstain_weight, status,
			created_at, voting_ends_at, voting_power, quorum_reached, voters
		FROM proposals WHERE id = ?
	`), key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ir.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load proposal %d: %w", id, err)
	}
	return p, nil
}

// ListProposals returns all proposals in id order.
func (s *Store) ListProposals(ctx context.Context) ([]*ir.Proposal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, proposer, title, description, payload,
			yes_weight, no_weight, abstain_weight, status,
			created_at, voting_ends_at, voting_power, quorum_reached, voters
		FROM proposals
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var out []*ir.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("list proposals: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	return out, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanProposal(row scanner) (*ir.Proposal, error) {
	var (
		p                      ir.Proposal
		id, yes, no, abstain   int64
		power, created, endsAt int64
		proposer, votersJSON   string
		status                 int
	)
	err := row.Scan(&id, &proposer, &p.Title, &p.Description, &p.Payload,
		&yes, &no, &abstain, &status,
		&created, &endsAt, &power, &p.QuorumReached, &votersJSON)
	if err != nil {
		return nil, err
	}

	voters, err := unmarshalIdentities(votersJSON)
	if err != nil {
		return nil, err
	}

	p.ID = uint64(id)
	p.Proposer = ir.Identity(proposer)
	p.Tally = ir.VoteTally{Yes: uint64(yes), No: uint64(no), Abstain: uint64(abstain)}
	p.Status = ir.ProposalStatus(status)
	p.CreatedAt = fromUnixNano(created)
	p.VotingEndsAt = fromUnixNano(endsAt)
	p.VotingPower = uint64(power)
	p.Voters = voters
	if p.Payload == nil {
		p.Payload = []byte{}
	}
	return &p, nil
}

// CommitGovernance writes the aggregate and, if non-nil, one proposal in a
// single transaction. See the package doc for the version contract.
func (s *Store) CommitGovernance(ctx context.Context, state *ir.GovernanceState, p *ir.Proposal) error {
	if p != nil && s.limits.MaxVoters > 0 && len(p.Voters) > s.limits.MaxVoters {
		return fmt.Errorf("proposal %d has %d voters, limit %d: %w",
			p.ID, len(p.Voters), s.limits.MaxVoters, ir.ErrCapacity)
	}

	proposalCount, err := toInt64("proposal count", state.ProposalCount)
	if err != nil {
		return fmt.Errorf("commit governance: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit governance: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var result sql.Result
	if state.Version == 0 {
		result, err = tx.ExecContext(ctx, s.dialect.q(`
			INSERT INTO governance_state (id, version, paused, admin, active_proposals, proposal_count)
			VALUES (1, 1, ?, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING
		`), state.Breaker.Paused, string(state.Breaker.Admin), state.ActiveProposals, proposalCount)
	} else {
		result, err = tx.ExecContext(ctx, s.dialect.q(`
			UPDATE governance_state
			SET version = version + 1, paused = ?, admin = ?, active_proposals = ?, proposal_count = ?
			WHERE id = 1 AND version = ?
		`), state.Breaker.Paused, string(state.Breaker.Admin), state.ActiveProposals, proposalCount, int64(state.Version))
	}
	if err != nil {
		return fmt.Errorf("commit governance: write state: %w", err)
	}
	if err := requireOneRow(result, "governance_state"); err != nil {
		return err
	}

	if err := s.writeProposerActivity(ctx, tx, state.LastProposalAt); err != nil {
		return err
	}
	if p != nil {
		if err := s.writeProposal(ctx, tx, p); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit governance: %w", err)
	}
	state.Version++
	return nil
}

func (s *Store) writeProposerActivity(ctx context.Context, tx *sql.Tx, last map[ir.Identity]time.Time) error {
	proposers := make([]string, 0, len(last))
	for id := range last {
		proposers = append(proposers, string(id))
	}
	sort.Strings(proposers)

	for _, proposer := range proposers {
		_, err := tx.ExecContext(ctx, s.dialect.q(`
			INSERT INTO proposer_activity (proposer, last_proposal_at)
			VALUES (?, ?)
			ON CONFLICT (proposer) DO UPDATE SET last_proposal_at = excluded.last_proposal_at
		`), proposer, toUnixNano(last[ir.Identity(proposer)]))
		if err != nil {
			return fmt.Errorf("commit governance: write proposer activity: %w", err)
		}
	}
	return nil
}

func (s *Store) writeProposal(ctx context.Context, tx *sql.Tx, p *ir.Proposal) error {
	voters, err := marshalIdentities(p.Voters)
	if err != nil {
		return fmt.Errorf("commit governance: %w", err)
	}

	var vals [5]int64
	for i, f := range []struct {
		name string
		v    uint64
	}{
		{"proposal id", p.ID},
		{"yes weight", p.Tally.Yes},
		{"no weight", p.Tally.No},
		{"abstain weight", p.Tally.Abstain},
		{"voting power", p.VotingPower},
	} {
		if vals[i], err = toInt64(f.name, f.v); err != nil {
			return fmt.Errorf("commit governance: %w", err)
		}
	}

	payload := p.Payload
	if payload == nil {
		payload = []byte{}
	}

	_, err = tx.ExecContext(ctx, s.dialect.q(`
		INSERT INTO proposals (id, proposer, title, description, payload,
			yes_weight, no_weight, abstain_weight, status,
			created_at, voting_ends_at, voting_power, quorum_reached, voters)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			yes_weight = excluded.yes_weight,
			no_weight = excluded.no_weight,
			abstain_weight = excluded.abstain_weight,
			status = excluded.status,
			voting_power = excluded.voting_power,
			quorum_reached = excluded.quorum_reached,
			voters = excluded.voters
	`),
		vals[0], string(p.Proposer), p.Title, p.Description, payload,
		vals[1], vals[2], vals[3], int(p.Status),
		toUnixNano(p.CreatedAt), toUnixNano(p.VotingEndsAt), vals[4], p.QuorumReached, voters,
	)
	if err != nil {
		return fmt.Errorf("commit governance: write proposal %d: %w", p.ID, err)
	}
	return nil
}

// requireOneRow maps a zero-row aggregate write to ir.ErrConflict.
func requireOneRow(result sql.Result, table string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", table, err)
	}
	if n != 1 {
		return fmt.Errorf("%s: %w", table, ir.ErrConflict)
	}
	return nil
}
