package store

import (
	"context"
	"fmt"
	"math/bits"
	"sync"

	"github.com/roach88/quorum/internal/config"
	"github.com/roach88/quorum/internal/ir"
)

// MemoryStore is an in-memory Store with the same version and capacity
// semantics as the SQL store. Reads and writes copy; callers never alias
// stored records.
type MemoryStore struct {
	mu           sync.Mutex
	limits       config.Store
	governance   *ir.GovernanceState
	treasury     *ir.TreasuryState
	proposals    map[uint64]*ir.Proposal
	transactions map[uint64]*ir.Transaction
}

// NewMemoryStore creates an empty store with the given capacity bounds.
func NewMemoryStore(limits config.Store) *MemoryStore {
	return &MemoryStore{
		limits:       limits,
		proposals:    make(map[uint64]*ir.Proposal),
		transactions: make(map[uint64]*ir.Transaction),
	}
}

func (m *MemoryStore) LoadGovernance(_ context.Context) (*ir.GovernanceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.governance == nil {
		return nil, ir.ErrNotFound
	}
	return m.governance.Clone(), nil
}

func (m *MemoryStore) LoadProposal(_ context.Context, id uint64) (*ir.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[id]
	if !ok {
		return nil, ir.ErrNotFound
	}
	return p.Clone(), nil
}

func (m *MemoryStore) CommitGovernance(_ context.Context, state *ir.GovernanceState, p *ir.Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current uint64
	if m.governance != nil {
		current = m.governance.Version
	}
	if err := checkVersion(m.governance != nil, current, state.Version); err != nil {
		return fmt.Errorf("governance_state: %w", err)
	}
	if p != nil && m.limits.MaxVoters > 0 && len(p.Voters) > m.limits.MaxVoters {
		return fmt.Errorf("proposal %d has %d voters, limit %d: %w",
			p.ID, len(p.Voters), m.limits.MaxVoters, ir.ErrCapacity)
	}

	state.Version++
	m.governance = state.Clone()
	if p != nil {
		m.proposals[p.ID] = p.Clone()
	}
	return nil
}

func (m *MemoryStore) LoadTreasury(_ context.Context) (*ir.TreasuryState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.treasury == nil {
		return nil, ir.ErrNotFound
	}
	return m.treasury.Clone(), nil
}

func (m *MemoryStore) LoadTransaction(_ context.Context, id uint64) (*ir.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return nil, ir.ErrNotFound
	}
	return t.Clone(), nil
}

func (m *MemoryStore) CommitTreasury(_ context.Context, state *ir.TreasuryState, t *ir.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current uint64
	if m.treasury != nil {
		current = m.treasury.Version
	}
	if err := checkVersion(m.treasury != nil, current, state.Version); err != nil {
		return fmt.Errorf("treasury_state: %w", err)
	}
	if t != nil && m.limits.MaxPendingTransactions > 0 {
		if _, exists := m.transactions[t.ID]; !exists && m.pending() >= m.limits.MaxPendingTransactions {
			return fmt.Errorf("%d pending transactions, limit %d: %w",
				m.pending(), m.limits.MaxPendingTransactions, ir.ErrCapacity)
		}
	}

	state.Version++
	m.treasury = state.Clone()
	if t != nil {
		m.transactions[t.ID] = t.Clone()
	}
	return nil
}

func (m *MemoryStore) pending() int {
	n := 0
	for _, t := range m.transactions {
		if !t.Executed {
			n++
		}
	}
	return n
}

// checkVersion applies the commit contract: version 0 creates, anything
// else must match the stored version.
func checkVersion(exists bool, stored, given uint64) error {
	if given == 0 {
		if exists {
			return ir.ErrConflict
		}
		return nil
	}
	if !exists || stored != given {
		return ir.ErrConflict
	}
	return nil
}

// MemoryLedger is an in-memory Ledger.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[ir.Identity]uint64
	applied  map[string]ir.TransferRequest
	fail     error
}

// NewMemoryLedger creates a ledger seeded with balances.
func NewMemoryLedger(balances map[ir.Identity]uint64) *MemoryLedger {
	l := &MemoryLedger{
		balances: make(map[ir.Identity]uint64, len(balances)),
		applied:  make(map[string]ir.TransferRequest),
	}
	for id, amount := range balances {
		l.balances[id] = amount
	}
	return l
}

func (l *MemoryLedger) BalanceOf(_ context.Context, id ir.Identity) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[id], nil
}

func (l *MemoryLedger) TotalSupply(_ context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.supply()
}

func (l *MemoryLedger) supply() (uint64, error) {
	var total, carry uint64
	for _, amount := range l.balances {
		total, carry = bits.Add64(total, amount, 0)
		if carry != 0 {
			return 0, fmt.Errorf("total supply: %w", ErrOverflow)
		}
	}
	return total, nil
}

// Mint credits amount to id. The total supply stays within uint64.
func (l *MemoryLedger) Mint(_ context.Context, id ir.Identity, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	total, err := l.supply()
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	if _, carry := bits.Add64(total, amount, 0); carry != 0 {
		return fmt.Errorf("mint %d to %s: %w", amount, id, ErrOverflow)
	}
	l.balances[id] += amount
	return nil
}

// SetBalance overwrites id's balance. Scenarios use it to move voting
// weight between votes.
func (l *MemoryLedger) SetBalance(id ir.Identity, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[id] = amount
}

// FailTransfers makes every subsequent Transfer return err until called
// with nil.
func (l *MemoryLedger) FailTransfers(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fail = err
}

// Transfers returns the number of distinct transfers applied.
func (l *MemoryLedger) Transfers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.applied)
}

func (l *MemoryLedger) Transfer(_ context.Context, req ir.TransferRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fail != nil {
		return l.fail
	}
	if prior, ok := l.applied[req.Key]; ok {
		if prior != req {
			return fmt.Errorf("transfer key %s: %w", req.Key, ErrKeyReused)
		}
		return nil
	}
	if l.balances[req.From] < req.Amount {
		return fmt.Errorf("transfer %d from %s: %w", req.Amount, req.From, ErrInsufficientFunds)
	}

	if req.To != req.From {
		credited, carry := bits.Add64(l.balances[req.To], req.Amount, 0)
		if carry != 0 {
			return fmt.Errorf("transfer %d to %s: %w", req.Amount, req.To, ErrOverflow)
		}
		l.balances[req.From] -= req.Amount
		l.balances[req.To] = credited
	}
	l.applied[req.Key] = req
	return nil
}
