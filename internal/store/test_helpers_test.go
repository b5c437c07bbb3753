package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/quorum/internal/config"
	"github.com/roach88/quorum/internal/ir"
)

var testLimits = config.Store{MaxPendingTransactions: 3, MaxVoters: 4}

// createTestStore creates a new SQLite store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithLimits(testLimits))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testEpoch = time.Unix(1_700_000_000, 0).UTC()

// createTestProposal creates an Active proposal with minimal fields.
func createTestProposal(id uint64, proposer string) *ir.Proposal {
	return &ir.Proposal{
		ID:           id,
		Proposer:     ir.Identity(proposer),
		Title:        "Proposal",
		Description:  "",
		Payload:      []byte{},
		Status:       ir.StatusActive,
		CreatedAt:    testEpoch,
		VotingEndsAt: testEpoch.Add(24 * time.Hour),
		Voters:       []ir.Identity{},
	}
}

// createTestTransaction creates a pending transaction approved by proposer.
func createTestTransaction(id uint64, proposer string) *ir.Transaction {
	return &ir.Transaction{
		ID:          id,
		Amount:      500,
		Destination: "dest",
		Description: "payout",
		Approvals:   []ir.Identity{ir.Identity(proposer)},
		CreatedAt:   testEpoch,
	}
}
