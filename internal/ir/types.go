package ir

import (
	"fmt"
	"slices"
	"time"
)

// Identity names an actor: proposer, voter, signer, admin, or destination.
type Identity string

// ProposalStatus is the lifecycle state of a governance proposal.
//
// Legal edges: Active -> Passed, Active -> Failed, Passed -> Executed.
type ProposalStatus uint8

const (
	StatusActive ProposalStatus = iota + 1
	StatusPassed
	StatusFailed
	StatusExecuted
)

// String returns the canonical status name.
func (s ProposalStatus) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusPassed:
		return "Passed"
	case StatusFailed:
		return "Failed"
	case StatusExecuted:
		return "Executed"
	}
	return fmt.Sprintf("ProposalStatus(%d)", uint8(s))
}

// ParseProposalStatus is the inverse of ProposalStatus.String.
func ParseProposalStatus(s string) (ProposalStatus, error) {
	switch s {
	case "Active":
		return StatusActive, nil
	case "Passed":
		return StatusPassed, nil
	case "Failed":
		return StatusFailed, nil
	case "Executed":
		return StatusExecuted, nil
	}
	return 0, fmt.Errorf("unknown proposal status %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s ProposalStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ProposalStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseProposalStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// CanTransition reports whether next is a legal successor of s.
func (s ProposalStatus) CanTransition(next ProposalStatus) bool {
	switch s {
	case StatusActive:
		return next == StatusPassed || next == StatusFailed
	case StatusPassed:
		return next == StatusExecuted
	case StatusFailed, StatusExecuted:
		return false
	}
	return false
}

// VoteChoice is a closed set of ballot options.
type VoteChoice uint8

const (
	VoteYes VoteChoice = iota + 1
	VoteNo
	VoteAbstain
)

// String returns the canonical choice name.
func (c VoteChoice) String() string {
	switch c {
	case VoteYes:
		return "Yes"
	case VoteNo:
		return "No"
	case VoteAbstain:
		return "Abstain"
	}
	return fmt.Sprintf("VoteChoice(%d)", uint8(c))
}

// ParseVoteChoice accepts the canonical names and their lowercase forms.
func ParseVoteChoice(s string) (VoteChoice, error) {
	switch s {
	case "Yes", "yes":
		return VoteYes, nil
	case "No", "no":
		return VoteNo, nil
	case "Abstain", "abstain":
		return VoteAbstain, nil
	}
	return 0, fmt.Errorf("unknown vote choice %q", s)
}

// VoteTally holds weighted sums per choice.
type VoteTally struct {
	Yes     uint64 `json:"yes"`
	No      uint64 `json:"no"`
	Abstain uint64 `json:"abstain"`
}

// Add credits weight to the bucket for choice.
// Returns an error for a choice outside the closed set.
func (t *VoteTally) Add(choice VoteChoice, weight uint64) error {
	switch choice {
	case VoteYes:
		t.Yes += weight
	case VoteNo:
		t.No += weight
	case VoteAbstain:
		t.Abstain += weight
	default:
		return fmt.Errorf("unknown vote choice %d", uint8(choice))
	}
	return nil
}

// Decided returns yes+no, the denominator of the pass ratio.
func (t VoteTally) Decided() uint64 {
	return t.Yes + t.No
}

// Proposal is a governance record.
type Proposal struct {
	ID            uint64         `json:"id"`
	Proposer      Identity       `json:"proposer"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Payload       []byte         `json:"payload"`
	Tally         VoteTally      `json:"tally"`
	Status        ProposalStatus `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	VotingEndsAt  time.Time      `json:"voting_ends_at"`
	VotingPower   uint64         `json:"voting_power"`
	QuorumReached bool           `json:"quorum_reached"`
	Voters        []Identity     `json:"voters"`
}

// HasVoted reports whether voter is already in the voted set.
func (p *Proposal) HasVoted(voter Identity) bool {
	return slices.Contains(p.Voters, voter)
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (p *Proposal) Clone() *Proposal {
	c := *p
	c.Payload = slices.Clone(p.Payload)
	c.Voters = slices.Clone(p.Voters)
	return &c
}

// Transaction is a treasury multisig record.
type Transaction struct {
	ID          uint64     `json:"id"`
	Amount      uint64     `json:"amount"`
	Destination Identity   `json:"destination"`
	Description string     `json:"description"`
	Approvals   []Identity `json:"approvals"`
	Executed    bool       `json:"executed"`
	CreatedAt   time.Time  `json:"created_at"`
}

// HasApproved reports whether signer is already in the approver set.
func (t *Transaction) HasApproved(signer Identity) bool {
	return slices.Contains(t.Approvals, signer)
}

// Clone returns a deep copy.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.Approvals = slices.Clone(t.Approvals)
	return &c
}

// BreakerState is the circuit breaker embedded in each engine aggregate.
type BreakerState struct {
	Paused bool     `json:"paused"`
	Admin  Identity `json:"admin"`
}

// RateWindow is a rolling accumulation window with a lazy reset point.
type RateWindow struct {
	Accumulated uint64    `json:"accumulated"`
	LastReset   time.Time `json:"last_reset"`
}

// GovernanceState is the governance engine aggregate.
//
// Version is the optimistic concurrency token maintained by the store.
type GovernanceState struct {
	Version         uint64                 `json:"version"`
	Breaker         BreakerState           `json:"breaker"`
	ActiveProposals int                    `json:"active_proposals"`
	ProposalCount   uint64                 `json:"proposal_count"`
	LastProposalAt  map[Identity]time.Time `json:"last_proposal_at"`
}

// Clone returns a deep copy.
func (s *GovernanceState) Clone() *GovernanceState {
	c := *s
	c.LastProposalAt = make(map[Identity]time.Time, len(s.LastProposalAt))
	for k, v := range s.LastProposalAt {
		c.LastProposalAt[k] = v
	}
	return &c
}

// TreasuryState is the treasury engine aggregate.
type TreasuryState struct {
	Version           uint64       `json:"version"`
	Breaker           BreakerState `json:"breaker"`
	Signers           []Identity   `json:"signers"`
	RequiredSigners   int          `json:"required_signers"`
	Daily             RateWindow   `json:"daily"`
	LastTransactionAt time.Time    `json:"last_transaction_at"`
	TransactionCount  uint64       `json:"transaction_count"`
}

// IsSigner reports whether id is in the signer set.
func (s *TreasuryState) IsSigner(id Identity) bool {
	return slices.Contains(s.Signers, id)
}

// Clone returns a deep copy.
func (s *TreasuryState) Clone() *TreasuryState {
	c := *s
	c.Signers = slices.Clone(s.Signers)
	return &c
}

// ExecutionAuthorization is returned when a passed proposal is executed.
// It authorizes, but does not perform, the external action.
type ExecutionAuthorization struct {
	ID             string    `json:"id"`
	ProposalID     uint64    `json:"proposal_id"`
	Executor       Identity  `json:"executor"`
	ProposalDigest string    `json:"proposal_digest"`
	ExecutedAt     time.Time `json:"executed_at"`
}

// TransferReceipt is returned when a treasury transaction executes.
type TransferReceipt struct {
	ID             string    `json:"id"`
	TransactionID  uint64    `json:"transaction_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	From           Identity  `json:"from"`
	To             Identity  `json:"to"`
	Amount         uint64    `json:"amount"`
	ExecutedAt     time.Time `json:"executed_at"`
}

// TransferRequest is handed to the value-transfer service by a treasury
// execution. Key is stable per transaction; a service that has already
// applied Key must treat the request as a no-op success.
type TransferRequest struct {
	Key    string   `json:"key"`
	From   Identity `json:"from"`
	To     Identity `json:"to"`
	Amount uint64   `json:"amount"`
}
