package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests.
// Version suffix enables future algorithm migration.
const (
	DomainProposal = "quorum/proposal/v1"
	DomainTransfer = "quorum/transfer/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ProposalDigest binds an execution authorization to the exact proposal
// content that was voted on: identity, proposer, text, payload, and tally.
func ProposalDigest(p *Proposal) (string, error) {
	obj := map[string]any{
		"id":          p.ID,
		"proposer":    p.Proposer,
		"title":       p.Title,
		"description": p.Description,
		"payload":     hex.EncodeToString(p.Payload),
		"tally": map[string]any{
			"yes":     p.Tally.Yes,
			"no":      p.Tally.No,
			"abstain": p.Tally.Abstain,
		},
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ProposalDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainProposal, canonical), nil
}

// TransferKey is the idempotency key handed to the value-transfer service.
// It is stable for a (vault, transaction) pair so a retried execute after a
// crash cannot move funds twice.
func TransferKey(vault Identity, transactionID uint64) string {
	obj := map[string]any{
		"vault":          vault,
		"transaction_id": transactionID,
	}
	// Inputs are a string and an integer; marshaling cannot fail.
	canonical, _ := MarshalCanonical(obj)
	return hashWithDomain(DomainTransfer, canonical)
}

// MustProposalDigest is like ProposalDigest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustProposalDigest(p *Proposal) string {
	d, err := ProposalDigest(p)
	if err != nil {
		panic(err)
	}
	return d
}
