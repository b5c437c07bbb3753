// Package config loads the engine policy from CUE.
//
// A policy file is unified with the embedded schema (schema.cue), which
// supplies defaults and range constraints. JSON is valid CUE, so callers
// holding overrides as data can pass them through LoadBytes unchanged.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/quorum/internal/ir"
)

//go:embed schema.cue
var schemaCUE string

// Error codes for config loading.
const (
	ErrCodeReadFailed    = "E101"
	ErrCodeParseFailed   = "E102"
	ErrCodeSchemaFailed  = "E103"
	ErrCodeInvalidPolicy = "E104"
)

// Config is the complete engine policy.
type Config struct {
	Governance Governance
	Treasury   Treasury
	Store      Store
}

// Governance holds the governance engine constants.
type Governance struct {
	MinProposalWeight    uint64
	ProposalCooldown     time.Duration
	VotingPeriod         time.Duration
	Timelock             time.Duration
	MaxActiveProposals   int
	QuorumPercent        uint64
	SupermajorityPercent uint64
	MaxTitleBytes        int
	MaxDescriptionBytes  int
	MaxPayloadBytes      int
}

// Treasury holds the treasury engine constants.
type Treasury struct {
	RequiredSigners       int
	MaxSigners            int
	DailyCap              uint64
	LargeTransferAmount   uint64
	LargeTransferCooldown time.Duration
	MaxCallSupplyPercent  uint64
	MaxDescriptionBytes   int
	Vault                 ir.Identity
}

// Store holds capacity bounds enforced by the record store.
type Store struct {
	MaxPendingTransactions int
	MaxVoters              int
}

// LoadError represents an error that occurred while loading a policy.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// raw mirrors the CUE schema for decoding.
type raw struct {
	Governance struct {
		MinProposalWeight    uint64 `json:"min_proposal_weight"`
		ProposalCooldown     string `json:"proposal_cooldown"`
		VotingPeriod         string `json:"voting_period"`
		Timelock             string `json:"timelock"`
		MaxActiveProposals   int    `json:"max_active_proposals"`
		QuorumPercent        uint64 `json:"quorum_percent"`
		SupermajorityPercent uint64 `json:"supermajority_percent"`
		MaxTitleBytes        int    `json:"max_title_bytes"`
		MaxDescriptionBytes  int    `json:"max_description_bytes"`
		MaxPayloadBytes      int    `json:"max_payload_bytes"`
	} `json:"governance"`
	Treasury struct {
		RequiredSigners       int    `json:"required_signers"`
		MaxSigners            int    `json:"max_signers"`
		DailyCap              uint64 `json:"daily_cap"`
		LargeTransferAmount   uint64 `json:"large_transfer_amount"`
		LargeTransferCooldown string `json:"large_transfer_cooldown"`
		MaxCallSupplyPercent  uint64 `json:"max_call_supply_percent"`
		MaxDescriptionBytes   int    `json:"max_description_bytes"`
		Vault                 string `json:"vault"`
	} `json:"treasury"`
	Store struct {
		MaxPendingTransactions int `json:"max_pending_transactions"`
		MaxVoters              int `json:"max_voters"`
	} `json:"store"`
}

// Default returns the schema defaults.
//
// Panics if the embedded schema is broken, which is a build defect.
func Default() *Config {
	cfg, err := LoadBytes([]byte("{}"), "default")
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema defaults invalid: %v", err))
	}
	return cfg
}

// Load reads and validates a CUE (or JSON) policy file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("reading policy: %v", err)}
	}
	return LoadBytes(data, path)
}

// LoadBytes validates policy source against the schema.
// filename is used only for error positions.
func LoadBytes(data []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(ErrCodeSchemaFailed, err)
	}

	user := ctx.CompileBytes(data, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return nil, formatCUEError(ErrCodeParseFailed, err)
	}

	value := schema.LookupPath(cue.ParsePath("#Config")).Unify(user)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(ErrCodeInvalidPolicy, err)
	}

	var r raw
	if err := value.Decode(&r); err != nil {
		return nil, formatCUEError(ErrCodeInvalidPolicy, err)
	}

	return fromRaw(&r)
}

func fromRaw(r *raw) (*Config, error) {
	var durErr error
	dur := func(field, s string) time.Duration {
		d, err := time.ParseDuration(s)
		if err != nil && durErr == nil {
			durErr = &LoadError{Code: ErrCodeInvalidPolicy, Message: fmt.Sprintf("%s: %v", field, err)}
		}
		return d
	}

	cfg := &Config{
		Governance: Governance{
			MinProposalWeight:    r.Governance.MinProposalWeight,
			ProposalCooldown:     dur("governance.proposal_cooldown", r.Governance.ProposalCooldown),
			VotingPeriod:         dur("governance.voting_period", r.Governance.VotingPeriod),
			Timelock:             dur("governance.timelock", r.Governance.Timelock),
			MaxActiveProposals:   r.Governance.MaxActiveProposals,
			QuorumPercent:        r.Governance.QuorumPercent,
			SupermajorityPercent: r.Governance.SupermajorityPercent,
			MaxTitleBytes:        r.Governance.MaxTitleBytes,
			MaxDescriptionBytes:  r.Governance.MaxDescriptionBytes,
			MaxPayloadBytes:      r.Governance.MaxPayloadBytes,
		},
		Treasury: Treasury{
			RequiredSigners:       r.Treasury.RequiredSigners,
			MaxSigners:            r.Treasury.MaxSigners,
			DailyCap:              r.Treasury.DailyCap,
			LargeTransferAmount:   r.Treasury.LargeTransferAmount,
			LargeTransferCooldown: dur("treasury.large_transfer_cooldown", r.Treasury.LargeTransferCooldown),
			MaxCallSupplyPercent:  r.Treasury.MaxCallSupplyPercent,
			MaxDescriptionBytes:   r.Treasury.MaxDescriptionBytes,
			Vault:                 ir.Identity(r.Treasury.Vault),
		},
		Store: Store{
			MaxPendingTransactions: r.Store.MaxPendingTransactions,
			MaxVoters:              r.Store.MaxVoters,
		},
	}
	if durErr != nil {
		return nil, durErr
	}

	if cfg.Treasury.RequiredSigners > cfg.Treasury.MaxSigners {
		return nil, &LoadError{
			Code:    ErrCodeInvalidPolicy,
			Message: fmt.Sprintf("treasury.required_signers (%d) exceeds treasury.max_signers (%d)", cfg.Treasury.RequiredSigners, cfg.Treasury.MaxSigners),
		}
	}

	return cfg, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(code string, err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}

	first := errs[0]
	loadErr := &LoadError{Code: code, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		loadErr.Pos = positions[0]
	}
	return loadErr
}
