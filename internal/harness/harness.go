package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/quorum/internal/authz"
	"github.com/roach88/quorum/internal/config"
	"github.com/roach88/quorum/internal/governance"
	"github.com/roach88/quorum/internal/ir"
	"github.com/roach88/quorum/internal/store"
	"github.com/roach88/quorum/internal/testutil"
	"github.com/roach88/quorum/internal/treasury"
)

// Harness is the scenario execution engine.
// It wires both engines to one record store, one ledger, one manual clock,
// and one fixed receipt id sequence.
type Harness struct {
	ledger   *store.MemoryLedger
	clock    *testutil.ManualClock
	gov      *governance.Engine
	treasury *treasury.Engine
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory database. A step whose
// outcome differs from its expectation fails the result but does not stop
// the run, so the trace always covers every step. An error is returned only
// for infrastructure failures and invalid config.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	cfg, err := scenarioConfig(scenario)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:", store.WithLimits(cfg.Store))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	balances := make(map[ir.Identity]uint64, len(scenario.Balances))
	for id, amount := range scenario.Balances {
		balances[ir.Identity(id)] = amount
	}

	h := &Harness{
		ledger: store.NewMemoryLedger(balances),
		clock:  testutil.NewManualClock(testutil.Epoch),
	}
	ids := ir.NewFixedGenerator()
	h.gov = governance.New(st, h.ledger, cfg.Governance,
		governance.WithClock(h.clock), governance.WithReceiptIDs(ids))
	h.treasury = treasury.New(st, h.ledger, h.ledger, cfg.Treasury,
		treasury.WithClock(h.clock), treasury.WithReceiptIDs(ids))

	result := NewResult()
	for i, step := range scenario.Steps {
		h.clock.Set(time.Duration(step.At))

		out, err := h.execute(ctx, step)
		outcome := OutcomeOK
		if err != nil {
			if !authz.IsRejection(err) {
				return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
			}
			outcome = string(authz.CodeOf(err))
			out = nil
		}
		result.AddTrace(int64(h.clock.Elapsed()/time.Second), step.Op, outcome, out)

		expect := step.Expect
		if expect == "" {
			expect = OutcomeOK
		}
		if outcome != expect {
			msg := fmt.Sprintf("step %d (%s): expected %s, got %s", i, step.Op, expect, outcome)
			if err != nil {
				msg += ": " + err.Error()
			}
			result.AddError(msg)
		}
	}

	for _, errMsg := range h.evaluate(ctx, result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

// scenarioConfig validates the scenario's overrides through the policy
// schema so scenarios and policy files share one set of constraints.
func scenarioConfig(s *Scenario) (*config.Config, error) {
	if len(s.Config) == 0 {
		return config.Default(), nil
	}
	data, err := json.Marshal(s.Config)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: encode config: %w", s.Name, err)
	}
	cfg, err := config.LoadBytes(data, s.Name+".config")
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return cfg, nil
}

// execute dispatches one step. The returned map becomes the trace result.
func (h *Harness) execute(ctx context.Context, step Step) (map[string]any, error) {
	a := step.Args
	switch step.Op {
	case OpGovInit:
		return nil, h.gov.Initialize(ctx, ir.Identity(a.Caller))
	case OpGovCreate:
		p, err := h.gov.CreateProposal(ctx, governance.ProposalRequest{
			Proposer:    ir.Identity(a.Proposer),
			Title:       a.Title,
			Description: a.Description,
			Payload:     []byte(a.Payload),
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"proposal": p.ID}, nil
	case OpGovVote:
		// An unknown choice reaches the engine as the zero choice, which it
		// rejects as invalid input.
		choice, _ := ir.ParseVoteChoice(a.Choice)
		p, err := h.gov.CastVote(ctx, *a.ID, ir.Identity(a.Voter), choice)
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": p.Status.String()}, nil
	case OpGovFinalize:
		p, err := h.gov.Finalize(ctx, *a.ID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": p.Status.String()}, nil
	case OpGovExecute:
		auth, err := h.gov.Execute(ctx, *a.ID, ir.Identity(a.Executor))
		if err != nil {
			return nil, err
		}
		return map[string]any{"receipt": auth.ID}, nil
	case OpGovPause:
		return nil, h.gov.Pause(ctx, ir.Identity(a.Caller))
	case OpGovUnpause:
		return nil, h.gov.Unpause(ctx, ir.Identity(a.Caller))
	case OpGovRotate:
		return nil, h.gov.RotateAdmin(ctx, ir.Identity(a.Caller), ir.Identity(a.Next))

	case OpTreasuryInit:
		return nil, h.treasury.Initialize(ctx, ir.Identity(a.Caller), a.Required)
	case OpTreasuryAddSigner:
		return nil, h.treasury.AddSigner(ctx, ir.Identity(a.Caller), ir.Identity(a.Signer))
	case OpTreasuryPropose:
		tx, err := h.treasury.Propose(ctx, treasury.TransactionRequest{
			Proposer:    ir.Identity(a.Proposer),
			Amount:      a.Amount,
			Destination: ir.Identity(a.Destination),
			Description: a.Description,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"transaction": tx.ID}, nil
	case OpTreasuryApprove:
		tx, err := h.treasury.Approve(ctx, *a.ID, ir.Identity(a.Signer))
		if err != nil {
			return nil, err
		}
		return map[string]any{"approvals": len(tx.Approvals)}, nil
	case OpTreasuryExecute:
		receipt, err := h.treasury.Execute(ctx, *a.ID)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"receipt": receipt.ID,
			"to":      receipt.To,
			"amount":  receipt.Amount,
		}, nil
	case OpTreasuryPause:
		return nil, h.treasury.Pause(ctx, ir.Identity(a.Caller))
	case OpTreasuryUnpause:
		return nil, h.treasury.Unpause(ctx, ir.Identity(a.Caller))
	case OpTreasuryRotate:
		return nil, h.treasury.RotateAdmin(ctx, ir.Identity(a.Caller), ir.Identity(a.Next))

	case OpLedgerSet:
		h.ledger.SetBalance(ir.Identity(a.Identity), a.Amount)
		return nil, nil
	case OpLedgerFail:
		if a.Fail {
			h.ledger.FailTransfers(errTransferOffline)
		} else {
			h.ledger.FailTransfers(nil)
		}
		return nil, nil
	}
	return nil, fmt.Errorf("unknown op %q", step.Op)
}

var errTransferOffline = errors.New("transfer service offline")
