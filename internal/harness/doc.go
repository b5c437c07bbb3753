// Package harness runs conformance scenarios against the governance and
// treasury engines.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: treasury_threshold
//	description: "Execution needs three approvals"
//	config:
//	  treasury: { required_signers: 3 }
//	balances:
//	  treasury-vault: 1000000
//	steps:
//	  - at: 0s
//	    op: treasury.init
//	    args: { caller: alice, required: 3 }
//	  - at: 1m
//	    op: treasury.execute
//	    args: { id: 0 }
//	    expect: InsufficientApprovals
//	assertions:
//	  - type: transaction
//	    id: 0
//	    executed: false
//
// The config block is validated against the policy schema exactly like a
// policy file. "at" is an offset from the scenario epoch and never moves the
// clock backwards. "expect" is "ok" (the default) or a failure code.
//
// # Assertion Types
//
//   - proposal_status: proposal id has the given status
//   - transaction: transaction id has the given executed flag and approval count
//   - balance: identity holds exactly amount
//   - trace_count: op appears count times, optionally with a given outcome
//   - trace_order: ops appear in order (not necessarily adjacent)
//
// # Deterministic Testing
//
// Every run uses a manual clock at testutil.Epoch, fixed receipt ids
// ("receipt-1", "receipt-2", ...), an in-memory SQLite record store and an
// in-memory ledger, so the trace is identical across runs and can be
// compared against a golden file.
package harness
