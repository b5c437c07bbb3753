package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/quorum/internal/authz"
)

// Scenario is a scripted sequence of engine operations with expected
// outcomes and final-state assertions.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config holds policy overrides in the same shape as a policy file.
	Config map[string]any `yaml:"config,omitempty"`

	// Balances seeds the in-memory ledger.
	Balances map[string]uint64 `yaml:"balances,omitempty"`

	// Steps run in order against one pair of engines.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one engine operation.
type Step struct {
	// At is the clock offset from the scenario epoch.
	At Offset `yaml:"at"`

	// Op names the operation (see the Op constants).
	Op string `yaml:"op"`

	Args StepArgs `yaml:"args"`

	// Expect is OutcomeOK (default) or a failure code.
	Expect string `yaml:"expect,omitempty"`
}

// StepArgs is the union of every operation's arguments. Each op reads only
// the fields it needs, and the engines validate their content.
type StepArgs struct {
	ID          *uint64 `yaml:"id,omitempty"`
	Caller      string  `yaml:"caller,omitempty"`
	Proposer    string  `yaml:"proposer,omitempty"`
	Voter       string  `yaml:"voter,omitempty"`
	Signer      string  `yaml:"signer,omitempty"`
	Executor    string  `yaml:"executor,omitempty"`
	Next        string  `yaml:"next,omitempty"`
	Identity    string  `yaml:"identity,omitempty"`
	Title       string  `yaml:"title,omitempty"`
	Description string  `yaml:"description,omitempty"`
	Payload     string  `yaml:"payload,omitempty"`
	Choice      string  `yaml:"choice,omitempty"`
	Destination string  `yaml:"destination,omitempty"`
	Amount      uint64  `yaml:"amount,omitempty"`
	Required    int     `yaml:"required,omitempty"`
	Fail        bool    `yaml:"fail,omitempty"`
}

// Offset is a duration decoded from a Go duration string such as "36h".
type Offset time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (o *Offset) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid offset %q: %w", value.Line, s, err)
	}
	if d < 0 {
		return fmt.Errorf("line %d: offset %q is negative", value.Line, s)
	}
	*o = Offset(d)
	return nil
}

// Assertion validates trace or final state.
type Assertion struct {
	Type string `yaml:"type"`

	// ID selects the proposal or transaction.
	ID *uint64 `yaml:"id,omitempty"`

	// Status is the expected proposal status (proposal_status).
	Status string `yaml:"status,omitempty"`

	// Executed and Approvals are matched when set (transaction).
	Executed  *bool `yaml:"executed,omitempty"`
	Approvals *int  `yaml:"approvals,omitempty"`

	// Identity and Amount are used by balance.
	Identity string  `yaml:"identity,omitempty"`
	Amount   *uint64 `yaml:"amount,omitempty"`

	// Op, Outcome and Count are used by trace_count. An empty Outcome
	// matches every outcome.
	Op      string `yaml:"op,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`
	Count   int    `yaml:"count,omitempty"`

	// Ops is the expected order (trace_order).
	Ops []string `yaml:"ops,omitempty"`
}

// Assertion type constants.
const (
	AssertProposalStatus = "proposal_status"
	AssertTransaction    = "transaction"
	AssertBalance        = "balance"
	AssertTraceCount     = "trace_count"
	AssertTraceOrder     = "trace_order"
)

// Operation names.
const (
	OpGovInit     = "gov.init"
	OpGovCreate   = "gov.create"
	OpGovVote     = "gov.vote"
	OpGovFinalize = "gov.finalize"
	OpGovExecute  = "gov.execute"
	OpGovPause    = "gov.pause"
	OpGovUnpause  = "gov.unpause"
	OpGovRotate   = "gov.rotate"

	OpTreasuryInit      = "treasury.init"
	OpTreasuryAddSigner = "treasury.add_signer"
	OpTreasuryPropose   = "treasury.propose"
	OpTreasuryApprove   = "treasury.approve"
	OpTreasuryExecute   = "treasury.execute"
	OpTreasuryPause     = "treasury.pause"
	OpTreasuryUnpause   = "treasury.unpause"
	OpTreasuryRotate    = "treasury.rotate"

	OpLedgerSet  = "ledger.set"
	OpLedgerFail = "ledger.fail"
)

// needsID lists the operations that address a record.
var needsID = map[string]bool{
	OpGovVote:         true,
	OpGovFinalize:     true,
	OpGovExecute:      true,
	OpTreasuryApprove: true,
	OpTreasuryExecute: true,
}

var knownOps = map[string]bool{
	OpGovInit: true, OpGovCreate: true, OpGovVote: true, OpGovFinalize: true,
	OpGovExecute: true, OpGovPause: true, OpGovUnpause: true, OpGovRotate: true,
	OpTreasuryInit: true, OpTreasuryAddSigner: true, OpTreasuryPropose: true,
	OpTreasuryApprove: true, OpTreasuryExecute: true, OpTreasuryPause: true,
	OpTreasuryUnpause: true, OpTreasuryRotate: true,
	OpLedgerSet: true, OpLedgerFail: true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields so "assertion:" vs "assertions:" is an error
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	var last Offset
	for i, step := range s.Steps {
		if !knownOps[step.Op] {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		if needsID[step.Op] && step.Args.ID == nil {
			return fmt.Errorf("steps[%d]: %s requires args.id", i, step.Op)
		}
		if step.At < last {
			return fmt.Errorf("steps[%d]: at %s is before the previous step", i, time.Duration(step.At))
		}
		last = step.At
		if err := validateExpect(step.Expect); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateExpect(expect string) error {
	if expect == "" || expect == OutcomeOK {
		return nil
	}
	if authz.Code(expect).Category() == "" {
		return fmt.Errorf("expect %q is neither %q nor a known failure code", expect, OutcomeOK)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertProposalStatus:
		if a.ID == nil || a.Status == "" {
			return fmt.Errorf("assertions[%d]: id and status are required for proposal_status", index)
		}
	case AssertTransaction:
		if a.ID == nil {
			return fmt.Errorf("assertions[%d]: id is required for transaction", index)
		}
		if a.Executed == nil && a.Approvals == nil {
			return fmt.Errorf("assertions[%d]: transaction needs executed or approvals", index)
		}
	case AssertBalance:
		if a.Identity == "" || a.Amount == nil {
			return fmt.Errorf("assertions[%d]: identity and amount are required for balance", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
