package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/quorum/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] +%ds %s -> %s\n", event.Seq, event.At, event.Op, event.Outcome)
		}
	}
	return buf.String()
}

// evaluate runs every assertion and returns the failure messages.
func (h *Harness) evaluate(ctx context.Context, result *Result, assertions []Assertion) []string {
	var errors []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertProposalStatus:
			err = h.assertProposalStatus(ctx, a)
		case AssertTransaction:
			err = h.assertTransaction(ctx, a)
		case AssertBalance:
			err = h.assertBalance(ctx, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

func (h *Harness) assertProposalStatus(ctx context.Context, a Assertion) error {
	p, err := h.gov.Proposal(ctx, *a.ID)
	if err != nil {
		return &AssertionError{
			Type:     AssertProposalStatus,
			Expected: fmt.Sprintf("proposal %d with status %s", *a.ID, a.Status),
			Actual:   err.Error(),
		}
	}
	if p.Status.String() != a.Status {
		return &AssertionError{
			Type:     AssertProposalStatus,
			Expected: fmt.Sprintf("proposal %d status %s", *a.ID, a.Status),
			Actual:   fmt.Sprintf("status %s (tally yes=%d no=%d abstain=%d)", p.Status, p.Tally.Yes, p.Tally.No, p.Tally.Abstain),
		}
	}
	return nil
}

func (h *Harness) assertTransaction(ctx context.Context, a Assertion) error {
	tx, err := h.treasury.Transaction(ctx, *a.ID)
	if err != nil {
		return &AssertionError{
			Type:     AssertTransaction,
			Expected: fmt.Sprintf("transaction %d", *a.ID),
			Actual:   err.Error(),
		}
	}
	if a.Executed != nil && tx.Executed != *a.Executed {
		return &AssertionError{
			Type:     AssertTransaction,
			Expected: fmt.Sprintf("transaction %d executed=%t", *a.ID, *a.Executed),
			Actual:   fmt.Sprintf("executed=%t", tx.Executed),
		}
	}
	if a.Approvals != nil && len(tx.Approvals) != *a.Approvals {
		return &AssertionError{
			Type:     AssertTransaction,
			Expected: fmt.Sprintf("transaction %d with %d approvals", *a.ID, *a.Approvals),
			Actual:   fmt.Sprintf("%d approvals %v", len(tx.Approvals), tx.Approvals),
		}
	}
	return nil
}

func (h *Harness) assertBalance(ctx context.Context, a Assertion) error {
	got, err := h.ledger.BalanceOf(ctx, ir.Identity(a.Identity))
	if err != nil {
		return fmt.Errorf("balance of %s: %w", a.Identity, err)
	}
	if got != *a.Amount {
		return &AssertionError{
			Type:     AssertBalance,
			Expected: fmt.Sprintf("%s holds %d", a.Identity, *a.Amount),
			Actual:   fmt.Sprintf("%s holds %d", a.Identity, got),
		}
	}
	return nil
}

// assertTraceCount checks that op appears exactly Count times, restricted to
// Outcome when one is given.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Op == a.Op && (a.Outcome == "" || event.Outcome == a.Outcome) {
			count++
		}
	}
	if count != a.Count {
		what := a.Op
		if a.Outcome != "" {
			what += " -> " + a.Outcome
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, what),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceOrder checks that ops appear in the given order.
// Ops don't need to be consecutive; each must appear after the previous
// match.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	pos := 0
	for _, want := range a.Ops {
		found := false
		for pos < len(trace) {
			pos++
			if trace[pos-1].Op == want {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", a.Ops),
				Actual:   fmt.Sprintf("%s not found after position %d", want, pos),
				Trace:    trace,
			}
		}
	}
	return nil
}
