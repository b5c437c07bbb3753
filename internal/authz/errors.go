// Package authz defines the named failure conditions surfaced by the
// authorization engines.
//
// Every rejected operation returns an *Error carrying exactly one Code.
// Callers branch on the code, never on the message text. Store and transfer
// infrastructure failures are ordinary wrapped errors and carry no Code.
package authz

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code identifies a named failure condition.
type Code string

const (
	// Authorization
	CodeUnauthorized       Code = "Unauthorized"
	CodeContractPaused     Code = "ContractPaused"
	CodeInsufficientWeight Code = "InsufficientWeight"

	// Validation
	CodeInvalidInput       Code = "InvalidInput"
	CodeZeroWeight         Code = "ZeroWeight"
	CodeInvalidSignerCount Code = "InvalidSignerCount"

	// State
	CodeNotActive           Code = "NotActive"
	CodeAlreadyExecuted     Code = "AlreadyExecuted"
	CodeNotPassed           Code = "NotPassed"
	CodeProposalNotFound    Code = "ProposalNotFound"
	CodeTransactionNotFound Code = "TransactionNotFound"
	CodeNotInitialized      Code = "NotInitialized"
	CodeAlreadyInitialized  Code = "AlreadyInitialized"
	CodeSignerAlreadyExists Code = "SignerAlreadyExists"

	// Replay
	CodeDuplicateVote     Code = "DuplicateVote"
	CodeDuplicateApproval Code = "DuplicateApproval"
	CodeAlreadyApproved   Code = "AlreadyApproved"

	// Timing
	CodeVotingClosed              Code = "VotingClosed"
	CodeVotingStillOpen           Code = "VotingStillOpen"
	CodeTimelockActive            Code = "TimelockActive"
	CodeRateLimited               Code = "RateLimited"
	CodeTransactionCooldownActive Code = "TransactionCooldownActive"

	// Capacity
	CodeCapacityExceeded      Code = "CapacityExceeded"
	CodeMaxSignersReached     Code = "MaxSignersReached"
	CodeDailyLimitExceeded    Code = "DailyLimitExceeded"
	CodeRateLimitExceeded     Code = "RateLimitExceeded"
	CodeInsufficientApprovals Code = "InsufficientApprovals"

	// External
	CodeTransferFailed Code = "TransferFailed"
)

// Category groups codes by the kind of rule that rejected the operation.
type Category string

const (
	CategoryAuthorization Category = "Authorization"
	CategoryValidation    Category = "Validation"
	CategoryState         Category = "State"
	CategoryReplay        Category = "Replay"
	CategoryTiming        Category = "Timing"
	CategoryCapacity      Category = "Capacity"
	CategoryExternal      Category = "External"
)

var categories = map[Code]Category{
	CodeUnauthorized:       CategoryAuthorization,
	CodeContractPaused:     CategoryAuthorization,
	CodeInsufficientWeight: CategoryAuthorization,

	CodeInvalidInput:       CategoryValidation,
	CodeZeroWeight:         CategoryValidation,
	CodeInvalidSignerCount: CategoryValidation,

	CodeNotActive:           CategoryState,
	CodeAlreadyExecuted:     CategoryState,
	CodeNotPassed:           CategoryState,
	CodeProposalNotFound:    CategoryState,
	CodeTransactionNotFound: CategoryState,
	CodeNotInitialized:      CategoryState,
	CodeAlreadyInitialized:  CategoryState,
	CodeSignerAlreadyExists: CategoryState,

	CodeDuplicateVote:     CategoryReplay,
	CodeDuplicateApproval: CategoryReplay,
	CodeAlreadyApproved:   CategoryReplay,

	CodeVotingClosed:              CategoryTiming,
	CodeVotingStillOpen:           CategoryTiming,
	CodeTimelockActive:            CategoryTiming,
	CodeRateLimited:               CategoryTiming,
	CodeTransactionCooldownActive: CategoryTiming,

	CodeCapacityExceeded:      CategoryCapacity,
	CodeMaxSignersReached:     CategoryCapacity,
	CodeDailyLimitExceeded:    CategoryCapacity,
	CodeRateLimitExceeded:     CategoryCapacity,
	CodeInsufficientApprovals: CategoryCapacity,

	CodeTransferFailed: CategoryExternal,
}

// Category returns the taxonomy group of c, or "" for an unknown code.
func (c Code) Category() Category {
	return categories[c]
}

// Codes returns every known code in lexical order.
func Codes() []Code {
	codes := make([]Code, 0, len(categories))
	for c := range categories {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// ParseCode validates s against the known codes.
func ParseCode(s string) (Code, error) {
	c := Code(s)
	if _, ok := categories[c]; !ok {
		return "", fmt.Errorf("unknown failure code %q", s)
	}
	return c, nil
}

// Error is a rejected operation.
type Error struct {
	// Code identifies the failure condition.
	Code Code

	// Message is a human-readable description.
	Message string

	// Details contains additional context (ids, limits, times).
	Details map[string]string

	// Err is an underlying cause, set only for external failures.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", k, e.Details[k])
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, authz.New(code, "")) match on code alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// With returns e with an added detail. It mutates and returns e for chaining.
func (e *Error) With(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Wrap creates an Error with an underlying cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the failure code from err, or "" if err is not a
// rejection. Uses errors.As to handle wrapped errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err is a rejection with the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsRejection reports whether err is any named failure condition, as
// opposed to an infrastructure error.
func IsRejection(err error) bool {
	return CodeOf(err) != ""
}
