package authz

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Format(t *testing.T) {
	err := New(CodeRateLimited, "proposal cooldown active").
		With("proposer", "alice").
		With("retry_at", "86400")

	assert.Equal(t, "RateLimited: proposal cooldown active (proposer=alice, retry_at=86400)", err.Error())
}

func TestError_FormatWithCause(t *testing.T) {
	err := Wrap(CodeTransferFailed, "transfer rejected", errors.New("insufficient funds"))
	assert.Equal(t, "TransferFailed: transfer rejected: insufficient funds", err.Error())
	assert.EqualError(t, errors.Unwrap(err), "insufficient funds")
}

func TestCodeOf_Wrapped(t *testing.T) {
	base := New(CodeDuplicateVote, "already voted")
	wrapped := fmt.Errorf("cast vote: %w", base)

	assert.Equal(t, CodeDuplicateVote, CodeOf(wrapped))
	assert.True(t, Is(wrapped, CodeDuplicateVote))
	assert.False(t, Is(wrapped, CodeDuplicateApproval))
	assert.True(t, IsRejection(wrapped))
}

func TestCodeOf_PlainError(t *testing.T) {
	err := errors.New("disk full")
	assert.Equal(t, Code(""), CodeOf(err))
	assert.False(t, IsRejection(err))
	assert.False(t, IsRejection(nil))
}

func TestErrorsIs_MatchesOnCode(t *testing.T) {
	err := fmt.Errorf("ctx: %w", Newf(CodeTimelockActive, "until %d", 10))
	assert.True(t, errors.Is(err, New(CodeTimelockActive, "")))
	assert.False(t, errors.Is(err, New(CodeNotPassed, "")))
}

func TestCategories(t *testing.T) {
	tests := []struct {
		code     Code
		category Category
	}{
		{CodeUnauthorized, CategoryAuthorization},
		{CodeContractPaused, CategoryAuthorization},
		{CodeInsufficientWeight, CategoryAuthorization},
		{CodeInvalidInput, CategoryValidation},
		{CodeZeroWeight, CategoryValidation},
		{CodeNotActive, CategoryState},
		{CodeAlreadyExecuted, CategoryState},
		{CodeNotPassed, CategoryState},
		{CodeTransactionNotFound, CategoryState},
		{CodeDuplicateVote, CategoryReplay},
		{CodeDuplicateApproval, CategoryReplay},
		{CodeAlreadyApproved, CategoryReplay},
		{CodeVotingClosed, CategoryTiming},
		{CodeTimelockActive, CategoryTiming},
		{CodeRateLimited, CategoryTiming},
		{CodeTransactionCooldownActive, CategoryTiming},
		{CodeCapacityExceeded, CategoryCapacity},
		{CodeMaxSignersReached, CategoryCapacity},
		{CodeDailyLimitExceeded, CategoryCapacity},
		{CodeRateLimitExceeded, CategoryCapacity},
		{CodeTransferFailed, CategoryExternal},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.category, tt.code.Category())
		})
	}
}

func TestEveryCodeHasCategory(t *testing.T) {
	for _, c := range Codes() {
		assert.NotEmpty(t, c.Category(), "code %s", c)
	}
}

func TestParseCode(t *testing.T) {
	c, err := ParseCode("DailyLimitExceeded")
	require.NoError(t, err)
	assert.Equal(t, CodeDailyLimitExceeded, c)

	_, err = ParseCode("Oops")
	assert.Error(t, err)
}
