package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quorum/internal/config"
)

func writePolicy(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runValidateCmd(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateValidPolicy(t *testing.T) {
	path := writePolicy(t, "policy.cue", `
governance: {
	quorum_percent: 30
	voting_period:  "48h"
}
treasury: required_signers: 2
`)

	out, err := runValidateCmd(t, "text", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ policy valid")
}

func TestValidateValidPolicyJSON(t *testing.T) {
	path := writePolicy(t, "policy.json", `{"treasury": {"daily_cap": 5000}}`)

	out, err := runValidateCmd(t, "json", path)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["valid"])
	assert.Equal(t, path, data["file"])
}

func TestValidateEmptyPolicy(t *testing.T) {
	path := writePolicy(t, "empty.cue", "")

	out, err := runValidateCmd(t, "text", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ policy valid")
}

func TestValidateSchemaViolation(t *testing.T) {
	path := writePolicy(t, "policy.cue", `
governance: {
	quorum_percent: 150
}
`)

	out, err := runValidateCmd(t, "text", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, config.ErrCodeInvalidPolicy)
}

func TestValidateSchemaViolationJSON(t *testing.T) {
	path := writePolicy(t, "policy.cue", `treasury: unknown_field: 1`)

	out, err := runValidateCmd(t, "json", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, config.ErrCodeInvalidPolicy, resp.Error.Code)

	data := resp.Data.(map[string]any)
	assert.Equal(t, false, data["valid"])
	errs := data["errors"].([]any)
	require.Len(t, errs, 1)
}

func TestValidateSyntaxError(t *testing.T) {
	path := writePolicy(t, "broken.cue", "governance: {\n\tquorum_percent: \n")

	out, err := runValidateCmd(t, "text", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, config.ErrCodeParseFailed)
}

func TestValidateCrossFieldConstraint(t *testing.T) {
	path := writePolicy(t, "policy.cue", `treasury: {required_signers: 4, max_signers: 3}`)

	out, err := runValidateCmd(t, "text", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "exceeds treasury.max_signers")
}

func TestValidateMissingFile(t *testing.T) {
	out, err := runValidateCmd(t, "text", filepath.Join(t.TempDir(), "missing.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, config.ErrCodeReadFailed)
}

func TestValidateMissingArgs(t *testing.T) {
	_, err := runValidateCmd(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}
