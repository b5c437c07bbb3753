package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quorum/internal/ir"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "quorum", cmd.Use)
	assert.Contains(t, cmd.Long, "circuit breaker")
	assert.Equal(t, ir.EngineVersion, cmd.Version)
}

func TestCommandPresence(t *testing.T) {
	commands := [][]string{
		{"init"},
		{"mint"},
		{"balance"},
		{"validate"},
		{"test"},
		{"gov", "create"},
		{"gov", "vote"},
		{"gov", "finalize"},
		{"gov", "execute"},
		{"gov", "show"},
		{"gov", "pause"},
		{"gov", "unpause"},
		{"gov", "rotate-admin"},
		{"treasury", "propose"},
		{"treasury", "approve"},
		{"treasury", "execute"},
		{"treasury", "show"},
		{"treasury", "add-signer"},
		{"treasury", "pause"},
		{"treasury", "unpause"},
		{"treasury", "rotate-admin"},
	}

	cmd := NewRootCommand()
	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(path[0]+"_"+name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "quorum.db", dbFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestActorFlagRequired(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{
		{"gov", "create"},
		{"gov", "vote"},
		{"gov", "execute"},
		{"treasury", "propose"},
		{"treasury", "approve"},
		{"treasury", "add-signer"},
		{"treasury", "pause"},
	} {
		subCmd, _, err := cmd.Find(path)
		require.NoError(t, err)
		flag := subCmd.Flags().Lookup("as")
		require.NotNil(t, flag, "%v should take --as", path)
		assert.Contains(t, flag.Annotations, "cobra_annotation_bash_completion_one_required_flag", "%v --as should be required", path)
	}
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	filterFlag := testCmd.Flags().Lookup("filter")
	require.NotNil(t, filterFlag)
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "xml", "balance", "alice"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
