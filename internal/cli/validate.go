package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/quorum/internal/config"
)

// ValidationError is one problem found in a policy file.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	File   string            `json:"file"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <policy-file>",
		Short: "Validate a policy file without touching the database",
		Long: `Validate a CUE or JSON policy against the embedded schema.

Reports the first schema violation with its position. Unset fields take
their schema defaults, so an empty file is a valid policy.

Exit codes:
  0 - Policy valid
  1 - Policy invalid
  2 - Command error (file unreadable)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	cfg, err := config.Load(path)
	if err == nil {
		f.VerboseLog("Governance: quorum %d%%, supermajority %d%%, voting period %s",
			cfg.Governance.QuorumPercent, cfg.Governance.SupermajorityPercent, cfg.Governance.VotingPeriod)
		f.VerboseLog("Treasury: %d of %d signers, daily cap %d, vault %s",
			cfg.Treasury.RequiredSigners, cfg.Treasury.MaxSigners, cfg.Treasury.DailyCap, cfg.Treasury.Vault)
		return f.Success(ValidationResult{Valid: true, File: path}, "✓ policy valid")
	}

	var loadErr *config.LoadError
	if !errors.As(err, &loadErr) {
		_ = f.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load policy", err)
	}
	if loadErr.Code == config.ErrCodeReadFailed {
		_ = f.Error(loadErr.Code, loadErr.Message, nil)
		return NewExitError(ExitCommandError, loadErr.Error())
	}

	verr := ValidationError{Code: loadErr.Code, Message: loadErr.Message}
	if loadErr.Pos.IsValid() {
		verr.Line = loadErr.Pos.Line()
		verr.Column = loadErr.Pos.Column()
	}
	return outputValidationErrors(f, path, []ValidationError{verr})
}

// outputValidationErrors reports an invalid policy. Invalid input is a
// validation failure (exit 1), not a command error.
func outputValidationErrors(f *OutputFormatter, path string, errs []ValidationError) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if f.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, File: path, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		encoder := json.NewEncoder(f.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(f.Writer, "✗ Validation failed")
	fmt.Fprintln(f.Writer)
	for _, e := range errs {
		if e.Line > 0 {
			fmt.Fprintf(f.Writer, "%s:%d:%d\n", path, e.Line, e.Column)
		}
		fmt.Fprintf(f.Writer, "  %s: %s\n\n", e.Code, e.Message)
	}
	return failure
}
