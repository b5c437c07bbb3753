package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/quorum/internal/ir"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Admin    string
	Required int
}

// InitResult is the output of init.
type InitResult struct {
	Admin           ir.Identity `json:"admin"`
	RequiredSigners int         `json:"required_signers"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the governance and treasury engines",
		Long: `Create the governance and treasury aggregates in the database.

The admin becomes the emergency admin of both circuit breakers and the
treasury's first signer. --required defaults to treasury.required_signers
from the policy.

Example:
  quorum init --admin alice
  quorum init --admin alice --required 2 --config policy.cue`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Admin, "admin", "", "emergency admin and first signer (required)")
	cmd.Flags().IntVar(&opts.Required, "required", 0, "treasury approval threshold")
	_ = cmd.MarkFlagRequired("admin")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	e, err := openEnv(cmd.Context(), opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer e.Close()

	required := opts.Required
	if required == 0 {
		required = e.cfg.Treasury.RequiredSigners
	}
	admin := ir.Identity(opts.Admin)

	// Treasury first: it is the one with caller-supplied input to reject.
	if err := e.treasury.Initialize(cmd.Context(), admin, required); err != nil {
		return f.Fail("init treasury", err)
	}
	if err := e.gov.Initialize(cmd.Context(), admin); err != nil {
		return f.Fail("init governance", err)
	}

	return f.Success(InitResult{Admin: admin, RequiredSigners: required},
		fmt.Sprintf("✓ initialized (admin %s, %d required signer(s))", admin, required))
}
