package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/quorum/internal/ir"
)

// BalanceResult is the output of mint and balance.
type BalanceResult struct {
	Identity ir.Identity `json:"identity"`
	Balance  uint64      `json:"balance"`
}

// NewMintCommand creates the mint command.
func NewMintCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mint <identity> <amount>",
		Short: "Credit tokens to an identity",
		Long: `Credit tokens to an identity in the local ledger.

Balances are voting weight for governance; the treasury vault balance is
what treasury transfers pay out of.

Example:
  quorum mint alice 1000
  quorum mint treasury-vault 1000000`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			amount, err := parseAmount(f, args[1])
			if err != nil {
				return err
			}

			e, err := openEnv(cmd.Context(), rootOpts, f)
			if err != nil {
				return err
			}
			defer e.Close()

			id := ir.Identity(args[0])
			if err := e.ledger.Mint(cmd.Context(), id, amount); err != nil {
				return f.Fail("mint", err)
			}
			balance, err := e.ledger.BalanceOf(cmd.Context(), id)
			if err != nil {
				return f.Fail("mint", err)
			}
			return f.Success(BalanceResult{Identity: id, Balance: balance},
				fmt.Sprintf("✓ minted %d to %s (balance %d)", amount, id, balance))
		},
	}
}

// NewBalanceCommand creates the balance command.
func NewBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <identity>",
		Short: "Show an identity's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			e, err := openEnv(cmd.Context(), rootOpts, f)
			if err != nil {
				return err
			}
			defer e.Close()

			id := ir.Identity(args[0])
			balance, err := e.ledger.BalanceOf(cmd.Context(), id)
			if err != nil {
				return f.Fail("balance", err)
			}
			return f.Success(BalanceResult{Identity: id, Balance: balance},
				fmt.Sprintf("%s: %d", id, balance))
		},
	}
}

func parseAmount(f *OutputFormatter, s string) (uint64, error) {
	amount, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		_ = f.Error(ErrCodeArgument, fmt.Sprintf("invalid amount %q", s), nil)
		return 0, WrapExitError(ExitCommandError, "invalid amount", err)
	}
	return amount, nil
}

func parseID(f *OutputFormatter, s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		_ = f.Error(ErrCodeArgument, fmt.Sprintf("invalid id %q", s), nil)
		return 0, WrapExitError(ExitCommandError, "invalid id", err)
	}
	return id, nil
}
