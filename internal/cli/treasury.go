package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/quorum/internal/ir"
	"github.com/roach88/quorum/internal/treasury"
)

// NewTreasuryCommand creates the treasury command group.
func NewTreasuryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "treasury",
		Short: "Multi-signature treasury transfers",
	}

	cmd.AddCommand(newTreasuryProposeCommand(rootOpts))
	cmd.AddCommand(newTreasuryApproveCommand(rootOpts))
	cmd.AddCommand(newTreasuryExecuteCommand(rootOpts))
	cmd.AddCommand(newTreasuryShowCommand(rootOpts))
	cmd.AddCommand(newTreasuryAddSignerCommand(rootOpts))
	cmd.AddCommand(newBreakerCommands(rootOpts, "treasury", treasuryBreaker)...)

	return cmd
}

func newTreasuryProposeCommand(rootOpts *RootOptions) *cobra.Command {
	var actor, to, description string
	var amount uint64

	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Propose a transfer out of the vault",
		Long: `Propose a transfer out of the treasury vault.

The proposer must be a signer and counts as the first approval. Amount is
checked against the per-transaction ceiling, the remaining daily cap and
the large-transfer cooldown.

Example:
  quorum treasury propose --as alice --amount 500 --to grantee --description "Q3 grant"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			e, err := openEnv(cmd.Context(), rootOpts, f)
			if err != nil {
				return err
			}
			defer e.Close()

			tx, err := e.treasury.Propose(cmd.Context(), treasury.TransactionRequest{
				Proposer:    ir.Identity(actor),
				Amount:      amount,
				Destination: ir.Identity(to),
				Description: description,
			})
			if err != nil {
				return f.Fail("propose transaction", err)
			}
			return f.Success(tx, fmt.Sprintf("✓ transaction %d proposed: %d to %s", tx.ID, tx.Amount, tx.Destination))
		},
	}

	actorFlag(cmd, &actor)
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount to transfer (required)")
	cmd.Flags().StringVar(&to, "to", "", "destination identity (required)")
	cmd.Flags().StringVar(&description, "description", "", "transaction description")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newTreasuryApproveCommand(rootOpts *RootOptions) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "approve <transaction-id>",
		Short: "Add a signer approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			id, err := parseID(f, args[0])
			if err != nil {
				return err
			}
			e, err := openEnv(cmd.Context(), rootOpts, f)
			if err != nil {
				return err
			}
			defer e.Close()

			tx, err := e.treasury.Approve(cmd.Context(), id, ir.Identity(actor))
			if err != nil {
				return f.Fail("approve", err)
			}
			return f.Success(tx, fmt.Sprintf("✓ %s approved transaction %d (%d approval(s))",
				actor, tx.ID, len(tx.Approvals)))
		},
	}

	actorFlag(cmd, &actor)
	return cmd
}

func newTreasuryExecuteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "execute <transaction-id>",
		Short: "Transfer funds for a fully approved transaction",
		Long: `Execute a transaction that has reached the approval threshold.

The amount is charged against the daily cap and moved out of the vault.
Retrying after a failure reuses the same idempotency key, so the transfer
is applied at most once.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			id, err := parseID(f, args[0])
			if err != nil {
				return err
			}
			e, err := openEnv(cmd.Context(), rootOpts, f)
			if err != nil {
				return err
			}
			defer e.Close()

			receipt, err := e.treasury.Execute(cmd.Context(), id)
			if err != nil {
				return f.Fail("execute transaction", err)
			}
			return f.Success(receipt, fmt.Sprintf("✓ transaction %d executed: %d from %s to %s\n  receipt: %s",
				receipt.TransactionID, receipt.Amount, receipt.From, receipt.To, receipt.ID))
		},
	}
}

func newTreasuryShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [transaction-id]",
		Short: "Show treasury state or one transaction",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			var (
				id     uint64
				err    error
				single = len(args) == 1
			)
			if single {
				if id, err = parseID(f, args[0]); err != nil {
					return err
				}
			}

			e, err := openEnv(cmd.Context(), rootOpts, f)
			if err != nil {
				return err
			}
			defer e.Close()

			if single {
				tx, err := e.treasury.Transaction(cmd.Context(), id)
				if err != nil {
					return f.Fail("show transaction", err)
				}
				return f.Success(tx, transactionText(tx))
			}

			state, err := e.treasury.State(cmd.Context())
			if err != nil {
				return f.Fail("show treasury", err)
			}
			return f.Success(state, treasuryText(state))
		},
	}
}

func newTreasuryAddSignerCommand(rootOpts *RootOptions) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "add-signer <signer>",
		Short: "Add an identity to the signer set",
		Long: `Add an identity to the signer set. Only the admin may add signers.

The approval threshold is unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			e, err := openEnv(cmd.Context(), rootOpts, f)
			if err != nil {
				return err
			}
			defer e.Close()

			signer := ir.Identity(args[0])
			if err := e.treasury.AddSigner(cmd.Context(), ir.Identity(actor), signer); err != nil {
				return f.Fail("add signer", err)
			}
			state, err := e.treasury.State(cmd.Context())
			if err != nil {
				return f.Fail("add signer", err)
			}
			return f.Success(state, fmt.Sprintf("✓ %s added (%d signer(s), %d required)",
				signer, len(state.Signers), state.RequiredSigners))
		},
	}

	actorFlag(cmd, &actor)
	return cmd
}

func transactionText(tx *ir.Transaction) string {
	status := "pending"
	if tx.Executed {
		status = "executed"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "transaction %d: %d to %s\n", tx.ID, tx.Amount, tx.Destination)
	if tx.Description != "" {
		fmt.Fprintf(&b, "  description: %s\n", tx.Description)
	}
	fmt.Fprintf(&b, "  status:      %s\n", status)
	fmt.Fprintf(&b, "  approvals:   %s", joinIdentities(tx.Approvals))
	return b.String()
}

func treasuryText(s *ir.TreasuryState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "admin: %s\n", s.Breaker.Admin)
	fmt.Fprintf(&b, "paused: %t\n", s.Breaker.Paused)
	fmt.Fprintf(&b, "signers: %s (%d required)\n", joinIdentities(s.Signers), s.RequiredSigners)
	fmt.Fprintf(&b, "transferred today: %d\n", s.Daily.Accumulated)
	fmt.Fprintf(&b, "transactions: %d", s.TransactionCount)
	return b.String()
}

func joinIdentities(ids []ir.Identity) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
