package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/quorum/internal/governance"
	"github.com/roach88/quorum/internal/ir"
)

// actorFlag adds the --as flag naming the identity performing the command.
func actorFlag(cmd *cobra.Command, actor *string) {
	cmd.Flags().StringVar(actor, "as", "", "identity performing the operation (required)")
	_ = cmd.MarkFlagRequired("as")
}

// NewGovCommand creates the gov command group.
func NewGovCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gov",
		Short: "Governance proposals and weighted voting",
	}

	cmd.AddCommand(newGovCreateCommand(rootOpts))
	cmd.AddCommand(newGovVoteCommand(rootOpts))
	cmd.AddCommand(newGovFinalizeCommand(rootOpts))
	cmd.AddCommand(newGovExecuteCommand(rootOpts))
	cmd.AddCommand(newGovShowCommand(rootOpts))
	cmd.AddCommand(newBreakerCommands(rootOpts, "gov", govBreaker)...)

	return cmd
}

func newGovCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var actor, title, description, payload string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a proposal",
		Long: `Open a governance proposal.

The proposer's ledger balance must meet governance.min_proposal_weight and
the proposer must be past their cooldown.

Example:
  quorum gov create --as alice --title "Fund audit" --payload audit:v1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			e, err := openEnv(cmd.Context(), rootOpts, f)
			if err != nil {
				return err
			}
			defer e.Close()

			p, err := e.gov.CreateProposal(cmd.Context(), governance.ProposalRequest{
				Proposer:    ir.Identity(actor),
				Title:       title,
				Description: description,
				Payload:     []byte(payload),
			})
			if err != nil {
				return f.Fail("create proposal", err)
			}
			return f.Success(p, fmt.Sprintf("✓ proposal %d created, voting ends %s",
				p.ID, p.VotingEndsAt.UTC().Format(timeLayout)))
		},
	}

	actorFlag(cmd, &actor)
	cmd.Flags().StringVar(&title, "title", "", "proposal title")
	cmd.Flags().StringVar(&description, "description", "", "proposal description")
	cmd.Flags().StringVar(&payload, "payload", "", "opaque execution payload")
	return cmd
}

func newGovVoteCommand(rootOpts *RootOptions) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "vote <proposal-id> <yes|no|abstain>",
		Short: "Cast a weighted vote",
		Long: `Cast a vote weighted by the voter's current ledger balance.

A vote cast at or after the deadline finalizes the proposal.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			id, err := parseID(f, args[0])
			if err != nil {
				return err
			}
			choice, err := ir.ParseVoteChoice(args[1])
			if err != nil {
				_ = f.Error(ErrCodeArgument, err.Error(), nil)
				return WrapExitError(ExitCommandError, "invalid vote choice", err)
			}

			e, err := openEnv(cmd.Context(), rootOpts, f)
			if err != nil {
				return err
			}
			defer e.Close()

			p, err := e.gov.CastVote(cmd.Context(), id, ir.Identity(actor), choice)
			if err != nil {
				return f.Fail("vote", err)
			}
			return f.Success(p, fmt.Sprintf("✓ %s voted %s on proposal %d (%s)",
				actor, choice, p.ID, tallyText(p)))
		},
	}

	actorFlag(cmd, &actor)
	return cmd
}

func newGovFinalizeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "finalize <proposal-id>",
		Short: "Resolve a proposal whose voting period has ended",
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

			p, err := e.gov.Finalize(cmd.Context(), id)
			if err != nil {
				return f.Fail("finalize", err)
			}
			return f.Success(p, fmt.Sprintf("✓ proposal %d %s (%s)", p.ID, p.Status, tallyText(p)))
		},
	}
}

func newGovExecuteCommand(rootOpts *RootOptions) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "execute <proposal-id>",
		Short: "Authorize execution of a passed proposal",
		Long: `Mark a passed proposal executed once its timelock has elapsed.

The returned authorization carries a digest of the proposal content that
was voted on; this command does not perform the payload.`,
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

			auth, err := e.gov.Execute(cmd.Context(), id, ir.Identity(actor))
			if err != nil {
				return f.Fail("execute proposal", err)
			}
			return f.Success(auth, fmt.Sprintf("✓ proposal %d executed\n  receipt: %s\n  digest:  %s",
				auth.ProposalID, auth.ID, auth.ProposalDigest))
		},
	}

	actorFlag(cmd, &actor)
	return cmd
}

func newGovShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [proposal-id]",
		Short: "Show governance state or one proposal",
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
				p, err := e.gov.Proposal(cmd.Context(), id)
				if err != nil {
					return f.Fail("show proposal", err)
				}
				return f.Success(p, proposalText(p))
			}

			state, err := e.gov.State(cmd.Context())
			if err != nil {
				return f.Fail("show governance", err)
			}
			return f.Success(state, fmt.Sprintf("admin: %s\npaused: %t\nactive proposals: %d\nproposals: %d",
				state.Breaker.Admin, state.Breaker.Paused, state.ActiveProposals, state.ProposalCount))
		},
	}
}

const timeLayout = "2006-01-02T15:04:05Z"

func tallyText(p *ir.Proposal) string {
	return fmt.Sprintf("yes=%d no=%d abstain=%d quorum=%t", p.Tally.Yes, p.Tally.No, p.Tally.Abstain, p.QuorumReached)
}

func proposalText(p *ir.Proposal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "proposal %d: %s\n", p.ID, p.Title)
	fmt.Fprintf(&b, "  proposer: %s\n", p.Proposer)
	fmt.Fprintf(&b, "  status:   %s\n", p.Status)
	fmt.Fprintf(&b, "  tally:    %s\n", tallyText(p))
	fmt.Fprintf(&b, "  voters:   %d\n", len(p.Voters))
	fmt.Fprintf(&b, "  ends:     %s", p.VotingEndsAt.UTC().Format(timeLayout))
	return b.String()
}
