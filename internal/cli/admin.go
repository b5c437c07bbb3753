package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/quorum/internal/ir"
)

// breakerControl is the emergency surface shared by both engines.
type breakerControl interface {
	Pause(ctx context.Context, caller ir.Identity) error
	Unpause(ctx context.Context, caller ir.Identity) error
	RotateAdmin(ctx context.Context, caller, next ir.Identity) error
}

// AdminResult is the output of pause, unpause and rotate-admin.
type AdminResult struct {
	Engine string      `json:"engine"`
	Action string      `json:"action"`
	Admin  ir.Identity `json:"admin"`
}

func govBreaker(e *env) breakerControl      { return e.gov }
func treasuryBreaker(e *env) breakerControl { return e.treasury }

type breakerCall func(ctx context.Context, b breakerControl, caller ir.Identity, args []string) (ir.Identity, error)

// newBreakerCommands builds pause, unpause and rotate-admin for one engine.
func newBreakerCommands(rootOpts *RootOptions, engine string, pick func(*env) breakerControl) []*cobra.Command {
	pause := newBreakerCommand(rootOpts, engine, pick, "paused", &cobra.Command{
		Use:   "pause",
		Short: "Trip the circuit breaker",
		Args:  cobra.NoArgs,
	}, func(ctx context.Context, b breakerControl, caller ir.Identity, _ []string) (ir.Identity, error) {
		return caller, b.Pause(ctx, caller)
	})

	unpause := newBreakerCommand(rootOpts, engine, pick, "unpaused", &cobra.Command{
		Use:   "unpause",
		Short: "Reset the circuit breaker",
		Args:  cobra.NoArgs,
	}, func(ctx context.Context, b breakerControl, caller ir.Identity, _ []string) (ir.Identity, error) {
		return caller, b.Unpause(ctx, caller)
	})

	rotate := newBreakerCommand(rootOpts, engine, pick, "admin rotated", &cobra.Command{
		Use:   "rotate-admin <next>",
		Short: "Hand the emergency admin role to another identity",
		Args:  cobra.ExactArgs(1),
	}, func(ctx context.Context, b breakerControl, caller ir.Identity, args []string) (ir.Identity, error) {
		next := ir.Identity(args[0])
		return next, b.RotateAdmin(ctx, caller, next)
	})

	return []*cobra.Command{pause, unpause, rotate}
}

func newBreakerCommand(rootOpts *RootOptions, engine string, pick func(*env) breakerControl, action string, cmd *cobra.Command, call breakerCall) *cobra.Command {
	var actor string
	actorFlag(cmd, &actor)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		f := rootOpts.formatter(cmd)
		e, err := openEnv(cmd.Context(), rootOpts, f)
		if err != nil {
			return err
		}
		defer e.Close()

		admin, err := call(cmd.Context(), pick(e), ir.Identity(actor), args)
		if err != nil {
			return f.Fail(engine+" "+action, err)
		}
		return f.Success(AdminResult{Engine: engine, Action: action, Admin: admin},
			fmt.Sprintf("✓ %s %s (admin %s)", engine, action, admin))
	}
	return cmd
}
