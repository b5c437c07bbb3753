package cli

import (
	"context"
	"log/slog"
	"strings"

	"github.com/roach88/quorum/internal/config"
	"github.com/roach88/quorum/internal/governance"
	"github.com/roach88/quorum/internal/store"
	"github.com/roach88/quorum/internal/treasury"
)

// env is the per-invocation wiring: one store, its ledger, and both
// engines over them.
type env struct {
	cfg      *config.Config
	store    *store.Store
	ledger   *store.Ledger
	gov      *governance.Engine
	treasury *treasury.Engine
}

// openEnv loads the policy and opens the database named by --db.
// Failures are command errors (exit 2).
func openEnv(ctx context.Context, opts *RootOptions, f *OutputFormatter) (*env, error) {
	cfg := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			_ = f.Error(ErrCodeConfig, err.Error(), nil)
			return nil, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}

	var (
		st  *store.Store
		err error
	)
	if isPostgresDSN(opts.Database) {
		st, err = store.OpenPostgres(ctx, opts.Database, store.WithLimits(cfg.Store))
	} else {
		st, err = store.Open(opts.Database, store.WithLimits(cfg.Store))
	}
	if err != nil {
		_ = f.Error(ErrCodeStore, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	f.VerboseLog("Opened %s database %s", dialectName(opts.Database), opts.Database)

	ledger := st.Ledger()
	return &env{
		cfg:      cfg,
		store:    st,
		ledger:   ledger,
		gov:      governance.New(st, ledger, cfg.Governance),
		treasury: treasury.New(st, ledger, ledger, cfg.Treasury),
	}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func dialectName(dsn string) string {
	if isPostgresDSN(dsn) {
		return "postgres"
	}
	return "sqlite"
}
