// Command authctl administers the identity database: schema migrations and
// account management.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"qazna.org/authcore/internal/account"
	"qazna.org/authcore/internal/app"
	"qazna.org/authcore/internal/config"
	"qazna.org/authcore/internal/kv"
	"qazna.org/authcore/internal/obs"
	"qazna.org/authcore/internal/store/sqlstore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "authctl",
		Short:         "Administer the authcore identity database",
		Version:       obs.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `authctl reads the same environment as the API server (DATABASE_URL,
JWT_SECRET_KEY, BCRYPT_COST, LOG_LEVEL) and operates on the identity database.

Examples:
  # Apply pending migrations
  authctl migrate up

  # Create an administrator
  authctl users create root@example.com --password s3cret --admin`,
	}
	root.AddCommand(newMigrateCmd(), newUsersCmd())
	return root
}

// env is the per-invocation runtime shared by subcommands.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	store  *sqlstore.Store
	redis  *redis.Client
}

func openEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := obs.NewLogger(obs.LogOptions{
		Level:   cfg.SlogLevel(),
		JSON:    cfg.LogJSON,
		Service: "authctl",
		Writer:  cmd.ErrOrStderr(),
	})
	store, err := app.OpenStore(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	client, err := kv.Open(cfg.RedisURL)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, store: store, redis: client}, nil
}

func (e *env) accounts() *account.Service {
	return app.NewAccounts(e.store, e.redis, e.cfg, e.logger)
}

func (e *env) Close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
	_ = e.store.Close()
}
