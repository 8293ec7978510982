package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nis-portal/portal-api/internal/config"
	"github.com/nis-portal/portal-api/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Version = "dev"

var databaseURL string

func main() {
	if err := logging.InitLogger(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "portalctl",
		Short:        "Operator tooling for the NIS benefit portal database",
		Version:      Version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL URL (defaults to DATABASE_URL or the DATABASE_* variables)")

	root.AddCommand(migrateCmd())
	root.AddCommand(seedAdminCmd())
	return root
}

// openPool connects to PostgreSQL with a bounded wait.
func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	url := databaseURL
	if url == "" {
		url = config.DatabaseURLFromEnv()
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logging.Logger.Debug("connected to database", zap.String("host", pool.Config().ConnConfig.Host))
	return pool, nil
}
