package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/devrev/medadmin/internal/config"
	"github.com/devrev/medadmin/internal/logging"
	"github.com/devrev/medadmin/internal/migrate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL schema migrations",
		Long: `Applies every embedded migration that has not yet been recorded in
schema_migrations. Exits non-zero if any migration fails.

Use --status to list migrations without applying them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDatabase(root.configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			logger, err := logging.NewStderr(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			pool, err := migrate.Open(ctx, cfg.Database.URL, cfg.Database.MaxConnections, cfg.Database.MinConnections)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer pool.Close()

			if status {
				return printMigrationStatus(ctx, cmd.OutOrStdout(), pool, logger)
			}
			return runMigrations(ctx, cfg, pool, logger)
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "list migrations and whether they are applied")
	return cmd
}

// runMigrations applies pending migrations within the configured timeout.
func runMigrations(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *zap.Logger) error {
	runner, err := migrate.NewRunner(migrate.Embedded(), logger)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	if cfg.Database.MigrationsTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Database.MigrationsTimeout)
		defer cancel()
	}

	logger.Info("Running database migrations", zap.Int("known", len(runner.Migrations())))

	applied, err := runner.Up(ctx, pool)
	if err != nil {
		logger.Error("Migration failed", zap.Int("applied", applied), zap.Error(err))
		return fmt.Errorf("migrations failed: %w", err)
	}

	logger.Info("Database migrations complete", zap.Int("applied", applied))
	return nil
}

func printMigrationStatus(ctx context.Context, out io.Writer, pool *pgxpool.Pool, logger *zap.Logger) error {
	runner, err := migrate.NewRunner(migrate.Embedded(), logger)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	statuses, err := runner.Status(ctx, conn)
	if err != nil {
		return err
	}

	return writeMigrationStatus(out, statuses)
}

func writeMigrationStatus(out io.Writer, statuses []migrate.Status) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MIGRATION\tAPPLIED AT")
	for _, s := range statuses {
		applied := "pending"
		if s.AppliedAt != nil {
			applied = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\n", s.ID(), applied)
	}
	return tw.Flush()
}
