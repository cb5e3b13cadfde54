package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/alem-hub/gradebook/config"
	"github.com/alem-hub/gradebook/internal/infrastructure/persistence/postgres"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATE COMMAND
// Управление схемой PostgreSQL-проекции без запуска реестра.
// ══════════════════════════════════════════════════════════════════════════════

var errDatabaseNotConfigured = errors.New("database is not configured: set DATABASE_URL or DB_HOST and DB_USER")

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL projection schema",
	}

	cmd.AddCommand(
		newMigrateStepCmd(opts, "up", "Apply all pending migrations", func(ctx context.Context, m *postgres.Migrator, out io.Writer) error {
			if err := m.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "schema is up to date")
			return nil
		}),
		newMigrateStepCmd(opts, "down", "Roll back the latest applied migration", func(ctx context.Context, m *postgres.Migrator, out io.Writer) error {
			if err := m.Rollback(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "rolled back the latest migration")
			return nil
		}),
		newMigrateStepCmd(opts, "status", "Show applied and pending migrations", func(ctx context.Context, m *postgres.Migrator, out io.Writer) error {
			statuses, err := m.Status(ctx)
			if err != nil {
				return err
			}
			printMigrationStatus(out, statuses)
			return nil
		}),
	)

	return cmd
}

func newMigrateStepCmd(
	opts *rootOptions,
	use, short string,
	run func(context.Context, *postgres.Migrator, io.Writer) error,
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			connectCtx, cancel := context.WithTimeout(ctx, opts.cfg.Database.ConnectTimeout)
			defer cancel()

			conn, err := openDatabase(connectCtx, opts.cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			opts.log.Debug("running migrate command", "step", use)
			return run(ctx, postgres.NewMigrator(conn), cmd.OutOrStdout())
		},
	}
}

// openDatabase открывает пул по настройкам DatabaseConfig.
func openDatabase(ctx context.Context, cfg *config.Config) (*postgres.Connection, error) {
	if cfg.Database.URL == "" {
		return nil, errDatabaseNotConfigured
	}

	return postgres.Open(ctx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        int32(cfg.Database.MinConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
	})
}

func printMigrationStatus(out io.Writer, statuses []postgres.MigrationStatus) {
	for _, s := range statuses {
		state := "pending"
		if s.AppliedAt != nil {
			state = "applied " + s.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(out, "%03d_%-32s %s\n", s.Version, s.Name, state)
	}
}
