// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/jobmarket/jobmarket/internal/store"
)

// migratorFactory opens migrators for the migrate commands. Tests replace it.
var migratorFactory = newMigrator

// NewMigrateCmd creates the migrate command and its subcommands. Without a
// subcommand it applies all pending migrations.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Apply, revert or inspect the PostgreSQL schema migrations that
ship inside the binary. Running "migrate" alone is the same as "migrate up".`,
		RunE: runMigrateUp,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  runMigrateUp,
	})

	var confirm bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert all migrations (drops every table)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateDown(cmd, confirm)
		},
	}
	down.Flags().BoolVar(&confirm, "yes", false, "confirm dropping all data")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied version and pending migrations",
		RunE:  runMigrateStatus,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it (repairs a dirty database)",
		Args:  cobra.ExactArgs(1),
		RunE:  runMigrateForce,
	})

	return cmd
}

// getDatabaseURL resolves the database URL from the configuration layers.
func getDatabaseURL(cmd *cobra.Command) (string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	if err := cfg.ValidateDatabase(); err != nil {
		return "", err
	}
	return cfg.Database.URL, nil
}

func openMigrator(cmd *cobra.Command) (Migrator, error) {
	url, err := getDatabaseURL(cmd)
	if err != nil {
		return nil, err
	}
	m, err := migratorFactory(url)
	if err != nil {
		return nil, oops.Code("MIGRATION_INIT_FAILED").With("operation", "open migrator").Wrap(err)
	}
	return m, nil
}

func closeMigrator(cmd *cobra.Command, m Migrator) {
	if err := m.Close(); err != nil {
		cmd.PrintErrf("Warning: failed to close migrator: %v\n", err)
	}
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		cmd.Println("Database is up to date")
		return nil
	}

	cmd.Printf("Applying %d migration(s)...\n", len(pending))
	if err := m.Up(); err != nil {
		return oops.With("operation", "run migrations").Wrap(err)
	}

	version, _, err := m.Version()
	if err != nil {
		return err
	}
	cmd.Printf("Migrations completed successfully (version %d)\n", version)
	return nil
}

func runMigrateDown(cmd *cobra.Command, confirm bool) error {
	if !confirm {
		return oops.Code("CONFIRMATION_REQUIRED").
			Errorf("migrate down drops every table; re-run with --yes to confirm")
	}

	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	cmd.Println("Reverting all migrations...")
	if err := m.Down(); err != nil {
		return oops.With("operation", "revert migrations").Wrap(err)
	}
	cmd.Println("All migrations reverted")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	status := ""
	if dirty {
		status = " (dirty: run 'migrate force' after fixing the schema)"
	}
	cmd.Printf("Current version: %d%s\n", version, status)

	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		cmd.Println("No pending migrations")
		return nil
	}
	cmd.Printf("Pending migrations (%d):\n", len(pending))
	for _, v := range pending {
		name, err := store.MigrationName(v)
		if err != nil || name == "" {
			name = fmt.Sprintf("%06d", v)
		}
		cmd.Printf("  %s\n", name)
	}
	return nil
}

func runMigrateForce(cmd *cobra.Command, args []string) error {
	version, err := parseForceVersion(args[0])
	if err != nil {
		return err
	}

	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	if err := m.Force(version); err != nil {
		return err
	}
	cmd.Printf("Forced migration version to %d\n", version)
	return nil
}

// parseForceVersion reads a leading integer; trailing text is ignored.
func parseForceVersion(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, oops.Code("INVALID_VERSION").Errorf("version is required")
	}
	var version int
	if _, err := fmt.Sscanf(s, "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrap(err)
	}
	return version, nil
}

// autoMigrate applies pending migrations on startup.
func autoMigrate(url string, factory func(string) (Migrator, error), logger *slog.Logger) error {
	m, err := factory(url)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	from, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if err := m.Up(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	to, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	logger.Info("database migrations applied", "from_version", from, "to_version", to)
	return nil
}
