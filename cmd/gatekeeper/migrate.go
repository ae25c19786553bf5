// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/gatekeeper/internal/config"
	"github.com/holomush/gatekeeper/internal/store"
)

// NewMigrateCmd creates the migrate subcommand and its children.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Apply, roll back and inspect the PostgreSQL schema migrations.
Without a subcommand, all pending migrations are applied.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateUp(cmd, nil)
		},
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL (default $DATABASE_URL)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateUp(cmd, nil)
		},
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (one step by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, _ := cmd.Flags().GetBool("all")    //nolint:errcheck // flag is registered below
			steps, _ := cmd.Flags().GetInt("steps") //nolint:errcheck // flag is registered below
			return runMigrateDown(cmd, nil, steps, all)
		},
	}
	down.Flags().Int("steps", 1, "number of migrations to roll back")
	down.Flags().Bool("all", false, "roll back every migration")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateStatus(cmd, nil)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateVersion(cmd, nil)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Set the recorded schema version and clear the dirty flag. Use this
after repairing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return runMigrateForce(cmd, nil, v)
		},
	})

	return cmd
}

// openMigrator loads the database URL and opens a migrator.
func openMigrator(cmd *cobra.Command, deps *MigrateDeps) (Migrator, error) {
	if deps == nil {
		deps = &MigrateDeps{}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}

	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return nil, err
	}
	if _, err := setupLogger(cfg); err != nil {
		return nil, err
	}
	if cfg.Database.Driver == config.BackendMemory {
		return nil, oops.Code("CONFIG_INVALID").Errorf("migrations need the postgres driver, database.driver is %q", cfg.Database.Driver)
	}
	if cfg.Database.URL == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("database.url or DATABASE_URL is required")
	}

	m, err := deps.MigratorFactory(cfg.Database.URL)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "open migrator").Wrap(err)
	}
	return m, nil
}

func closeMigrator(m Migrator) {
	if err := m.Close(); err != nil {
		slog.Debug("error closing migrator", "error", err)
	}
}

func runMigrateUp(cmd *cobra.Command, deps *MigrateDeps) error {
	m, err := openMigrator(cmd, deps)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

func runMigrateDown(cmd *cobra.Command, deps *MigrateDeps, steps int, all bool) error {
	if !all && steps < 1 {
		return oops.Code("INVALID_STEPS").Errorf("steps must be at least 1, got %d", steps)
	}

	m, err := openMigrator(cmd, deps)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if all {
		cmd.Println("Rolling back all migrations...")
		if err := m.Down(); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "roll back migrations").Wrap(err)
		}
	} else {
		cmd.Printf("Rolling back %d migration(s)...\n", steps)
		if err := m.Steps(-steps); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "roll back migrations").With("steps", steps).Wrap(err)
		}
	}
	cmd.Println("Rollback completed successfully")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, deps *MigrateDeps) error {
	m, err := openMigrator(cmd, deps)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	version, dirty, err := m.Version()
	if err != nil {
		return oops.Code("MIGRATION_STATUS_FAILED").With("operation", "read version").Wrap(err)
	}
	applied, err := m.AppliedMigrations()
	if err != nil {
		return oops.Code("MIGRATION_STATUS_FAILED").With("operation", "list applied").Wrap(err)
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return oops.Code("MIGRATION_STATUS_FAILED").With("operation", "list pending").Wrap(err)
	}

	cmd.Printf("Current version: %s\n", formatVersion(version, dirty))
	cmd.Println("Applied:")
	printMigrations(cmd, applied)
	cmd.Println("Pending:")
	printMigrations(cmd, pending)
	return nil
}

func runMigrateVersion(cmd *cobra.Command, deps *MigrateDeps) error {
	m, err := openMigrator(cmd, deps)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	version, dirty, err := m.Version()
	if err != nil {
		return oops.Code("MIGRATION_STATUS_FAILED").With("operation", "read version").Wrap(err)
	}
	cmd.Println(formatVersion(version, dirty))
	return nil
}

func runMigrateForce(cmd *cobra.Command, deps *MigrateDeps, version int) error {
	m, err := openMigrator(cmd, deps)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if err := m.Force(version); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "force version").With("version", version).Wrap(err)
	}
	cmd.Printf("Schema version forced to %d\n", version)
	return nil
}

// parseForceVersion parses the force argument.
func parseForceVersion(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer")
	}
	if v < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be non-negative")
	}
	return v, nil
}

func formatVersion(version uint, dirty bool) string {
	if version == 0 {
		return "none"
	}
	s := strconv.FormatUint(uint64(version), 10)
	if dirty {
		s += " (dirty)"
	}
	return s
}

func printMigrations(cmd *cobra.Command, versions []uint) {
	if len(versions) == 0 {
		cmd.Println("  (none)")
		return
	}
	for _, v := range versions {
		name, err := store.MigrationName(v)
		if err != nil || name == "" {
			name = fmt.Sprintf("%06d_unknown", v)
		}
		cmd.Printf("  %s\n", name)
	}
}
