// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/config"
)

// NewSweepCmd creates the sweep subcommand.
func NewSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired sessions and reset tokens once",
		Long: `Delete every expired session and password reset token, then exit.
The serve command sweeps on an interval; this runs a single pass, for
example from cron when sweeping is disabled in the server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadStoreConfig(cmd)
			if err != nil {
				return err
			}
			return runSweep(cmd.Context(), cmd, cfg, nil)
		},
	}
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL (default $DATABASE_URL)")
	cmd.Flags().String("redis-url", "", "Redis connection URL (default $REDIS_URL)")
	return cmd
}

func runSweep(ctx context.Context, cmd *cobra.Command, cfg *config.Config, deps *StoreDeps) error {
	deps = storeDefaults(deps)

	b, err := deps.BackendFactory(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer b.Close()

	interval := cfg.Sweep.Interval
	if interval <= 0 {
		interval = auth.DefaultSweepInterval
	}
	sweeper, err := auth.NewSweeper(b.Sessions, b.ResetTokens, interval)
	if err != nil {
		return err //nolint:wrapcheck // configuration errors carry their own codes
	}

	result, err := sweeper.SweepOnce(ctx)
	if err != nil {
		return oops.Code("SWEEP_FAILED").Wrap(err)
	}
	cmd.Printf("Deleted %d expired session(s) and %d expired reset token(s)\n", result.Sessions, result.ResetTokens)
	return nil
}
