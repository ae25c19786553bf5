// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/gatekeeper/internal/config"
	"github.com/holomush/gatekeeper/internal/logging"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the gatekeeper CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gatekeeper",
		Short: "Gatekeeper - credential and token authority",
		Long: `Gatekeeper authenticates users with passwords under a rate limit,
issues opaque server-side sessions, and runs a single-use password reset flow.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/gatekeeper/config.yaml)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before reading the environment")
	cmd.PersistentFlags().String("log-format", "", "log format (json or text)")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSweepCmd())
	cmd.AddCommand(NewWorkerCmd())
	cmd.AddCommand(NewAccountCmd())
	cmd.AddCommand(NewHashPasswordCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig reads the configuration for cmd. Commands that only touch part
// of the configuration pass validate=false and check what they need.
func loadConfig(cmd *cobra.Command, validate bool) (*config.Config, error) {
	opts := config.Options{Path: configFile, EnvFile: envFile, Flags: cmd.Flags()}
	if validate {
		return config.Load(opts) //nolint:wrapcheck // config errors carry their own codes
	}
	return config.LoadUnvalidated(opts) //nolint:wrapcheck // config errors carry their own codes
}

// setupLogger installs the process-wide logger described by cfg.
func setupLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.SetDefault(logging.Options{
		Service: "gatekeeper",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	})
	if err != nil {
		return nil, oops.Code("LOGGING_SETUP_FAILED").Wrap(err)
	}
	return logger, nil
}
