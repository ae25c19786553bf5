// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/holomush/gatekeeper/internal/config"
	"github.com/holomush/gatekeeper/internal/xdg"
)

// NewConfigCmd creates the config subcommand and its children.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return err //nolint:wrapcheck // carries its own code
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data)) //nolint:errcheck // best-effort terminal output
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		Long: `Load the configuration from the config file, the environment and any
flags, and report the first problem found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := loadConfig(cmd, true); err != nil {
				return err
			}
			source := configFile
			if source == "" {
				source = xdg.ConfigFile()
			}
			cmd.Printf("Configuration is valid (%s)\n", source)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the default config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), xdg.ConfigFile()) //nolint:errcheck // best-effort terminal output
		},
	})

	return cmd
}
