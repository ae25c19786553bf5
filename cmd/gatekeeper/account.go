// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/config"
)

// accountConfig holds flags shared by the account subcommands.
type accountConfig struct {
	noPassword   bool
	keepSessions bool
}

// NewAccountCmd creates the account subcommand and its children.
func NewAccountCmd() *cobra.Command {
	acfg := &accountConfig{}

	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage credentials",
		Long: `Create credentials and set passwords directly in the credential store.
Passwords are read from the first line of standard input.`,
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL (default $DATABASE_URL)")

	create := &cobra.Command{
		Use:   "create IDENTITY",
		Short: "Create a credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadStoreConfig(cmd)
			if err != nil {
				return err
			}
			return runAccountCreate(cmd.Context(), cmd, cfg, nil, args[0], acfg)
		},
	}
	create.Flags().BoolVar(&acfg.noPassword, "no-password", false, "create a credential without a password (external sign-in only)")
	cmd.AddCommand(create)

	setPassword := &cobra.Command{
		Use:   "set-password IDENTITY",
		Short: "Replace a credential's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadStoreConfig(cmd)
			if err != nil {
				return err
			}
			return runAccountSetPassword(cmd.Context(), cmd, cfg, nil, args[0], acfg)
		},
	}
	setPassword.Flags().BoolVar(&acfg.keepSessions, "keep-sessions", false, "do not revoke the account's sessions")
	cmd.AddCommand(setPassword)

	return cmd
}

// loadStoreConfig loads the configuration for commands that only touch the
// stores, so the HTTP and notification settings need not be complete.
func loadStoreConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return nil, err
	}
	if _, err := setupLogger(cfg); err != nil {
		return nil, err
	}
	if cfg.Database.Driver != config.BackendMemory && cfg.Database.URL == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("database.url or DATABASE_URL is required")
	}
	return cfg, nil
}

func runAccountCreate(ctx context.Context, cmd *cobra.Command, cfg *config.Config, deps *StoreDeps, identity string, acfg *accountConfig) error {
	deps = storeDefaults(deps)

	var hash *string
	if !acfg.noPassword {
		encoded, err := readAndHashPassword(cmd.InOrStdin(), cfg)
		if err != nil {
			return err
		}
		hash = &encoded
	}

	cred, err := auth.NewCredential(identity, hash)
	if err != nil {
		return err //nolint:wrapcheck // validation errors carry their own codes
	}

	b, err := deps.BackendFactory(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.Credentials.Create(ctx, cred); err != nil {
		if errors.Is(err, auth.ErrAlreadyExists) {
			return oops.Code("ACCOUNT_EXISTS").With("identity", cred.Identity).Errorf("account already exists")
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").With("identity", cred.Identity).Wrap(err)
	}

	cmd.Printf("Created account %s\n", cred.Identity)
	return nil
}

func runAccountSetPassword(ctx context.Context, cmd *cobra.Command, cfg *config.Config, deps *StoreDeps, identity string, acfg *accountConfig) error {
	deps = storeDefaults(deps)

	encoded, err := readAndHashPassword(cmd.InOrStdin(), cfg)
	if err != nil {
		return err
	}
	identity = auth.NormalizeIdentity(identity)

	b, err := deps.BackendFactory(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.Credentials.UpdatePassword(ctx, identity, encoded); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return oops.Code("ACCOUNT_NOT_FOUND").With("identity", identity).Errorf("account not found")
		}
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("identity", identity).Wrap(err)
	}
	cmd.Printf("Password updated for %s\n", identity)

	if acfg.keepSessions {
		return nil
	}
	sessions, err := auth.NewSessionAuthority(b.Sessions, auth.SessionConfig{
		TTL:        cfg.Session.TTL,
		TokenBytes: cfg.Session.TokenBytes,
	})
	if err != nil {
		return err //nolint:wrapcheck // configuration errors carry their own codes
	}
	revoked, err := sessions.RevokeAll(ctx, identity)
	if err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").With("identity", identity).Wrap(err)
	}
	cmd.Printf("Revoked %d session(s)\n", revoked)
	return nil
}

func storeDefaults(deps *StoreDeps) *StoreDeps {
	if deps == nil {
		deps = &StoreDeps{}
	}
	if deps.BackendFactory == nil {
		deps.BackendFactory = openBackend
	}
	return deps
}

// readAndHashPassword reads one line from r, checks it against the reset
// password policy and hashes it with the configured parameters.
func readAndHashPassword(r io.Reader, cfg *config.Config) (string, error) {
	password, err := readPassword(r)
	if err != nil {
		return "", err
	}
	policy := auth.PasswordPolicy{MinLength: cfg.Reset.MinPasswordLength}
	if policy.MinLength < 1 {
		policy = auth.DefaultPasswordPolicy()
	}
	if err := policy.Validate(password); err != nil {
		return "", err //nolint:wrapcheck // validation errors carry their own codes
	}

	hasher, err := auth.NewArgon2idHasher(cfg.HashParams())
	if err != nil {
		return "", err //nolint:wrapcheck // configuration errors carry their own codes
	}
	encoded, err := hasher.Hash(password)
	if err != nil {
		return "", oops.Code("HASH_FAILED").Wrap(err)
	}
	return encoded, nil
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", oops.Code("PASSWORD_REQUIRED").Errorf("password must be given on standard input")
	}
	return password, nil
}
