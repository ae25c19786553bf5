// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
)

// CredentialRepository implements auth.CredentialRepository using PostgreSQL.
type CredentialRepository struct {
	db Querier
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(db Querier) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// GetByIdentity retrieves a credential by its normalized identity.
func (r *CredentialRepository) GetByIdentity(ctx context.Context, identity string) (*auth.Credential, error) {
	var cred *auth.Credential
	err := retryRead(ctx, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, `
			SELECT id, identity, password_hash, created_at, updated_at
			FROM credentials
			WHERE identity = $1
		`, identity)
		var err error
		cred, err = scanCredential(row)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("CREDENTIAL_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("CREDENTIAL_GET_FAILED").
			With("operation", "get credential by identity").
			Wrap(err)
	}
	return cred, nil
}

// UpdatePassword replaces the password hash of identity.
func (r *CredentialRepository) UpdatePassword(ctx context.Context, identity, passwordHash string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE credentials SET password_hash = $2, updated_at = $3
		WHERE identity = $1
	`, identity, passwordHash, time.Now().UTC())
	if err != nil {
		return oops.Code("CREDENTIAL_UPDATE_FAILED").
			With("operation", "update password hash").
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("CREDENTIAL_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// Create stores a new credential.
func (r *CredentialRepository) Create(ctx context.Context, c *auth.Credential) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO credentials (id, identity, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID.String(), c.Identity, c.PasswordHash, c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return oops.Code("CREDENTIAL_EXISTS").Wrap(auth.ErrAlreadyExists)
	}
	if err != nil {
		return oops.Code("CREDENTIAL_CREATE_FAILED").
			With("operation", "insert credential").
			With("credential_id", c.ID.String()).
			Wrap(err)
	}
	return nil
}

// scanCredential scans one row. pgx.ErrNoRows is returned unwrapped.
func scanCredential(row pgx.Row) (*auth.Credential, error) {
	var (
		idStr string
		c     auth.Credential
	)
	if err := row.Scan(&idStr, &c.Identity, &c.PasswordHash, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context-specific info
	}
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("CREDENTIAL_INVALID_ID").With("id", idStr).Wrap(err)
	}
	c.ID = id
	return &c, nil
}

var _ auth.CredentialRepository = (*CredentialRepository)(nil)
