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

const resetColumns = `id, identity, token_hash, expires_at, created_at`

// ResetTokenRepository implements auth.ResetTokenRepository using PostgreSQL.
type ResetTokenRepository struct {
	db Querier
}

// NewResetTokenRepository creates a new ResetTokenRepository.
func NewResetTokenRepository(db Querier) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

// Replace stores token as the identity's only reset token. The upsert on
// the identity index lets concurrent requests race safely: the last writer
// wins and no request fails on the unique constraint.
func (r *ResetTokenRepository) Replace(ctx context.Context, token *auth.ResetToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO password_resets (id, identity, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity) DO UPDATE SET
			id = EXCLUDED.id,
			token_hash = EXCLUDED.token_hash,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at
	`, token.ID.String(), token.Identity, token.TokenHash, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		return oops.Code("RESET_REPLACE_FAILED").
			With("reset_id", token.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a reset token by its hash.
func (r *ResetTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.ResetToken, error) {
	var token *auth.ResetToken
	err := retryRead(ctx, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, `SELECT `+resetColumns+` FROM password_resets WHERE token_hash = $1`, tokenHash)
		var err error
		token, err = scanResetToken(row)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("RESET_GET_FAILED").
			With("operation", "get reset token by hash").
			Wrap(err)
	}
	return token, nil
}

// Consume deletes the token and returns the deleted row. Concurrent callers
// serialize on the row lock; only the first sees it.
func (r *ResetTokenRepository) Consume(ctx context.Context, tokenHash string) (*auth.ResetToken, error) {
	row := r.db.QueryRow(ctx, `DELETE FROM password_resets WHERE token_hash = $1 RETURNING `+resetColumns, tokenHash)
	token, err := scanResetToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("RESET_CONSUME_FAILED").
			With("operation", "delete reset token returning").
			Wrap(err)
	}
	return token, nil
}

// DeleteByIdentity removes every token of identity.
func (r *ResetTokenRepository) DeleteByIdentity(ctx context.Context, identity string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM password_resets WHERE identity = $1`, identity); err != nil {
		return oops.Code("RESET_DELETE_BY_IDENTITY_FAILED").
			With("operation", "delete reset tokens by identity").
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes tokens whose expiry is at or before now.
func (r *ResetTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM password_resets WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, oops.Code("RESET_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired reset tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

func scanResetToken(row pgx.Row) (*auth.ResetToken, error) {
	var (
		idStr string
		t     auth.ResetToken
	)
	if err := row.Scan(&idStr, &t.Identity, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context-specific info
	}
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("RESET_INVALID_ID").With("id", idStr).Wrap(err)
	}
	t.ID = id
	return &t, nil
}

var _ auth.ResetTokenRepository = (*ResetTokenRepository)(nil)
