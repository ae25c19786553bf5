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

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	db Querier
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db Querier) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, s *auth.Session) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sessions (id, identity, token_hash, user_agent, ip_address, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID.String(), s.Identity, s.TokenHash, s.UserAgent, s.IPAddress, s.CreatedAt, s.ExpiresAt)
	if isUniqueViolation(err) {
		return oops.Code("SESSION_EXISTS").Wrap(auth.ErrAlreadyExists)
	}
	if err != nil {
		return oops.Code("SESSION_INSERT_FAILED").
			With("operation", "insert session").
			With("session_id", s.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by the hash of its handle.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	var session *auth.Session
	err := retryRead(ctx, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, `
			SELECT id, identity, token_hash, user_agent, ip_address, created_at, expires_at
			FROM sessions
			WHERE token_hash = $1
		`, tokenHash)
		var err error
		session, err = scanSession(row)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	return session, nil
}

// DeleteByTokenHash removes a session. Missing sessions are not an error.
func (r *SessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return nil
}

// DeleteByIdentity removes every session of identity.
func (r *SessionRepository) DeleteByIdentity(ctx context.Context, identity string) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE identity = $1`, identity)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_BY_IDENTITY_FAILED").
			With("operation", "delete sessions by identity").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteExpired removes sessions whose expiry is at or before now.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*auth.Session, error) {
	var (
		idStr string
		s     auth.Session
	)
	if err := row.Scan(&idStr, &s.Identity, &s.TokenHash, &s.UserAgent, &s.IPAddress, &s.CreatedAt, &s.ExpiresAt); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context-specific info
	}
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").With("id", idStr).Wrap(err)
	}
	s.ID = id
	return &s, nil
}

var _ auth.SessionRepository = (*SessionRepository)(nil)
