// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/pkg/errutil"
)

// DefaultSessionTTL is the absolute session lifetime.
const DefaultSessionTTL = 7 * 24 * time.Hour

// Session is a server-side login session. The client holds the handle; only
// its hash is stored.
type Session struct {
	ID        ulid.ULID
	Identity  string
	TokenHash string
	UserAgent string
	IPAddress string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpiredAt returns true if the session is expired at t.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// SessionMetadata describes the client a session is issued to.
type SessionMetadata struct {
	UserAgent string
	IPAddress string
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByTokenHash returns ErrNotFound for unknown hashes.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// DeleteByTokenHash removes a session. Deleting an unknown hash is not an error.
	DeleteByTokenHash(ctx context.Context, tokenHash string) error

	// DeleteByIdentity removes every session of an identity.
	DeleteByIdentity(ctx context.Context, identity string) (int64, error)

	// DeleteExpired removes sessions that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionConfig configures a SessionAuthority.
type SessionConfig struct {
	TTL        time.Duration
	TokenBytes int
}

// DefaultSessionConfig returns a 7 day absolute lifetime with 32 byte handles.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{TTL: DefaultSessionTTL, TokenBytes: DefaultTokenBytes}
}

// SessionAuthority issues and validates opaque session handles. Lifetimes are
// absolute; validation never extends a session.
type SessionAuthority struct {
	sessions SessionRepository
	cfg      SessionConfig
	now      func() time.Time
	logger   *slog.Logger
}

// NewSessionAuthority creates a session authority.
func NewSessionAuthority(sessions SessionRepository, cfg SessionConfig) (*SessionAuthority, error) {
	if sessions == nil {
		return nil, oops.Errorf("session repository is required")
	}
	if cfg.TTL <= 0 {
		return nil, configError("session ttl must be positive, got %s", cfg.TTL)
	}
	if cfg.TokenBytes < MinTokenBytes {
		return nil, configError("session token length must be at least %d bytes, got %d", MinTokenBytes, cfg.TokenBytes)
	}
	return &SessionAuthority{
		sessions: sessions,
		cfg:      cfg,
		now:      time.Now,
		logger:   slog.New(slog.DiscardHandler),
	}, nil
}

// WithLogger sets the logger.
func (a *SessionAuthority) WithLogger(logger *slog.Logger) *SessionAuthority {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// WithClock replaces the time source.
func (a *SessionAuthority) WithClock(now func() time.Time) *SessionAuthority {
	if now != nil {
		a.now = now
	}
	return a
}

// TTL returns the absolute session lifetime.
func (a *SessionAuthority) TTL() time.Duration {
	return a.cfg.TTL
}

// Create issues a new session for identity and returns the handle to give to
// the client.
func (a *SessionAuthority) Create(ctx context.Context, identity string, meta SessionMetadata) (string, *Session, error) {
	handle, err := GenerateToken(a.cfg.TokenBytes)
	if err != nil {
		return "", nil, oops.Code("SESSION_CREATE_FAILED").Wrap(err)
	}

	now := a.now().UTC()
	session := &Session{
		ID:        ulid.Make(),
		Identity:  identity,
		TokenHash: HashToken(handle),
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
		CreatedAt: now,
		ExpiresAt: now.Add(a.cfg.TTL),
	}
	if err := a.sessions.Create(ctx, session); err != nil {
		return "", nil, storeError("SESSION_CREATE_FAILED", "persist session", err)
	}
	return handle, session, nil
}

// Validate resolves a handle to its session. Unknown, malformed and expired
// handles all return ErrInvalidSession.
func (a *SessionAuthority) Validate(ctx context.Context, handle string) (*Session, error) {
	if !ValidTokenFormat(handle, a.cfg.TokenBytes) {
		return nil, oops.Code("SESSION_INVALID").Wrap(ErrInvalidSession)
	}

	tokenHash := HashToken(handle)
	session, err := a.sessions.GetByTokenHash(ctx, tokenHash)
	if errors.Is(err, ErrNotFound) {
		return nil, oops.Code("SESSION_INVALID").Wrap(ErrInvalidSession)
	}
	if err != nil {
		return nil, storeError("SESSION_LOOKUP_FAILED", "get session by token hash", err)
	}

	if session.IsExpiredAt(a.now()) {
		if delErr := a.sessions.DeleteByTokenHash(ctx, tokenHash); delErr != nil {
			errutil.LogErrorContext(ctx, a.logger, "failed to delete expired session", delErr)
		}
		return nil, oops.Code("SESSION_INVALID").Wrap(ErrInvalidSession)
	}
	return session, nil
}

// Destroy removes the session behind handle. Unknown handles are ignored.
func (a *SessionAuthority) Destroy(ctx context.Context, handle string) error {
	if !ValidTokenFormat(handle, a.cfg.TokenBytes) {
		return nil
	}
	if err := a.sessions.DeleteByTokenHash(ctx, HashToken(handle)); err != nil {
		return storeError("SESSION_DELETE_FAILED", "delete session", err)
	}
	return nil
}

// RevokeAll removes every session of identity.
func (a *SessionAuthority) RevokeAll(ctx context.Context, identity string) (int64, error) {
	n, err := a.sessions.DeleteByIdentity(ctx, identity)
	if err != nil {
		return 0, storeError("SESSION_REVOKE_FAILED", "delete sessions by identity", err)
	}
	return n, nil
}
