// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultResetTTL is how long a reset token stays valid.
const DefaultResetTTL = time.Hour

// ResetToken is a single-use password reset token. Only the token hash is stored.
type ResetToken struct {
	ID        ulid.ULID
	Identity  string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpiredAt returns true if the token is expired at t.
func (r *ResetToken) IsExpiredAt(t time.Time) bool {
	return !t.Before(r.ExpiresAt)
}

// ResetTokenRepository manages reset token persistence.
type ResetTokenRepository interface {
	// Replace deletes every token of the token's identity and stores token,
	// as one atomic step. Concurrent calls for one identity all succeed and
	// the last writer wins.
	Replace(ctx context.Context, token *ResetToken) error

	// GetByTokenHash returns ErrNotFound for unknown hashes.
	GetByTokenHash(ctx context.Context, tokenHash string) (*ResetToken, error)

	// Consume atomically finds and deletes the token with tokenHash. Of any
	// number of concurrent callers at most one receives the token; the rest
	// get ErrNotFound.
	Consume(ctx context.Context, tokenHash string) (*ResetToken, error)

	// DeleteByIdentity removes every token of an identity.
	DeleteByIdentity(ctx context.Context, identity string) error

	// DeleteExpired removes tokens that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Stores are the repositories bound to one transaction.
type Stores struct {
	Credentials CredentialRepository
	ResetTokens ResetTokenRepository
}

// Transactor runs fn inside a store transaction. The transaction commits when
// fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}

// ResetConfig configures a ResetTokenAuthority.
type ResetConfig struct {
	TTL        time.Duration
	TokenBytes int
}

// DefaultResetConfig returns a one hour lifetime with 32 byte tokens.
func DefaultResetConfig() ResetConfig {
	return ResetConfig{TTL: DefaultResetTTL, TokenBytes: DefaultTokenBytes}
}

// ResetTokenAuthority issues, looks up and consumes reset tokens.
type ResetTokenAuthority struct {
	tokens ResetTokenRepository
	cfg    ResetConfig
	now    func() time.Time
}

// NewResetTokenAuthority creates a reset token authority.
func NewResetTokenAuthority(tokens ResetTokenRepository, cfg ResetConfig) (*ResetTokenAuthority, error) {
	if tokens == nil {
		return nil, oops.Errorf("reset token repository is required")
	}
	if cfg.TTL <= 0 {
		return nil, configError("reset token ttl must be positive, got %s", cfg.TTL)
	}
	if cfg.TokenBytes < MinTokenBytes {
		return nil, configError("reset token length must be at least %d bytes, got %d", MinTokenBytes, cfg.TokenBytes)
	}
	return &ResetTokenAuthority{tokens: tokens, cfg: cfg, now: time.Now}, nil
}

// WithClock replaces the time source.
func (a *ResetTokenAuthority) WithClock(now func() time.Time) *ResetTokenAuthority {
	if now != nil {
		a.now = now
	}
	return a
}

// Issue creates a token for identity, superseding any earlier token.
func (a *ResetTokenAuthority) Issue(ctx context.Context, identity string) (string, *ResetToken, error) {
	token, err := GenerateToken(a.cfg.TokenBytes)
	if err != nil {
		return "", nil, oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}

	now := a.now().UTC()
	record := &ResetToken{
		ID:        ulid.Make(),
		Identity:  identity,
		TokenHash: HashToken(token),
		ExpiresAt: now.Add(a.cfg.TTL),
		CreatedAt: now,
	}
	if err := a.tokens.Replace(ctx, record); err != nil {
		return "", nil, storeError("RESET_TOKEN_CREATE_FAILED", "replace reset token", err)
	}
	return token, record, nil
}

// Lookup returns the live record for token without consuming it.
func (a *ResetTokenAuthority) Lookup(ctx context.Context, token string) (*ResetToken, error) {
	if !ValidTokenFormat(token, a.cfg.TokenBytes) {
		return nil, oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidResetToken)
	}
	record, err := a.tokens.GetByTokenHash(ctx, HashToken(token))
	if errors.Is(err, ErrNotFound) {
		return nil, oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidResetToken)
	}
	if err != nil {
		return nil, storeError("RESET_TOKEN_LOOKUP_FAILED", "get reset token", err)
	}
	if record.IsExpiredAt(a.now()) {
		return nil, oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidResetToken)
	}
	return record, nil
}

// Consume atomically removes token and returns its record if it was live.
func (a *ResetTokenAuthority) Consume(ctx context.Context, token string) (*ResetToken, error) {
	return a.consume(ctx, a.tokens, token)
}

// consume runs the atomic find-and-delete against tokens, which may be bound
// to a transaction.
func (a *ResetTokenAuthority) consume(ctx context.Context, tokens ResetTokenRepository, token string) (*ResetToken, error) {
	if !ValidTokenFormat(token, a.cfg.TokenBytes) {
		return nil, oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidResetToken)
	}
	record, err := tokens.Consume(ctx, HashToken(token))
	if errors.Is(err, ErrNotFound) {
		return nil, oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidResetToken)
	}
	if err != nil {
		return nil, storeError("RESET_TOKEN_CONSUME_FAILED", "consume reset token", err)
	}
	if record.IsExpiredAt(a.now()) {
		return nil, oops.Code("RESET_TOKEN_INVALID").With("expired", true).Wrap(ErrInvalidResetToken)
	}
	return record, nil
}
