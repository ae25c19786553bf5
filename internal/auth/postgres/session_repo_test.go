// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

var sessionCols = []string{"id", "identity", "token_hash", "user_agent", "ip_address", "created_at", "expires_at"}

func TestSessionRepository_Create(t *testing.T) {
	now := time.Now().UTC()
	s := &auth.Session{
		ID:        ulid.Make(),
		Identity:  "ada@example.com",
		TokenHash: "abc",
		UserAgent: "curl/8",
		IPAddress: "198.51.100.7",
		CreatedAt: now,
		ExpiresAt: now.Add(auth.DefaultSessionTTL),
	}

	mock := newMock(t)
	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs(s.ID.String(), s.Identity, s.TokenHash, s.UserAgent, s.IPAddress, s.CreatedAt, s.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewSessionRepository(mock).Create(context.Background(), s))
}

func TestSessionRepository_GetByTokenHash(t *testing.T) {
	id := ulid.Make()
	now := time.Now().UTC()

	t.Run("found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT id, identity, token_hash`).
			WithArgs("abc").
			WillReturnRows(pgxmock.NewRows(sessionCols).
				AddRow(id.String(), "ada@example.com", "abc", "curl/8", "198.51.100.7", now, now.Add(time.Hour)))

		s, err := NewSessionRepository(mock).GetByTokenHash(context.Background(), "abc")
		require.NoError(t, err)
		assert.Equal(t, id, s.ID)
		assert.Equal(t, "ada@example.com", s.Identity)
		assert.Equal(t, now.Add(time.Hour), s.ExpiresAt)
	})

	t.Run("not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT id, identity, token_hash`).
			WithArgs("abc").
			WillReturnRows(pgxmock.NewRows(sessionCols))

		_, err := NewSessionRepository(mock).GetByTokenHash(context.Background(), "abc")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestSessionRepository_Deletes(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("by token hash", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM sessions WHERE token_hash`).
			WithArgs("abc").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		assert.NoError(t, NewSessionRepository(mock).DeleteByTokenHash(ctx, "abc"))
	})

	t.Run("by identity", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM sessions WHERE identity`).
			WithArgs("ada@example.com").
			WillReturnResult(pgxmock.NewResult("DELETE", 3))

		n, err := NewSessionRepository(mock).DeleteByIdentity(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("expired", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM sessions WHERE expires_at <=`).
			WithArgs(now).
			WillReturnResult(pgxmock.NewResult("DELETE", 7))

		n, err := NewSessionRepository(mock).DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
	})

	t.Run("expired error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM sessions WHERE expires_at <=`).
			WithArgs(now).
			WillReturnError(errors.New("disk full"))

		_, err := NewSessionRepository(mock).DeleteExpired(ctx, now)
		errutil.AssertErrorCode(t, err, "SESSION_DELETE_EXPIRED_FAILED")
	})
}
