// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeeper/internal/auth"
)

func seedCredential(t *testing.T, db *DB, identity, hash string) {
	t.Helper()
	c, err := auth.NewCredential(identity, &hash)
	require.NoError(t, err)
	require.NoError(t, db.Credentials().Create(context.Background(), c))
}

func resetToken(identity, hash string, expiresAt time.Time) *auth.ResetToken {
	return &auth.ResetToken{
		ID:        ulid.Make(),
		Identity:  identity,
		TokenHash: hash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
}

func TestCredentialStore(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	seedCredential(t, db, "ada@example.com", "hash-1")

	t.Run("get returns a copy", func(t *testing.T) {
		c, err := db.Credentials().GetByIdentity(ctx, "ada@example.com")
		require.NoError(t, err)
		*c.PasswordHash = "tampered"

		again, err := db.Credentials().GetByIdentity(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, "hash-1", *again.PasswordHash)
	})

	t.Run("unknown identity", func(t *testing.T) {
		_, err := db.Credentials().GetByIdentity(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)

		err = db.Credentials().UpdatePassword(ctx, "nobody@example.com", "x")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("duplicate identity", func(t *testing.T) {
		c, err := auth.NewCredential("ada@example.com", nil)
		require.NoError(t, err)
		assert.ErrorIs(t, db.Credentials().Create(ctx, c), auth.ErrAlreadyExists)
	})

	t.Run("update password", func(t *testing.T) {
		require.NoError(t, db.Credentials().UpdatePassword(ctx, "ada@example.com", "hash-2"))
		c, err := db.Credentials().GetByIdentity(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, "hash-2", *c.PasswordHash)
	})
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	sessions := db.Sessions()
	now := time.Now()

	live := &auth.Session{ID: ulid.Make(), Identity: "ada@example.com", TokenHash: "live", ExpiresAt: now.Add(time.Hour)}
	old := &auth.Session{ID: ulid.Make(), Identity: "ada@example.com", TokenHash: "old", ExpiresAt: now.Add(-time.Second)}
	other := &auth.Session{ID: ulid.Make(), Identity: "bob@example.com", TokenHash: "other", ExpiresAt: now.Add(time.Hour)}
	for _, s := range []*auth.Session{live, old, other} {
		require.NoError(t, sessions.Create(ctx, s))
	}

	got, err := sessions.GetByTokenHash(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, live.ID, got.ID)

	n, err := sessions.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = sessions.DeleteByIdentity(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, sessions.DeleteByTokenHash(ctx, "missing"))
	require.NoError(t, sessions.DeleteByTokenHash(ctx, "other"))
	assert.Zero(t, sessions.Len())

	_, err = sessions.GetByTokenHash(ctx, "other")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestResetTokenStore_ReplaceSupersedes(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	tokens := db.ResetTokens()
	exp := time.Now().Add(time.Hour)

	require.NoError(t, tokens.Replace(ctx, resetToken("ada@example.com", "first", exp)))
	require.NoError(t, tokens.Replace(ctx, resetToken("bob@example.com", "bob", exp)))
	require.NoError(t, tokens.Replace(ctx, resetToken("ada@example.com", "second", exp)))

	held := tokens.ForIdentity("ada@example.com")
	require.Len(t, held, 1)
	assert.Equal(t, "second", held[0].TokenHash)

	_, err := tokens.GetByTokenHash(ctx, "first")
	assert.ErrorIs(t, err, auth.ErrNotFound)
	assert.Equal(t, 2, tokens.Len())
}

func TestResetTokenStore_ConsumeOnce(t *testing.T) {
	ctx := context.Background()
	tokens := NewDB().ResetTokens()
	require.NoError(t, tokens.Replace(ctx, resetToken("ada@example.com", "h", time.Now().Add(time.Hour))))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tokens.Consume(ctx, "h"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Zero(t, tokens.Len())
}

func TestResetTokenStore_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	tokens := NewDB().ResetTokens()
	now := time.Now()
	require.NoError(t, tokens.Replace(ctx, resetToken("a@example.com", "a", now.Add(-time.Minute))))
	require.NoError(t, tokens.Replace(ctx, resetToken("b@example.com", "b", now.Add(time.Minute))))

	n, err := tokens.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, tokens.Len())

	require.NoError(t, tokens.DeleteByIdentity(ctx, "b@example.com"))
	assert.Zero(t, tokens.Len())
}

func TestDB_WithinTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commit keeps changes", func(t *testing.T) {
		db := NewDB()
		seedCredential(t, db, "ada@example.com", "old")
		require.NoError(t, db.ResetTokens().Replace(ctx, resetToken("ada@example.com", "h", time.Now().Add(time.Hour))))

		err := db.WithinTransaction(ctx, func(ctx context.Context, s auth.Stores) error {
			tok, err := s.ResetTokens.Consume(ctx, "h")
			if err != nil {
				return err
			}
			return s.Credentials.UpdatePassword(ctx, tok.Identity, "new")
		})
		require.NoError(t, err)

		c, _ := db.Credentials().GetByIdentity(ctx, "ada@example.com")
		assert.Equal(t, "new", *c.PasswordHash)
		assert.Zero(t, db.ResetTokens().Len())
	})

	t.Run("error rolls back every change", func(t *testing.T) {
		db := NewDB()
		seedCredential(t, db, "ada@example.com", "old")
		require.NoError(t, db.ResetTokens().Replace(ctx, resetToken("ada@example.com", "h", time.Now().Add(time.Hour))))
		boom := errors.New("boom")

		err := db.WithinTransaction(ctx, func(ctx context.Context, s auth.Stores) error {
			if _, err := s.ResetTokens.Consume(ctx, "h"); err != nil {
				return err
			}
			if err := s.Credentials.UpdatePassword(ctx, "ada@example.com", "new"); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		c, _ := db.Credentials().GetByIdentity(ctx, "ada@example.com")
		assert.Equal(t, "old", *c.PasswordHash)
		_, err = db.ResetTokens().GetByTokenHash(ctx, "h")
		assert.NoError(t, err, "consumed token is restored")
	})

	t.Run("panic rolls back and propagates", func(t *testing.T) {
		db := NewDB()
		require.NoError(t, db.ResetTokens().Replace(ctx, resetToken("ada@example.com", "old", time.Now().Add(time.Hour))))

		assert.Panics(t, func() {
			_ = db.WithinTransaction(ctx, func(ctx context.Context, s auth.Stores) error {
				_ = s.ResetTokens.Replace(ctx, resetToken("ada@example.com", "new", time.Now().Add(time.Hour)))
				panic("boom")
			})
		})

		held := db.ResetTokens().ForIdentity("ada@example.com")
		require.Len(t, held, 1)
		assert.Equal(t, "old", held[0].TokenHash)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := NewDB().WithinTransaction(cctx, func(context.Context, auth.Stores) error {
			t.Fatal("fn must not run")
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
