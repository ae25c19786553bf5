// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
)

// DB holds credentials, sessions and reset tokens behind one mutex.
type DB struct {
	mu          sync.Mutex
	credentials map[string]*auth.Credential // by identity
	sessions    map[string]*auth.Session    // by token hash
	resets      map[string]*auth.ResetToken // by token hash
}

// NewDB creates an empty database.
func NewDB() *DB {
	return &DB{
		credentials: make(map[string]*auth.Credential),
		sessions:    make(map[string]*auth.Session),
		resets:      make(map[string]*auth.ResetToken),
	}
}

// Credentials returns the credential repository.
func (db *DB) Credentials() *CredentialStore { return &CredentialStore{db: db} }

// Sessions returns the session repository.
func (db *DB) Sessions() *SessionStore { return &SessionStore{db: db} }

// ResetTokens returns the reset token repository.
func (db *DB) ResetTokens() *ResetTokenStore { return &ResetTokenStore{db: db} }

// WithinTransaction runs fn with exclusive access to the database. Changes
// made through the provided stores are undone when fn fails or panics.
func (db *DB) WithinTransaction(ctx context.Context, fn func(ctx context.Context, s auth.Stores) error) (err error) {
	if err := ctx.Err(); err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	tx := &txLog{}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
		if err != nil {
			tx.rollback()
		}
	}()

	return fn(ctx, auth.Stores{
		Credentials: &CredentialStore{db: db, tx: tx},
		ResetTokens: &ResetTokenStore{db: db, tx: tx},
	})
}

// txLog records how to revert each change made inside a transaction.
type txLog struct {
	undo []func()
}

func (t *txLog) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// lock acquires the database mutex unless the caller already holds it
// through a transaction. It returns the matching unlock.
func lock(db *DB, tx *txLog) func() {
	if tx != nil {
		return func() {}
	}
	db.mu.Lock()
	return db.mu.Unlock
}

// onUndo registers fn to run on rollback; it is a no-op outside transactions.
func onUndo(tx *txLog, fn func()) {
	if tx != nil {
		tx.undo = append(tx.undo, fn)
	}
}

// CredentialStore implements auth.CredentialRepository.
type CredentialStore struct {
	db *DB
	tx *txLog
}

// GetByIdentity returns a copy of the credential for identity.
func (s *CredentialStore) GetByIdentity(ctx context.Context, identity string) (*auth.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer lock(s.db, s.tx)()

	c, ok := s.db.credentials[identity]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneCredential(c), nil
}

// UpdatePassword replaces the password hash of identity.
func (s *CredentialStore) UpdatePassword(ctx context.Context, identity, passwordHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer lock(s.db, s.tx)()

	c, ok := s.db.credentials[identity]
	if !ok {
		return auth.ErrNotFound
	}
	prev := cloneCredential(c)
	updated := cloneCredential(c)
	updated.PasswordHash = &passwordHash
	updated.UpdatedAt = time.Now().UTC()
	s.db.credentials[identity] = updated
	onUndo(s.tx, func() { s.db.credentials[identity] = prev })
	return nil
}

// Create stores a new credential.
func (s *CredentialStore) Create(ctx context.Context, c *auth.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer lock(s.db, s.tx)()

	if _, ok := s.db.credentials[c.Identity]; ok {
		return auth.ErrAlreadyExists
	}
	s.db.credentials[c.Identity] = cloneCredential(c)
	onUndo(s.tx, func() { delete(s.db.credentials, c.Identity) })
	return nil
}

// SessionStore implements auth.SessionRepository.
type SessionStore struct {
	db *DB
}

// Create stores a new session.
func (s *SessionStore) Create(ctx context.Context, session *auth.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.sessions[session.TokenHash]; ok {
		return auth.ErrAlreadyExists
	}
	cp := *session
	s.db.sessions[session.TokenHash] = &cp
	return nil
}

// GetByTokenHash returns a copy of the session with tokenHash.
func (s *SessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	session, ok := s.db.sessions[tokenHash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *session
	return &cp, nil
}

// DeleteByTokenHash removes the session with tokenHash if present.
func (s *SessionStore) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	delete(s.db.sessions, tokenHash)
	return nil
}

// DeleteByIdentity removes every session of identity.
func (s *SessionStore) DeleteByIdentity(ctx context.Context, identity string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var n int64
	for hash, session := range s.db.sessions {
		if session.Identity == identity {
			delete(s.db.sessions, hash)
			n++
		}
	}
	return n, nil
}

// DeleteExpired removes sessions expired at now.
func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var n int64
	for hash, session := range s.db.sessions {
		if session.IsExpiredAt(now) {
			delete(s.db.sessions, hash)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions, expired ones included.
func (s *SessionStore) Len() int {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return len(s.db.sessions)
}

// ResetTokenStore implements auth.ResetTokenRepository.
type ResetTokenStore struct {
	db *DB
	tx *txLog
}

// Replace deletes every token of token.Identity and stores token.
func (s *ResetTokenStore) Replace(ctx context.Context, token *auth.ResetToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer lock(s.db, s.tx)()

	s.deleteIdentity(token.Identity)
	cp := *token
	s.db.resets[token.TokenHash] = &cp
	onUndo(s.tx, func() { delete(s.db.resets, token.TokenHash) })
	return nil
}

// GetByTokenHash returns a copy of the token with tokenHash.
func (s *ResetTokenStore) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.ResetToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer lock(s.db, s.tx)()

	token, ok := s.db.resets[tokenHash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *token
	return &cp, nil
}

// Consume removes and returns the token with tokenHash.
func (s *ResetTokenStore) Consume(ctx context.Context, tokenHash string) (*auth.ResetToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer lock(s.db, s.tx)()

	token, ok := s.db.resets[tokenHash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	delete(s.db.resets, tokenHash)
	onUndo(s.tx, func() { s.db.resets[tokenHash] = token })
	cp := *token
	return &cp, nil
}

// DeleteByIdentity removes every token of identity.
func (s *ResetTokenStore) DeleteByIdentity(ctx context.Context, identity string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer lock(s.db, s.tx)()

	s.deleteIdentity(identity)
	return nil
}

// DeleteExpired removes tokens expired at now.
func (s *ResetTokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	defer lock(s.db, s.tx)()

	var n int64
	for hash, token := range s.db.resets {
		if token.IsExpiredAt(now) {
			s.remove(hash, token)
			n++
		}
	}
	return n, nil
}

// ForIdentity returns copies of every stored token of identity, expired
// ones included.
func (s *ResetTokenStore) ForIdentity(identity string) []auth.ResetToken {
	defer lock(s.db, s.tx)()

	var out []auth.ResetToken
	for _, token := range s.db.resets {
		if token.Identity == identity {
			out = append(out, *token)
		}
	}
	return out
}

// Len returns the number of stored tokens.
func (s *ResetTokenStore) Len() int {
	defer lock(s.db, s.tx)()
	return len(s.db.resets)
}

func (s *ResetTokenStore) deleteIdentity(identity string) {
	for hash, token := range s.db.resets {
		if token.Identity == identity {
			s.remove(hash, token)
		}
	}
}

// remove deletes one token; caller holds the lock.
func (s *ResetTokenStore) remove(hash string, token *auth.ResetToken) {
	delete(s.db.resets, hash)
	onUndo(s.tx, func() { s.db.resets[hash] = token })
}

func cloneCredential(c *auth.Credential) *auth.Credential {
	cp := *c
	if c.PasswordHash != nil {
		h := *c.PasswordHash
		cp.PasswordHash = &h
	}
	return &cp
}

var (
	_ auth.CredentialRepository = (*CredentialStore)(nil)
	_ auth.SessionRepository    = (*SessionStore)(nil)
	_ auth.ResetTokenRepository = (*ResetTokenStore)(nil)
	_ auth.Transactor           = (*DB)(nil)
)
