// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres provides PostgreSQL implementations of auth repositories.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/gatekeeper/internal/auth"
)

// Querier is the query surface shared by *pgxpool.Pool, pgx.Tx and pgxmock.
// Begin on a pgx.Tx opens a savepoint.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// readRetries bounds retries of idempotent reads after a dropped connection.
const readRetries = 2

// retryRead runs fn again when it fails with a connection exception.
func retryRead(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(readRetries, retry.NewExponential(50*time.Millisecond))
	//nolint:wrapcheck // fn errors are already wrapped by the caller
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if isConnectionException(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func isConnectionException(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgerrcode.IsConnectionException(pgErr.Code)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Transactor implements auth.Transactor over a pool.
type Transactor struct {
	db Querier
}

// NewTransactor creates a transactor.
func NewTransactor(db Querier) *Transactor {
	return &Transactor{db: db}
}

// WithinTransaction runs fn in a transaction that commits when fn returns nil.
func (t *Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context, s auth.Stores) error) error {
	tx, err := t.db.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").With("operation", "begin transaction").Wrap(err)
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback(ctx) //nolint:errcheck // rollback error is secondary to fn's error
	}()

	if err := fn(ctx, auth.Stores{
		Credentials: NewCredentialRepository(tx),
		ResetTokens: NewResetTokenRepository(tx),
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").With("operation", "commit transaction").Wrap(err)
	}
	return nil
}

var _ auth.Transactor = (*Transactor)(nil)
