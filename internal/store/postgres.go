// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store opens the PostgreSQL pool and manages the schema.
package store

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	// MaxConns caps open connections; zero keeps the pgxpool default.
	MaxConns int32
	// ConnectRetries is how many times the initial ping is retried.
	ConnectRetries uint64
	// RetryBase is the first backoff delay; it doubles on every retry.
	RetryBase time.Duration
	// QueryTimeout becomes the session statement_timeout and the connect
	// timeout, so a hung server fails the call instead of blocking it.
	QueryTimeout time.Duration
}

// DefaultPoolConfig returns five connect retries starting at 250ms and a
// five second query timeout.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{ConnectRetries: 5, RetryBase: 250 * time.Millisecond, QueryTimeout: 5 * time.Second}
}

// OpenPool connects to databaseURL and pings until the server answers or
// the retry budget is spent.
func OpenPool(ctx context.Context, databaseURL string, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.QueryTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.QueryTimeout
		poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(cfg.QueryTimeout.Milliseconds(), 10)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := Ping(ctx, pool, cfg); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks connectivity with exponential backoff.
func Ping(ctx context.Context, p Pinger, cfg PoolConfig) error {
	base := cfg.RetryBase
	if base <= 0 {
		base = DefaultPoolConfig().RetryBase
	}
	backoff := retry.WithMaxRetries(cfg.ConnectRetries, retry.NewExponential(base))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := p.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "database not reachable, retrying", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("attempts", attempt).Wrap(err)
	}
	return nil
}
