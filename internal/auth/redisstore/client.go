// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package redisstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "gatekeeper:"

// Connect parses redisURL, opens a client and pings it with exponential
// backoff. The caller owns the returned client.
func Connect(ctx context.Context, redisURL string, retries uint64) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, oops.Code("REDIS_CONFIG_INVALID").With("operation", "parse redis url").Wrap(err)
	}
	client := redis.NewClient(opts)

	backoff := retry.WithMaxRetries(retries, retry.NewExponential(250*time.Millisecond))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := client.Ping(ctx).Err(); err != nil {
			slog.WarnContext(ctx, "redis not reachable, retrying", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = client.Close() //nolint:errcheck // connect error takes precedence
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("attempts", attempt).Wrap(err)
	}
	return client, nil
}
