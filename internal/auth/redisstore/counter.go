// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
)

// incrementScript counts one attempt and returns {count, pttl}. The window
// starts on the first hit; a key that lost its expiry gets a fresh one.
var incrementScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// CounterStore counts attempts in fixed windows held in Redis.
type CounterStore struct {
	client redis.Scripter
	prefix string
	now    func() time.Time
}

// NewCounterStore creates a counter store. An empty prefix uses DefaultPrefix.
func NewCounterStore(client redis.Scripter, prefix string) *CounterStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &CounterStore{client: client, prefix: prefix + "rl:", now: time.Now}
}

// IncrementAndCheck runs the increment and the window lookup as one script.
func (s *CounterStore) IncrementAndCheck(ctx context.Context, key string, window time.Duration, maxAttempts int) (auth.Decision, error) {
	windowMS := window.Milliseconds()
	if windowMS < 1 {
		windowMS = 1
	}

	res, err := incrementScript.Run(ctx, s.client, []string{s.prefix + key}, windowMS).Int64Slice()
	if err != nil {
		return auth.Decision{}, oops.Code("RATE_LIMIT_INCREMENT_FAILED").
			With("operation", "increment counter").
			Wrap(err)
	}
	if len(res) != 2 {
		return auth.Decision{}, oops.Code("RATE_LIMIT_INCREMENT_FAILED").
			With("operation", "decode counter reply").
			Errorf("expected 2 values, got %d", len(res))
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	return auth.Decision{
		Allowed:   count <= maxAttempts,
		Limit:     maxAttempts,
		Remaining: max(maxAttempts-count, 0),
		ResetAt:   s.now().Add(ttl),
	}, nil
}

var _ auth.CounterStore = (*CounterStore)(nil)
