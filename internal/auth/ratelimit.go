// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// Default login rate limit.
const (
	DefaultMaxAttempts = 5
	DefaultWindow      = time.Minute
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long a throttled client should wait, rounded up to
// whole seconds.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	return (wait + time.Second - 1) / time.Second * time.Second
}

// moreRestrictive returns whichever decision leaves the client less room.
func moreRestrictive(a, b Decision) Decision {
	if a.Allowed != b.Allowed {
		if !a.Allowed {
			return a
		}
		return b
	}
	if a.Remaining != b.Remaining {
		if a.Remaining < b.Remaining {
			return a
		}
		return b
	}
	if a.ResetAt.After(b.ResetAt) {
		return a
	}
	return b
}

// CounterStore counts attempts per key in fixed windows.
type CounterStore interface {
	// IncrementAndCheck counts one attempt for key and reports whether it is
	// within maxAttempts for the current window. The increment and the check
	// must be a single atomic operation.
	IncrementAndCheck(ctx context.Context, key string, window time.Duration, maxAttempts int) (Decision, error)
}

// KeyStrategy selects what a login attempt is counted against.
type KeyStrategy string

// Key strategies.
const (
	KeyByIP       KeyStrategy = "ip"
	KeyByIdentity KeyStrategy = "identity"
	KeyByBoth     KeyStrategy = "both"
)

// RateLimitPolicy configures a RateLimiter.
type RateLimitPolicy struct {
	// Scope prefixes every counter key, e.g. "login" or "reset".
	Scope       string
	MaxAttempts int
	Window      time.Duration
	KeyBy       KeyStrategy
}

// Validate checks the policy.
func (p RateLimitPolicy) Validate() error {
	switch {
	case p.Scope == "":
		return configError("rate limit scope is required")
	case p.MaxAttempts < 1:
		return configError("rate limit max attempts must be at least 1, got %d", p.MaxAttempts)
	case p.Window < time.Second:
		return configError("rate limit window must be at least 1s, got %s", p.Window)
	}
	switch p.KeyBy {
	case KeyByIP, KeyByIdentity, KeyByBoth:
		return nil
	default:
		return configError("rate limit key strategy must be ip, identity or both, got %q", p.KeyBy)
	}
}

// RateLimiter applies a RateLimitPolicy over a CounterStore.
type RateLimiter struct {
	store    CounterStore
	policy   RateLimitPolicy
	logger   *slog.Logger
	observer func(scope string, d Decision)
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter(store CounterStore, policy RateLimitPolicy) (*RateLimiter, error) {
	if store == nil {
		return nil, oops.Errorf("counter store is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &RateLimiter{store: store, policy: policy, logger: slog.New(slog.DiscardHandler)}, nil
}

// WithLogger sets the logger used for limiter events.
func (l *RateLimiter) WithLogger(logger *slog.Logger) *RateLimiter {
	if logger != nil {
		l.logger = logger
	}
	return l
}

// OnDecision registers a callback invoked with every client decision.
func (l *RateLimiter) OnDecision(fn func(scope string, d Decision)) *RateLimiter {
	l.observer = fn
	return l
}

// Policy returns the configured policy.
func (l *RateLimiter) Policy() RateLimitPolicy {
	return l.policy
}

// Check counts one attempt against key.
func (l *RateLimiter) Check(ctx context.Context, key string) (Decision, error) {
	d, err := l.store.IncrementAndCheck(ctx, l.policy.Scope+":"+key, l.policy.Window, l.policy.MaxAttempts)
	if err != nil {
		return Decision{}, storeError("RATE_LIMIT_UNAVAILABLE", "increment rate limit counter", err)
	}
	return d, nil
}

// CheckClient counts one attempt for a client according to the key strategy.
// With KeyByBoth every key is counted and the most restrictive decision wins.
func (l *RateLimiter) CheckClient(ctx context.Context, clientIP, identity string) (Decision, error) {
	var keys []string
	if l.policy.KeyBy == KeyByIP || l.policy.KeyBy == KeyByBoth {
		keys = append(keys, "ip:"+clientIP)
	}
	if l.policy.KeyBy == KeyByIdentity || l.policy.KeyBy == KeyByBoth {
		// Hashed so raw emails never become store keys.
		keys = append(keys, "id:"+HashToken(NormalizeIdentity(identity)))
	}

	var result Decision
	for i, key := range keys {
		d, err := l.Check(ctx, key)
		if err != nil {
			return Decision{}, err
		}
		if i == 0 {
			result = d
			continue
		}
		result = moreRestrictive(result, d)
	}

	if l.observer != nil {
		l.observer(l.policy.Scope, result)
	}

	if !result.Allowed {
		l.logger.InfoContext(ctx, "rate limit exceeded",
			"scope", l.policy.Scope,
			"client_ip", clientIP,
			"limit", result.Limit,
			"reset_at", result.ResetAt,
		)
	}
	return result, nil
}

// throttled builds the error returned for a rejected decision.
func throttled(scope string, d Decision) error {
	return oops.Code("RATE_LIMITED").
		With("scope", scope).
		With("limit", d.Limit).
		With("reset_at", d.ResetAt).
		Wrap(&ThrottledError{Decision: d})
}

func (d Decision) String() string {
	return fmt.Sprintf("allowed=%t limit=%d remaining=%d reset_at=%s", d.Allowed, d.Limit, d.Remaining, d.ResetAt.Format(time.RFC3339))
}
