// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/auth/memory"
	"github.com/holomush/gatekeeper/internal/auth/postgres"
	"github.com/holomush/gatekeeper/internal/auth/redisstore"
	"github.com/holomush/gatekeeper/internal/config"
	"github.com/holomush/gatekeeper/internal/notify"
	"github.com/holomush/gatekeeper/internal/observability"
	"github.com/holomush/gatekeeper/internal/store"
)

// Backend holds the stores selected by configuration.
type Backend struct {
	Credentials auth.CredentialRepository
	Sessions    auth.SessionRepository
	ResetTokens auth.ResetTokenRepository
	Transactor  auth.Transactor
	Counters    auth.CounterStore

	pingers []func(ctx context.Context) error
	closers []func()
}

// Ping checks every remote store.
func (b *Backend) Ping(ctx context.Context) error {
	for _, ping := range b.pingers {
		if err := ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the stores in reverse order of opening.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// openBackend connects the credential store and, when configured, Redis.
func openBackend(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*Backend, error) {
	b := &Backend{}
	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	switch cfg.Database.Driver {
	case config.BackendMemory:
		slog.WarnContext(ctx, "using in-memory stores, accounts and sessions are lost on exit")
		db := memory.NewDB()
		b.Credentials = db.Credentials()
		b.Sessions = db.Sessions()
		b.ResetTokens = db.ResetTokens()
		b.Transactor = db
	default:
		poolCfg := store.DefaultPoolConfig()
		poolCfg.MaxConns = cfg.Database.MaxConns
		poolCfg.ConnectRetries = cfg.Database.ConnectRetries
		if cfg.Database.QueryTimeout > 0 {
			poolCfg.QueryTimeout = cfg.Database.QueryTimeout
		}
		pool, err := store.OpenPool(ctx, cfg.Database.URL, poolCfg)
		if err != nil {
			return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
		}
		b.closers = append(b.closers, pool.Close)
		b.pingers = append(b.pingers, pool.Ping)
		b.Credentials = postgres.NewCredentialRepository(pool)
		b.Sessions = postgres.NewSessionRepository(pool)
		b.ResetTokens = postgres.NewResetTokenRepository(pool)
		b.Transactor = postgres.NewTransactor(pool)
		slog.InfoContext(ctx, "connected to database")
	}

	var client *redis.Client
	if cfg.Session.Store == config.BackendRedis || cfg.RateLimit.Store == config.BackendRedis {
		var err error
		client, err = redisstore.Connect(ctx, cfg.Redis.URL, cfg.Redis.ConnectRetries)
		if err != nil {
			return nil, err //nolint:wrapcheck // carries REDIS_* codes
		}
		b.closers = append(b.closers, func() {
			if err := client.Close(); err != nil {
				slog.Debug("error closing redis client", "error", err)
			}
		})
		b.pingers = append(b.pingers, func(ctx context.Context) error { return client.Ping(ctx).Err() })
		slog.InfoContext(ctx, "connected to redis")
	}

	if cfg.Session.Store == config.BackendRedis {
		b.Sessions = redisstore.NewSessionRepository(client, cfg.Redis.Prefix)
	}

	switch cfg.RateLimit.Store {
	case config.BackendRedis:
		b.Counters = redisstore.NewCounterStore(client, cfg.Redis.Prefix)
	default:
		counters := memory.NewCounterStore(memory.CounterConfig{}, reg)
		b.closers = append(b.closers, counters.Close)
		b.Counters = counters
	}

	ok = true
	return b, nil
}

// Services are the authorities and orchestrators built over a Backend.
type Services struct {
	Hasher   *auth.Argon2idHasher
	Login    *auth.LoginService
	Reset    *auth.ResetService
	Sessions *auth.SessionAuthority
	Sweeper  *auth.Sweeper
}

// buildServices wires the auth components. metrics may be nil.
func buildServices(cfg *config.Config, b *Backend, notifier auth.Notifier, metrics *observability.Metrics, logger *slog.Logger) (*Services, error) {
	hasher, err := auth.NewArgon2idHasher(cfg.HashParams())
	if err != nil {
		return nil, err //nolint:wrapcheck // configuration errors carry their own codes
	}

	sessions, err := auth.NewSessionAuthority(b.Sessions, auth.SessionConfig{
		TTL:        cfg.Session.TTL,
		TokenBytes: cfg.Session.TokenBytes,
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // configuration errors carry their own codes
	}
	sessions = sessions.WithLogger(logger)

	tokens, err := auth.NewResetTokenAuthority(b.ResetTokens, auth.ResetConfig{
		TTL:        cfg.Reset.TTL,
		TokenBytes: cfg.Reset.TokenBytes,
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // configuration errors carry their own codes
	}

	loginLimiter, err := newLimiter(b.Counters, cfg.LoginPolicy(), metrics, logger)
	if err != nil {
		return nil, err
	}
	resetLimiter, err := newLimiter(b.Counters, cfg.ResetPolicy(), metrics, logger)
	if err != nil {
		return nil, err
	}

	login, err := auth.NewLoginService(loginLimiter, b.Credentials, hasher, sessions)
	if err != nil {
		return nil, err //nolint:wrapcheck // configuration errors carry their own codes
	}

	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	reset, err := auth.NewResetService(b.Credentials, b.Transactor, tokens, hasher, notifier, auth.ResetServiceConfig{
		LinkBaseURL:    cfg.Reset.LinkBaseURL,
		Policy:         auth.PasswordPolicy{MinLength: cfg.Reset.MinPasswordLength},
		RevokeSessions: cfg.Reset.RevokeSessions,
		NotifyTimeout:  cfg.Reset.NotifyTimeout,
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // configuration errors carry their own codes
	}
	reset = reset.WithLimiter(resetLimiter).WithSessions(sessions).WithLogger(logger)

	interval := cfg.Sweep.Interval
	if interval <= 0 {
		interval = auth.DefaultSweepInterval
	}
	sweeper, err := auth.NewSweeper(b.Sessions, b.ResetTokens, interval)
	if err != nil {
		return nil, err //nolint:wrapcheck // configuration errors carry their own codes
	}
	sweeper = sweeper.WithLogger(logger)
	if metrics != nil {
		sweeper = sweeper.OnSwept(metrics.RecordSweep)
	}

	return &Services{
		Hasher:   hasher,
		Login:    login.WithLogger(logger),
		Reset:    reset,
		Sessions: sessions,
		Sweeper:  sweeper,
	}, nil
}

func newLimiter(counters auth.CounterStore, policy auth.RateLimitPolicy, metrics *observability.Metrics, logger *slog.Logger) (*auth.RateLimiter, error) {
	limiter, err := auth.NewRateLimiter(counters, policy)
	if err != nil {
		return nil, oops.With("scope", policy.Scope).Wrap(err)
	}
	limiter = limiter.WithLogger(logger)
	if metrics != nil {
		limiter = limiter.OnDecision(metrics.RecordDecision)
	}
	return limiter, nil
}

// newNotifier builds the notifier the reset service hands links to.
func newNotifier(cfg *config.Config, logger *slog.Logger) (auth.Notifier, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Notify.Kind {
	case config.NotifyQueue:
		opt, err := asynq.ParseRedisURI(cfg.Redis.URL)
		if err != nil {
			return nil, noop, oops.Code("REDIS_CONFIG_INVALID").With("operation", "parse redis url").Wrap(err)
		}
		client := asynq.NewClient(opt)
		n, err := notify.NewQueueNotifier(client, notify.QueueConfig{
			Queue:    cfg.Notify.Queue.Name,
			MaxRetry: cfg.Notify.Queue.MaxRetry,
			Timeout:  cfg.Notify.Queue.Timeout,
		})
		if err != nil {
			_ = client.Close() //nolint:errcheck // construction error takes precedence
			return nil, noop, err //nolint:wrapcheck // carries its own code
		}
		return n, client.Close, nil
	case config.NotifyWebhook:
		n, err := newWebhookNotifier(cfg)
		return n, noop, err
	default:
		return notify.NewLogNotifier(logger), noop, nil
	}
}

// newDeliveryNotifier builds the notifier the worker delivers queued links
// through: the webhook when one is configured, the log otherwise.
func newDeliveryNotifier(cfg *config.Config, logger *slog.Logger) (auth.Notifier, func() error, error) {
	noop := func() error { return nil }
	if cfg.Notify.Webhook.URL == "" {
		logger.Warn("no webhook configured, reset links are written to the log")
		return notify.NewLogNotifier(logger), noop, nil
	}
	n, err := newWebhookNotifier(cfg)
	return n, noop, err
}

func newWebhookNotifier(cfg *config.Config) (auth.Notifier, error) {
	n, err := notify.NewWebhookNotifier(notify.WebhookConfig{
		URL:         cfg.Notify.Webhook.URL,
		BearerToken: cfg.Notify.Webhook.BearerToken,
		Timeout:     cfg.Notify.Webhook.Timeout,
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // carries its own code
	}
	return n, nil
}
