// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads gatekeeper configuration.
//
// Sources are layered, later ones winning: built-in defaults, the YAML
// config file, environment variables and command-line flags. The file is
// checked against the JSON Schema reflected from Config before it is merged.
package config

import (
	"net/http"
	"net/url"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/httpapi"
	"github.com/holomush/gatekeeper/internal/notify"
)

// Backend names.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
)

// Notifier kinds.
const (
	NotifyLog     = "log"
	NotifyQueue   = "queue"
	NotifyWebhook = "webhook"
)

// Config is the complete gatekeeper configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Hash      HashConfig      `koanf:"hash"`
	Session   SessionConfig   `koanf:"session"`
	Reset     ResetConfig     `koanf:"reset"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Notify    NotifyConfig    `koanf:"notify"`
	Worker    WorkerConfig    `koanf:"worker"`
	Sweep     SweepConfig     `koanf:"sweep"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `koanf:"addr" jsonschema:"description=HTTP listen address"`
	// TrustProxy takes the client address from ForwardedHeader.
	TrustProxy         bool          `koanf:"trust_proxy"`
	TrustedProxies     []string      `koanf:"trusted_proxies" jsonschema:"description=CIDRs or addresses of trusted proxies (all when empty)"`
	ForwardedHeader    string        `koanf:"forwarded_header"`
	CORSAllowedOrigins []string      `koanf:"cors_allowed_origins"`
	MaxBodyBytes       int64         `koanf:"max_body_bytes" jsonschema:"minimum=1"`
	RequestTimeout     time.Duration `koanf:"request_timeout"`
	ShutdownTimeout    time.Duration `koanf:"shutdown_timeout"`
	Cookie             CookieConfig  `koanf:"cookie"`
}

// CookieConfig configures the session cookie.
type CookieConfig struct {
	Name   string `koanf:"name"`
	Domain string `koanf:"domain"`
	// Secure must only be disabled for local development over plain HTTP.
	Secure   bool   `koanf:"secure"`
	SameSite string `koanf:"same_site" jsonschema:"enum=lax,enum=strict"`
}

// DatabaseConfig configures the credential and reset token store.
type DatabaseConfig struct {
	Driver         string        `koanf:"driver" jsonschema:"enum=postgres,enum=memory"`
	URL            string        `koanf:"url"`
	MaxConns       int32         `koanf:"max_conns" jsonschema:"minimum=0"`
	QueryTimeout   time.Duration `koanf:"query_timeout"`
	ConnectRetries uint64        `koanf:"connect_retries"`
}

// RedisConfig configures the shared Redis connection.
type RedisConfig struct {
	URL            string `koanf:"url"`
	// Prefix namespaces every key. Use a hash tag such as "{gatekeeper}:"
	// when the server is a Redis Cluster.
	Prefix         string `koanf:"prefix"`
	ConnectRetries uint64 `koanf:"connect_retries"`
}

// HashConfig holds the argon2id parameters.
type HashConfig struct {
	Time       uint32 `koanf:"time" jsonschema:"minimum=1"`
	MemoryKiB  uint32 `koanf:"memory_kib" jsonschema:"minimum=8"`
	Threads    uint8  `koanf:"threads" jsonschema:"minimum=1,maximum=255"`
	SaltLength uint32 `koanf:"salt_length" jsonschema:"minimum=8"`
	KeyLength  uint32 `koanf:"key_length" jsonschema:"minimum=16"`
}

// SessionConfig configures sessions.
type SessionConfig struct {
	TTL        time.Duration `koanf:"ttl"`
	TokenBytes int           `koanf:"token_bytes" jsonschema:"minimum=32"`
	Store      string        `koanf:"store" jsonschema:"enum=database,enum=redis"`
}

// ResetConfig configures password resets.
type ResetConfig struct {
	TTL               time.Duration `koanf:"ttl"`
	TokenBytes        int           `koanf:"token_bytes" jsonschema:"minimum=32"`
	LinkBaseURL       string        `koanf:"link_base_url"`
	MinPasswordLength int           `koanf:"min_password_length" jsonschema:"minimum=1"`
	RevokeSessions    bool          `koanf:"revoke_sessions"`
	NotifyTimeout     time.Duration `koanf:"notify_timeout"`
}

// RateLimitConfig configures login and reset request throttling.
type RateLimitConfig struct {
	Store string       `koanf:"store" jsonschema:"enum=memory,enum=redis"`
	Login PolicyConfig `koanf:"login"`
	Reset PolicyConfig `koanf:"reset"`
}

// PolicyConfig is one fixed-window policy.
type PolicyConfig struct {
	MaxAttempts int           `koanf:"max_attempts" jsonschema:"minimum=1"`
	Window      time.Duration `koanf:"window"`
	KeyBy       string        `koanf:"key_by" jsonschema:"enum=ip,enum=identity,enum=both"`
}

// NotifyConfig selects how reset links are delivered.
type NotifyConfig struct {
	Kind    string        `koanf:"kind" jsonschema:"enum=log,enum=queue,enum=webhook"`
	Queue   QueueConfig   `koanf:"queue"`
	Webhook WebhookConfig `koanf:"webhook"`
}

// QueueConfig configures the asynq notification queue.
type QueueConfig struct {
	Name     string        `koanf:"name"`
	MaxRetry int           `koanf:"max_retry" jsonschema:"minimum=0"`
	Timeout  time.Duration `koanf:"timeout"`
}

// WebhookConfig configures the mail relay webhook.
type WebhookConfig struct {
	URL         string        `koanf:"url"`
	BearerToken string        `koanf:"bearer_token"`
	Timeout     time.Duration `koanf:"timeout"`
}

// WorkerConfig configures the notification worker.
type WorkerConfig struct {
	Concurrency     int           `koanf:"concurrency" jsonschema:"minimum=1"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SweepConfig configures the expired record sweeper.
type SweepConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
}

// MetricsConfig configures the observability server.
type MetricsConfig struct {
	// Addr is empty to disable the server.
	Addr string `koanf:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// Default returns the built-in configuration.
func Default() Config {
	hash := auth.DefaultHashParams()
	queue := notify.DefaultQueueConfig()
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ForwardedHeader: httpapi.DefaultForwardedHeader,
			MaxBodyBytes:    httpapi.DefaultMaxBodyBytes,
			RequestTimeout:  httpapi.DefaultRequestTimeout,
			ShutdownTimeout: 10 * time.Second,
			Cookie: CookieConfig{
				Name:     httpapi.DefaultCookieName,
				Secure:   true,
				SameSite: "lax",
			},
		},
		Database: DatabaseConfig{
			Driver:         BackendPostgres,
			QueryTimeout:   5 * time.Second,
			ConnectRetries: 5,
		},
		Redis: RedisConfig{
			Prefix:         "gatekeeper:",
			ConnectRetries: 5,
		},
		Hash: HashConfig{
			Time:       hash.Time,
			MemoryKiB:  hash.MemoryKiB,
			Threads:    hash.Threads,
			SaltLength: hash.SaltLen,
			KeyLength:  hash.KeyLen,
		},
		Session: SessionConfig{
			TTL:        auth.DefaultSessionTTL,
			TokenBytes: auth.DefaultTokenBytes,
			Store:      "database",
		},
		Reset: ResetConfig{
			TTL:               auth.DefaultResetTTL,
			TokenBytes:        auth.DefaultTokenBytes,
			MinPasswordLength: auth.DefaultPasswordPolicy().MinLength,
			RevokeSessions:    true,
			NotifyTimeout:     auth.DefaultNotifyTimeout,
		},
		RateLimit: RateLimitConfig{
			Store: BackendMemory,
			Login: PolicyConfig{MaxAttempts: 5, Window: time.Minute, KeyBy: string(auth.KeyByIP)},
			Reset: PolicyConfig{MaxAttempts: 5, Window: time.Hour, KeyBy: string(auth.KeyByIP)},
		},
		Notify: NotifyConfig{
			Kind: NotifyLog,
			Queue: QueueConfig{
				Name:     queue.Queue,
				MaxRetry: queue.MaxRetry,
				Timeout:  queue.Timeout,
			},
			Webhook: WebhookConfig{Timeout: notify.DefaultWebhookTimeout},
		},
		Worker: WorkerConfig{
			Concurrency:     10,
			ShutdownTimeout: 10 * time.Second,
		},
		Sweep: SweepConfig{
			Enabled:  true,
			Interval: auth.DefaultSweepInterval,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json", Level: "info"},
	}
}

// Validate checks cross-field constraints and required values. Component
// constructors check the remaining ranges.
func (c *Config) Validate() error {
	switch {
	case c.Server.Addr == "":
		return invalid("server.addr", "is required")
	case c.Server.Cookie.Name == "":
		return invalid("server.cookie.name", "is required")
	case c.Server.Cookie.SameSite != "lax" && c.Server.Cookie.SameSite != "strict":
		return invalid("server.cookie.same_site", "must be lax or strict, got %q", c.Server.Cookie.SameSite)
	case c.Server.TrustProxy && c.Server.ForwardedHeader == "":
		return invalid("server.forwarded_header", "is required when server.trust_proxy is set")
	}

	switch c.Database.Driver {
	case BackendPostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "is required for the postgres driver (or set DATABASE_URL)")
		}
	case BackendMemory:
	default:
		return invalid("database.driver", "must be postgres or memory, got %q", c.Database.Driver)
	}

	switch c.Session.Store {
	case "database":
	case BackendRedis:
		if c.Redis.URL == "" {
			return invalid("redis.url", "is required when session.store is redis")
		}
	default:
		return invalid("session.store", "must be database or redis, got %q", c.Session.Store)
	}

	switch c.RateLimit.Store {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			return invalid("redis.url", "is required when ratelimit.store is redis")
		}
	default:
		return invalid("ratelimit.store", "must be memory or redis, got %q", c.RateLimit.Store)
	}

	if err := c.validateReset(); err != nil {
		return err
	}
	if err := c.validateNotify(); err != nil {
		return err
	}

	if c.Sweep.Enabled && c.Sweep.Interval <= 0 {
		return invalid("sweep.interval", "must be positive when sweeping is enabled")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "must be json or text, got %q", c.Log.Format)
	}
	return nil
}

func (c *Config) validateReset() error {
	if c.Reset.LinkBaseURL == "" {
		return invalid("reset.link_base_url", "is required")
	}
	u, err := url.Parse(c.Reset.LinkBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("reset.link_base_url", "must be an absolute http(s) URL, got %q", c.Reset.LinkBaseURL)
	}
	if c.Reset.NotifyTimeout <= 0 {
		return invalid("reset.notify_timeout", "must be positive, got %s", c.Reset.NotifyTimeout)
	}
	return nil
}

func (c *Config) validateNotify() error {
	switch c.Notify.Kind {
	case NotifyLog:
	case NotifyQueue:
		if c.Redis.URL == "" {
			return invalid("redis.url", "is required when notify.kind is queue")
		}
	case NotifyWebhook:
		if c.Notify.Webhook.URL == "" {
			return invalid("notify.webhook.url", "is required when notify.kind is webhook")
		}
	default:
		return invalid("notify.kind", "must be log, queue or webhook, got %q", c.Notify.Kind)
	}
	return nil
}

// HashParams returns the argon2id parameters.
func (c *Config) HashParams() auth.HashParams {
	return auth.HashParams{
		Time:      c.Hash.Time,
		MemoryKiB: c.Hash.MemoryKiB,
		Threads:   c.Hash.Threads,
		SaltLen:   c.Hash.SaltLength,
		KeyLen:    c.Hash.KeyLength,
	}
}

// LoginPolicy returns the login rate limit policy.
func (c *Config) LoginPolicy() auth.RateLimitPolicy {
	return c.RateLimit.Login.policy("login")
}

// ResetPolicy returns the reset request rate limit policy.
func (c *Config) ResetPolicy() auth.RateLimitPolicy {
	return c.RateLimit.Reset.policy("reset")
}

func (p PolicyConfig) policy(scope string) auth.RateLimitPolicy {
	return auth.RateLimitPolicy{
		Scope:       scope,
		MaxAttempts: p.MaxAttempts,
		Window:      p.Window,
		KeyBy:       auth.KeyStrategy(p.KeyBy),
	}
}

// HTTP returns the router configuration.
func (c *Config) HTTP() httpapi.Config {
	sameSite := http.SameSiteLaxMode
	if c.Server.Cookie.SameSite == "strict" {
		sameSite = http.SameSiteStrictMode
	}
	return httpapi.Config{
		CookieName:         c.Server.Cookie.Name,
		CookieDomain:       c.Server.Cookie.Domain,
		CookieSecure:       c.Server.Cookie.Secure,
		CookieSameSite:     sameSite,
		TrustProxy:         c.Server.TrustProxy,
		TrustedProxies:     c.Server.TrustedProxies,
		ForwardedHeader:    c.Server.ForwardedHeader,
		CORSAllowedOrigins: c.Server.CORSAllowedOrigins,
		MaxBodyBytes:       c.Server.MaxBodyBytes,
		RequestTimeout:     c.Server.RequestTimeout,
	}
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").
		With("key", key).
		Wrapf(auth.ErrConfiguration, key+" "+format, args...)
}
