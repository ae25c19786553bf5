// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/observability"
)

// Defaults.
const (
	DefaultCookieName      = "gatekeeper_session"
	DefaultForwardedHeader = "X-Forwarded-For"
	DefaultMaxBodyBytes    = 16 << 10
	DefaultRequestTimeout  = 10 * time.Second
)

// LoginProvider runs password logins.
type LoginProvider interface {
	Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error)
}

// ResetProvider runs both phases of a password reset.
type ResetProvider interface {
	RequestReset(ctx context.Context, req auth.ResetRequest) error
	ConfirmReset(ctx context.Context, req auth.ResetConfirmation) error
}

// SessionProvider validates and destroys session handles.
type SessionProvider interface {
	Validate(ctx context.Context, handle string) (*auth.Session, error)
	Destroy(ctx context.Context, handle string) error
	TTL() time.Duration
}

// Config configures the router.
type Config struct {
	CookieName     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	// TrustProxy reads the client address from ForwardedHeader when the
	// connection comes from one of TrustedProxies (all addresses if empty).
	TrustProxy      bool
	TrustedProxies  []string
	ForwardedHeader string

	CORSAllowedOrigins []string
	MaxBodyBytes       int64
	// RequestTimeout bounds the context handed to the services.
	RequestTimeout time.Duration
}

// DefaultConfig returns secure cookie defaults without proxy trust.
func DefaultConfig() Config {
	return Config{
		CookieName:      DefaultCookieName,
		CookieSecure:    true,
		CookieSameSite:  http.SameSiteLaxMode,
		ForwardedHeader: DefaultForwardedHeader,
		MaxBodyBytes:    DefaultMaxBodyBytes,
		RequestTimeout:  DefaultRequestTimeout,
	}
}

// Services are the collaborators behind the routes.
type Services struct {
	Login    LoginProvider
	Reset    ResetProvider
	Sessions SessionProvider
}

// Handler serves the auth routes.
type Handler struct {
	svc     Services
	cfg     Config
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewRouter builds the gin engine. metrics may be nil.
func NewRouter(svc Services, cfg Config, metrics *observability.Metrics, logger *slog.Logger) (*gin.Engine, error) {
	switch {
	case svc.Login == nil:
		return nil, oops.Errorf("login provider is required")
	case svc.Reset == nil:
		return nil, oops.Errorf("reset provider is required")
	case svc.Sessions == nil:
		return nil, oops.Errorf("session provider is required")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.CookieSameSite == 0 {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}
	if cfg.ForwardedHeader == "" {
		cfg.ForwardedHeader = DefaultForwardedHeader
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	engine := gin.New()
	if err := configureClientIP(engine, cfg); err != nil {
		return nil, err
	}

	h := &Handler{svc: svc, cfg: cfg, metrics: metrics, logger: logger}

	engine.Use(requestID(), h.accessLog(), gin.CustomRecovery(h.recover), requestTimeout(cfg.RequestTimeout))
	if len(cfg.CORSAllowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
		corsConfig.AllowCredentials = true
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", RequestIDHeader}
		corsConfig.ExposeHeaders = []string{RequestIDHeader, "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"}
		engine.Use(cors.New(corsConfig))
	}
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	authRoutes := engine.Group("/auth")
	{
		authRoutes.POST("/login", h.login)
		authRoutes.POST("/logout", h.logout)
		authRoutes.GET("/session", h.RequireSession(), h.session)
		authRoutes.POST("/forgot-password", h.forgotPassword)
		authRoutes.POST("/reset-password", h.resetPassword)
	}
	return engine, nil
}

func configureClientIP(engine *gin.Engine, cfg Config) error {
	if !cfg.TrustProxy {
		engine.ForwardedByClientIP = false
		if err := engine.SetTrustedProxies(nil); err != nil {
			return oops.Code("HTTP_CONFIG_INVALID").Wrap(err)
		}
		return nil
	}

	proxies := cfg.TrustedProxies
	if len(proxies) == 0 {
		proxies = []string{"0.0.0.0/0", "::/0"}
	}
	engine.ForwardedByClientIP = true
	engine.RemoteIPHeaders = []string{cfg.ForwardedHeader}
	if err := engine.SetTrustedProxies(proxies); err != nil {
		return oops.Code("HTTP_CONFIG_INVALID").
			With("trusted_proxies", proxies).
			Wrapf(auth.ErrConfiguration, "invalid trusted proxy: %v", err)
	}
	return nil
}
