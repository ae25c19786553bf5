// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/gatekeeper/pkg/errutil"
)

var tracer = otel.Tracer("gatekeeper/auth")

// LoginRequest is a password login attempt.
type LoginRequest struct {
	Identity  string
	Password  string
	ClientIP  string
	UserAgent string
	// BodyErr is a transport decode failure. It is returned only after the
	// attempt has been counted, so malformed requests cannot skip the limiter.
	BodyErr error
}

// LoginResult is a successful login.
type LoginResult struct {
	// Handle is the opaque session handle for the client cookie.
	Handle    string
	Session   *Session
	RateLimit Decision
}

// LoginService runs the login protocol: throttle, validate, look up, verify,
// then issue a session.
type LoginService struct {
	limiter     *RateLimiter
	credentials CredentialRepository
	hasher      PasswordHasher
	sessions    *SessionAuthority
	logger      *slog.Logger

	// dummyHash is verified when the identity is unknown or has no password,
	// so those paths cost the same as a wrong password. It is produced by
	// hasher, so it carries the configured cost parameters.
	dummyHash string
}

// NewLoginService creates a login service.
func NewLoginService(
	limiter *RateLimiter,
	credentials CredentialRepository,
	hasher PasswordHasher,
	sessions *SessionAuthority,
) (*LoginService, error) {
	if limiter == nil {
		return nil, oops.Errorf("rate limiter is required")
	}
	if credentials == nil {
		return nil, oops.Errorf("credential repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session authority is required")
	}
	dummyPassword, err := GenerateToken(MinTokenBytes)
	if err != nil {
		return nil, oops.Code("AUTH_DUMMY_HASH_FAILED").Wrap(err)
	}
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, oops.Code("AUTH_DUMMY_HASH_FAILED").Wrap(err)
	}
	return &LoginService{
		limiter:     limiter,
		credentials: credentials,
		hasher:      hasher,
		sessions:    sessions,
		logger:      slog.New(slog.DiscardHandler),
		dummyHash:   dummyHash,
	}, nil
}

// WithLogger sets the logger.
func (s *LoginService) WithLogger(logger *slog.Logger) *LoginService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Login authenticates req and creates a session.
//
// Throttled requests fail with a ThrottledError before any credential lookup.
// Unknown identities, identities without a password and wrong passwords all
// fail with ErrInvalidCredentials.
func (s *LoginService) Login(ctx context.Context, req LoginRequest) (result *LoginResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.login", trace.WithAttributes(
		attribute.String("client.ip", req.ClientIP),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "login failed")
		}
		span.End()
	}()

	decision, err := s.limiter.CheckClient(ctx, req.ClientIP, req.Identity)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("ratelimit.remaining", decision.Remaining))
	if !decision.Allowed {
		return nil, throttled(s.limiter.Policy().Scope, decision)
	}
	if req.BodyErr != nil {
		return nil, req.BodyErr
	}

	identity := NormalizeIdentity(req.Identity)
	if err := validateLogin(identity, req.Password); err != nil {
		return nil, err
	}

	cred, err := s.credentials.GetByIdentity(ctx, identity)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, storeError("AUTH_LOGIN_FAILED", "get credential by identity", err)
	}

	if cred == nil || !cred.HasPassword() {
		// Burn the same verification cost as a real mismatch.
		_, _ = s.hasher.Verify(req.Password, s.dummyHash) //nolint:errcheck // result is discarded by design
		reason := "unknown identity"
		if cred != nil {
			reason = "no password set"
		}
		s.logger.InfoContext(ctx, "login failed", "reason", reason, "client_ip", req.ClientIP)
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").With("client_ip", req.ClientIP).Wrap(ErrInvalidCredentials)
	}

	ok, err := s.hasher.Verify(req.Password, *cred.PasswordHash)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("credential_id", cred.ID.String()).
			Wrap(err)
	}
	if !ok {
		s.logger.InfoContext(ctx, "login failed",
			"reason", "password mismatch",
			"credential_id", cred.ID.String(),
			"client_ip", req.ClientIP,
		)
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").With("client_ip", req.ClientIP).Wrap(ErrInvalidCredentials)
	}

	if s.hasher.NeedsUpgrade(*cred.PasswordHash) {
		s.upgradeHash(ctx, cred, req.Password)
	}

	handle, session, err := s.sessions.Create(ctx, cred.Identity, SessionMetadata{
		UserAgent: req.UserAgent,
		IPAddress: req.ClientIP,
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "login succeeded",
		"credential_id", cred.ID.String(),
		"session_id", session.ID.String(),
		"client_ip", req.ClientIP,
	)
	return &LoginResult{Handle: handle, Session: session, RateLimit: decision}, nil
}

// upgradeHash rehashes a password stored with outdated parameters. Failures
// are logged and do not affect the login.
func (s *LoginService) upgradeHash(ctx context.Context, cred *Credential, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "failed to rehash password", err)
		return
	}
	if err := s.credentials.UpdatePassword(ctx, cred.Identity, newHash); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "failed to store upgraded password hash", err)
		return
	}
	s.logger.InfoContext(ctx, "upgraded password hash", "credential_id", cred.ID.String())
}

func validateLogin(identity, password string) error {
	ve := &ValidationError{}
	validateIdentity(ve, "identity", identity)
	switch {
	case password == "":
		ve.add("secret", "Password is required")
	case len(password) > MaxPasswordLength:
		ve.add("secret", "Password is too long")
	}
	return ve.errOrNil()
}
