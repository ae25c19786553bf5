// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/codes"

	"github.com/holomush/gatekeeper/pkg/errutil"
)

// DefaultNotifyTimeout bounds a single reset link delivery.
const DefaultNotifyTimeout = 30 * time.Second

// Notifier delivers reset links. Delivery is fire-and-forget: it runs after
// the request returns, and a failure is logged and never changes the reset
// request outcome.
type Notifier interface {
	SendPasswordReset(ctx context.Context, identity, resetLink string) error
}

// ResetRequest is phase one of a password reset.
type ResetRequest struct {
	Identity string
	ClientIP string
	// BodyErr is a transport decode failure, returned after the limiter runs.
	BodyErr error
}

// ResetConfirmation is phase two of a password reset.
type ResetConfirmation struct {
	Token    string
	Password string
}

// ResetServiceConfig configures a ResetService.
type ResetServiceConfig struct {
	// LinkBaseURL is the origin of the reset page, e.g. https://app.example.com.
	LinkBaseURL string
	Policy      PasswordPolicy
	// RevokeSessions removes every session of the identity after a reset.
	RevokeSessions bool
	// NotifyTimeout defaults to DefaultNotifyTimeout if zero.
	NotifyTimeout time.Duration
}

// ResetService runs the two-phase password reset protocol.
type ResetService struct {
	credentials CredentialRepository
	tx          Transactor
	tokens      *ResetTokenAuthority
	hasher      PasswordHasher
	notifier    Notifier
	cfg         ResetServiceConfig
	linkBase    *url.URL

	limiter  *RateLimiter
	sessions *SessionAuthority
	logger   *slog.Logger

	deliveries sync.WaitGroup
}

// NewResetService creates a reset service.
func NewResetService(
	credentials CredentialRepository,
	tx Transactor,
	tokens *ResetTokenAuthority,
	hasher PasswordHasher,
	notifier Notifier,
	cfg ResetServiceConfig,
) (*ResetService, error) {
	switch {
	case credentials == nil:
		return nil, oops.Errorf("credential repository is required")
	case tx == nil:
		return nil, oops.Errorf("transactor is required")
	case tokens == nil:
		return nil, oops.Errorf("reset token authority is required")
	case hasher == nil:
		return nil, oops.Errorf("password hasher is required")
	case notifier == nil:
		return nil, oops.Errorf("notifier is required")
	}
	if cfg.Policy.MinLength < 1 {
		return nil, configError("minimum password length must be at least 1, got %d", cfg.Policy.MinLength)
	}
	if cfg.NotifyTimeout < 0 {
		return nil, configError("notify timeout must not be negative, got %s", cfg.NotifyTimeout)
	}
	if cfg.NotifyTimeout == 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}
	base, err := url.Parse(cfg.LinkBaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, configError("reset link base URL must be an absolute http(s) URL, got %q", cfg.LinkBaseURL)
	}
	return &ResetService{
		credentials: credentials,
		tx:          tx,
		tokens:      tokens,
		hasher:      hasher,
		notifier:    notifier,
		cfg:         cfg,
		linkBase:    base,
		logger:      slog.New(slog.DiscardHandler),
	}, nil
}

// WithLogger sets the logger.
func (s *ResetService) WithLogger(logger *slog.Logger) *ResetService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithLimiter throttles reset requests.
func (s *ResetService) WithLimiter(limiter *RateLimiter) *ResetService {
	s.limiter = limiter
	return s
}

// WithSessions enables session revocation after a successful reset.
func (s *ResetService) WithSessions(sessions *SessionAuthority) *ResetService {
	s.sessions = sessions
	return s
}

// RequestReset issues a reset token for an existing identity and hands the
// link to the notifier. Unknown identities succeed without side effects, so
// callers cannot tell whether an account exists.
func (s *ResetService) RequestReset(ctx context.Context, req ResetRequest) (err error) {
	ctx, span := tracer.Start(ctx, "auth.reset_request")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "reset request failed")
		}
		span.End()
	}()

	if s.limiter != nil {
		decision, err := s.limiter.CheckClient(ctx, req.ClientIP, req.Identity)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return throttled(s.limiter.Policy().Scope, decision)
		}
	}
	if req.BodyErr != nil {
		return req.BodyErr
	}

	identity := NormalizeIdentity(req.Identity)
	if err := ValidateIdentity(identity); err != nil {
		return err
	}

	cred, err := s.credentials.GetByIdentity(ctx, identity)
	if errors.Is(err, ErrNotFound) {
		s.logger.DebugContext(ctx, "reset requested for unknown identity", "client_ip", req.ClientIP)
		return nil
	}
	if err != nil {
		return storeError("RESET_REQUEST_FAILED", "get credential by identity", err)
	}

	token, record, err := s.tokens.Issue(ctx, cred.Identity)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password reset issued",
		"credential_id", cred.ID.String(),
		"reset_id", record.ID.String(),
		"expires_at", record.ExpiresAt,
	)

	s.deliveries.Add(1)
	go s.deliver(context.WithoutCancel(ctx), cred.Identity, record, s.resetLink(token))
	return nil
}

// deliver hands the link to the notifier. It runs detached from the request
// so the response does not wait on, or get cancelled with, the delivery.
func (s *ResetService) deliver(ctx context.Context, identity string, record *ResetToken, link string) {
	defer s.deliveries.Done()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.NotifyTimeout)
	defer cancel()

	if err := s.notifier.SendPasswordReset(ctx, identity, link); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "failed to send password reset link",
			oops.With("reset_id", record.ID.String()).Wrap(err))
	}
}

// Wait blocks until in-flight reset link deliveries finish or ctx is done.
func (s *ResetService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.deliveries.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return oops.Code("RESET_DELIVERY_PENDING").Wrap(ctx.Err())
	}
}

// ConfirmReset sets a new password using a reset token. The token is consumed
// and the password updated in one transaction; unknown, expired and already
// used tokens all fail with ErrInvalidResetToken.
func (s *ResetService) ConfirmReset(ctx context.Context, req ResetConfirmation) (err error) {
	ctx, span := tracer.Start(ctx, "auth.reset_confirm")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "reset confirm failed")
		}
		span.End()
	}()

	ve := &ValidationError{}
	if req.Token == "" {
		ve.add("token", "Reset token is required")
	}
	s.cfg.Policy.check(ve, "secret", req.Password)
	if err := ve.errOrNil(); err != nil {
		return err
	}

	// Cheap rejection before paying for the hash.
	if _, err := s.tokens.Lookup(ctx, req.Token); err != nil {
		return err
	}

	newHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}

	var record *ResetToken
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context, st Stores) error {
		consumed, err := s.tokens.consume(ctx, st.ResetTokens, req.Token)
		if err != nil {
			return err
		}
		if err := st.Credentials.UpdatePassword(ctx, consumed.Identity, newHash); err != nil {
			if errors.Is(err, ErrNotFound) {
				return oops.Code("RESET_TOKEN_INVALID").With("reason", "credential removed").Wrap(ErrInvalidResetToken)
			}
			return storeError("RESET_PASSWORD_FAILED", "update password", err)
		}
		record = consumed
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAuthentication) || errors.Is(err, ErrStoreUnavailable) {
			return err
		}
		return storeError("RESET_PASSWORD_FAILED", "commit password reset", err)
	}

	s.logger.InfoContext(ctx, "password reset completed", "reset_id", record.ID.String())

	if s.cfg.RevokeSessions && s.sessions != nil {
		// The reset is committed; finish revocation even if the client went away.
		n, err := s.sessions.RevokeAll(context.WithoutCancel(ctx), record.Identity)
		if err != nil {
			errutil.LogErrorContext(ctx, s.logger, "failed to revoke sessions after password reset", err)
		} else if n > 0 {
			s.logger.InfoContext(ctx, "revoked sessions after password reset", "reset_id", record.ID.String(), "count", n)
		}
	}
	return nil
}

// resetLink builds <base>/reset-password?token=<token>.
func (s *ResetService) resetLink(token string) string {
	u := *s.linkBase
	u.Path = joinPath(u.Path, "reset-password")
	q := url.Values{}
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func joinPath(base, elem string) string {
	if base == "" || base[len(base)-1] != '/' {
		return base + "/" + elem
	}
	return base + elem
}
