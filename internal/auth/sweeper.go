// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/pkg/errutil"
)

// DefaultSweepInterval is how often expired records are removed.
const DefaultSweepInterval = 10 * time.Minute

// SweepResult counts records removed by one sweep.
type SweepResult struct {
	Sessions    int64
	ResetTokens int64
}

// Sweeper removes expired sessions and reset tokens. Validation already
// rejects expired records; sweeping only reclaims storage.
type Sweeper struct {
	sessions SessionRepository
	tokens   ResetTokenRepository
	interval time.Duration
	now      func() time.Time
	onSwept  func(SweepResult)
	logger   *slog.Logger
}

// NewSweeper creates a sweeper.
func NewSweeper(sessions SessionRepository, tokens ResetTokenRepository, interval time.Duration) (*Sweeper, error) {
	if sessions == nil {
		return nil, oops.Errorf("session repository is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("reset token repository is required")
	}
	if interval <= 0 {
		return nil, configError("sweep interval must be positive, got %s", interval)
	}
	return &Sweeper{
		sessions: sessions,
		tokens:   tokens,
		interval: interval,
		now:      time.Now,
		logger:   slog.New(slog.DiscardHandler),
	}, nil
}

// WithLogger sets the logger.
func (s *Sweeper) WithLogger(logger *slog.Logger) *Sweeper {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// OnSwept registers a callback invoked after every successful sweep.
func (s *Sweeper) OnSwept(fn func(SweepResult)) *Sweeper {
	s.onSwept = fn
	return s
}

// SweepOnce removes expired records once.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	now := s.now()
	var result SweepResult

	n, err := s.sessions.DeleteExpired(ctx, now)
	if err != nil {
		return result, storeError("SWEEP_SESSIONS_FAILED", "delete expired sessions", err)
	}
	result.Sessions = n

	n, err = s.tokens.DeleteExpired(ctx, now)
	if err != nil {
		return result, storeError("SWEEP_RESET_TOKENS_FAILED", "delete expired reset tokens", err)
	}
	result.ResetTokens = n

	if s.onSwept != nil {
		s.onSwept(result)
	}
	return result, nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := s.SweepOnce(ctx)
			if err != nil {
				errutil.LogErrorContext(ctx, s.logger, "sweep failed", err)
				continue
			}
			if result.Sessions > 0 || result.ResetTokens > 0 {
				s.logger.InfoContext(ctx, "swept expired records",
					"sessions", result.Sessions,
					"reset_tokens", result.ResetTokens,
				)
			}
		}
	}
}
