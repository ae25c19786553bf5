// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"log/slog"

	"github.com/holomush/gatekeeper/internal/auth"
)

// LogNotifier logs reset links instead of sending them. The link is a live
// credential; never use it outside local development.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// SendPasswordReset logs the link at warn level.
func (n *LogNotifier) SendPasswordReset(ctx context.Context, identity, resetLink string) error {
	n.logger.WarnContext(ctx, "password reset link (log notifier, development only)",
		"identity_hash", auth.HashToken(identity),
		"link", resetLink,
	)
	return nil
}

var _ auth.Notifier = (*LogNotifier)(nil)
