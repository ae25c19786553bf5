// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

// Worker delivers queued reset links through a notifier.
type Worker struct {
	notifier auth.Notifier
	logger   *slog.Logger
}

// NewWorker creates a worker that delivers through notifier.
func NewWorker(notifier auth.Notifier, logger *slog.Logger) (*Worker, error) {
	if notifier == nil {
		return nil, oops.Errorf("notifier is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Worker{notifier: notifier, logger: logger}, nil
}

// Mux routes task types to the worker's handlers.
func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypePasswordReset, w.HandlePasswordReset)
	return mux
}

// HandlePasswordReset delivers one reset link. Malformed payloads are not
// retried; delivery failures are.
func (w *Worker) HandlePasswordReset(ctx context.Context, task *asynq.Task) error {
	var payload PasswordResetPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		errutil.LogErrorContext(ctx, w.logger, "dropping malformed reset task", oops.Code("NOTIFY_PAYLOAD_INVALID").Wrap(err))
		return fmt.Errorf("decode payload: %w", asynq.SkipRetry)
	}
	if payload.Identity == "" || payload.ResetLink == "" {
		w.logger.ErrorContext(ctx, "dropping incomplete reset task")
		return fmt.Errorf("incomplete payload: %w", asynq.SkipRetry)
	}

	if err := w.notifier.SendPasswordReset(ctx, payload.Identity, payload.ResetLink); err != nil {
		errutil.LogErrorContext(ctx, w.logger, "reset link delivery failed", err)
		return err
	}
	w.logger.InfoContext(ctx, "reset link delivered", "identity_hash", auth.HashToken(payload.Identity))
	return nil
}

// SlogLogger adapts a slog.Logger to asynq.Logger.
type SlogLogger struct {
	Logger *slog.Logger
}

func (l SlogLogger) Debug(args ...any) { l.Logger.Debug(fmt.Sprint(args...)) }
func (l SlogLogger) Info(args ...any)  { l.Logger.Info(fmt.Sprint(args...)) }
func (l SlogLogger) Warn(args ...any)  { l.Logger.Warn(fmt.Sprint(args...)) }
func (l SlogLogger) Error(args ...any) { l.Logger.Error(fmt.Sprint(args...)) }

// Fatal logs at error level and exits, as asynq.Logger requires.
func (l SlogLogger) Fatal(args ...any) {
	l.Logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}

var _ asynq.Logger = SlogLogger{}
