// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
)

// TaskTypePasswordReset is the asynq task type for reset link delivery.
const TaskTypePasswordReset = "email:password_reset"

// Queue defaults.
const (
	DefaultQueue    = "notifications"
	DefaultMaxRetry = 5
	DefaultTimeout  = 30 * time.Second
)

// PasswordResetPayload is the task payload.
type PasswordResetPayload struct {
	Identity  string `json:"identity"`
	ResetLink string `json:"reset_link"`
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueConfig configures a QueueNotifier.
type QueueConfig struct {
	Queue    string
	MaxRetry int
	Timeout  time.Duration
}

// DefaultQueueConfig returns the default queue settings.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{Queue: DefaultQueue, MaxRetry: DefaultMaxRetry, Timeout: DefaultTimeout}
}

// QueueNotifier hands reset links to the asynq worker.
type QueueNotifier struct {
	client Enqueuer
	cfg    QueueConfig
}

// NewQueueNotifier creates a queue notifier.
func NewQueueNotifier(client Enqueuer, cfg QueueConfig) (*QueueNotifier, error) {
	if client == nil {
		return nil, oops.Errorf("enqueuer is required")
	}
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}
	if cfg.MaxRetry < 0 {
		return nil, oops.Code("CONFIG_INVALID").Wrapf(auth.ErrConfiguration, "max retry must not be negative, got %d", cfg.MaxRetry)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &QueueNotifier{client: client, cfg: cfg}, nil
}

// SendPasswordReset enqueues the link.
func (n *QueueNotifier) SendPasswordReset(ctx context.Context, identity, resetLink string) error {
	body, err := json.Marshal(PasswordResetPayload{Identity: identity, ResetLink: resetLink})
	if err != nil {
		return oops.Code("NOTIFY_ENCODE_FAILED").Wrap(err)
	}

	task := asynq.NewTask(TaskTypePasswordReset, body)
	_, err = n.client.EnqueueContext(ctx, task,
		asynq.Queue(n.cfg.Queue),
		asynq.MaxRetry(n.cfg.MaxRetry),
		asynq.Timeout(n.cfg.Timeout),
	)
	if err != nil {
		return oops.Code("NOTIFY_ENQUEUE_FAILED").
			With("queue", n.cfg.Queue).
			Wrap(err)
	}
	return nil
}

var _ auth.Notifier = (*QueueNotifier)(nil)
