// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/auth/mocks"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

const testLink = "https://app.example.com/reset-password?token=abc"

type recordingEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (e *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, task)
	e.opts = append(e.opts, opts)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, n.SendPasswordReset(context.Background(), "ada@example.com", testLink))
	assert.Contains(t, buf.String(), testLink)
	assert.NotContains(t, buf.String(), "ada@example.com")
}

func TestQueueNotifier(t *testing.T) {
	t.Run("enqueues a password reset task", func(t *testing.T) {
		enq := &recordingEnqueuer{}
		n, err := NewQueueNotifier(enq, DefaultQueueConfig())
		require.NoError(t, err)

		require.NoError(t, n.SendPasswordReset(context.Background(), "ada@example.com", testLink))
		require.Len(t, enq.tasks, 1)
		assert.Equal(t, TaskTypePasswordReset, enq.tasks[0].Type())
		assert.Len(t, enq.opts[0], 3)

		var payload PasswordResetPayload
		require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
		assert.Equal(t, PasswordResetPayload{Identity: "ada@example.com", ResetLink: testLink}, payload)
	})

	t.Run("wraps enqueue failures", func(t *testing.T) {
		n, err := NewQueueNotifier(&recordingEnqueuer{err: errors.New("redis down")}, DefaultQueueConfig())
		require.NoError(t, err)

		err = n.SendPasswordReset(context.Background(), "ada@example.com", testLink)
		errutil.AssertErrorCode(t, err, "NOTIFY_ENQUEUE_FAILED")
	})

	t.Run("rejects bad config", func(t *testing.T) {
		_, err := NewQueueNotifier(nil, DefaultQueueConfig())
		require.Error(t, err)

		_, err = NewQueueNotifier(&recordingEnqueuer{}, QueueConfig{MaxRetry: -1})
		assert.ErrorIs(t, err, auth.ErrConfiguration)
	})
}

func TestWebhookNotifier(t *testing.T) {
	t.Run("posts json with bearer token", func(t *testing.T) {
		var (
			gotAuth string
			gotMsg  webhookMessage
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			body, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(body, &gotMsg))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		n, err := NewWebhookNotifier(WebhookConfig{URL: srv.URL, BearerToken: "relay-secret", Timeout: time.Second})
		require.NoError(t, err)

		require.NoError(t, n.SendPasswordReset(context.Background(), "ada@example.com", testLink))
		assert.Equal(t, "Bearer relay-secret", gotAuth)
		assert.Equal(t, webhookMessage{Type: TaskTypePasswordReset, Identity: "ada@example.com", ResetLink: testLink}, gotMsg)
	})

	t.Run("non-2xx is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		n, err := NewWebhookNotifier(WebhookConfig{URL: srv.URL})
		require.NoError(t, err)

		err = n.SendPasswordReset(context.Background(), "ada@example.com", testLink)
		errutil.AssertErrorCode(t, err, "NOTIFY_WEBHOOK_REJECTED")
		errutil.AssertErrorContext(t, err, "status", http.StatusBadGateway)
	})

	t.Run("rejects relative urls", func(t *testing.T) {
		for _, u := range []string{"", "/hook", "ftp://relay.example.com"} {
			_, err := NewWebhookNotifier(WebhookConfig{URL: u})
			assert.ErrorIs(t, err, auth.ErrConfiguration, u)
		}
	})
}

func TestWorker_HandlePasswordReset(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers through the notifier", func(t *testing.T) {
		notifier := mocks.NewMockNotifier(t)
		notifier.EXPECT().SendPasswordReset(mock.Anything, "ada@example.com", testLink).Return(nil)

		w, err := NewWorker(notifier, nil)
		require.NoError(t, err)

		body, _ := json.Marshal(PasswordResetPayload{Identity: "ada@example.com", ResetLink: testLink})
		assert.NoError(t, w.HandlePasswordReset(ctx, asynq.NewTask(TaskTypePasswordReset, body)))
	})

	t.Run("delivery failure is retried", func(t *testing.T) {
		notifier := mocks.NewMockNotifier(t)
		notifier.EXPECT().SendPasswordReset(mock.Anything, mock.Anything, mock.Anything).Return(errors.New("relay down"))

		w, err := NewWorker(notifier, nil)
		require.NoError(t, err)

		body, _ := json.Marshal(PasswordResetPayload{Identity: "ada@example.com", ResetLink: testLink})
		err = w.HandlePasswordReset(ctx, asynq.NewTask(TaskTypePasswordReset, body))
		require.Error(t, err)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("malformed payloads skip retry", func(t *testing.T) {
		w, err := NewWorker(mocks.NewMockNotifier(t), nil)
		require.NoError(t, err)

		for _, body := range [][]byte{[]byte("{"), []byte(`{"identity":"ada@example.com"}`)} {
			err := w.HandlePasswordReset(ctx, asynq.NewTask(TaskTypePasswordReset, body))
			assert.ErrorIs(t, err, asynq.SkipRetry)
		}
	})

	t.Run("mux routes the task type", func(t *testing.T) {
		notifier := mocks.NewMockNotifier(t)
		notifier.EXPECT().SendPasswordReset(mock.Anything, "ada@example.com", testLink).Return(nil)
		w, err := NewWorker(notifier, nil)
		require.NoError(t, err)

		body, _ := json.Marshal(PasswordResetPayload{Identity: "ada@example.com", ResetLink: testLink})
		assert.NoError(t, w.Mux().ProcessTask(ctx, asynq.NewTask(TaskTypePasswordReset, body)))
	})
}
