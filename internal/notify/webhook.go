// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
)

// DefaultWebhookTimeout bounds one delivery attempt.
const DefaultWebhookTimeout = 10 * time.Second

// WebhookConfig configures a WebhookNotifier.
type WebhookConfig struct {
	URL string
	// BearerToken is sent as an Authorization header when set.
	BearerToken string
	Timeout     time.Duration
}

type webhookMessage struct {
	Type      string `json:"type"`
	Identity  string `json:"identity"`
	ResetLink string `json:"reset_link"`
}

// WebhookNotifier posts reset links as JSON to a mail relay.
type WebhookNotifier struct {
	url    string
	token  string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(cfg WebhookConfig) (*WebhookNotifier, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, oops.Code("CONFIG_INVALID").
			With("url", cfg.URL).
			Wrapf(auth.ErrConfiguration, "webhook url must be an absolute http(s) URL")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return &WebhookNotifier{
		url:    u.String(),
		token:  cfg.BearerToken,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// SendPasswordReset posts the link. Any non-2xx response is an error.
func (n *WebhookNotifier) SendPasswordReset(ctx context.Context, identity, resetLink string) error {
	body, err := json.Marshal(webhookMessage{Type: TaskTypePasswordReset, Identity: identity, ResetLink: resetLink})
	if err != nil {
		return oops.Code("NOTIFY_ENCODE_FAILED").Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return oops.Code("NOTIFY_WEBHOOK_FAILED").With("operation", "build request").Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return oops.Code("NOTIFY_WEBHOOK_FAILED").With("operation", "post").Wrap(err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return oops.Code("NOTIFY_WEBHOOK_REJECTED").
			With("status", resp.StatusCode).
			Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

var _ auth.Notifier = (*WebhookNotifier)(nil)
