// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/gatekeeper/internal/auth"
)

// Outcome labels shared by the login and reset counters.
const (
	ResultSuccess      = "success"
	ResultInvalid      = "invalid"
	ResultThrottled    = "throttled"
	ResultValidation   = "validation"
	ResultUnavailable  = "unavailable"
	ResultError        = "error"
	ResultNotifyFailed = "notify_failed"
)

// Metrics contains the Prometheus metrics for gatekeeper.
type Metrics struct {
	LoginAttempts      *prometheus.CounterVec
	ResetRequests      *prometheus.CounterVec
	ResetConfirms      *prometheus.CounterVec
	RateLimitDecisions *prometheus.CounterVec
	SessionsCreated    prometheus.Counter
	SweptRecords       *prometheus.CounterVec
	Notifications      *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// NewMetrics creates and registers gatekeeper metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_login_attempts_total",
				Help: "Total number of login attempts by result",
			},
			[]string{"result"},
		),
		ResetRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_reset_requests_total",
				Help: "Total number of password reset requests by result",
			},
			[]string{"result"},
		),
		ResetConfirms: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_reset_confirms_total",
				Help: "Total number of password reset confirmations by result",
			},
			[]string{"result"},
		),
		RateLimitDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_rate_limit_decisions_total",
				Help: "Total number of rate limit decisions by scope and outcome",
			},
			[]string{"scope", "allowed"},
		),
		SessionsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatekeeper_sessions_created_total",
				Help: "Total number of sessions issued",
			},
		),
		SweptRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_swept_records_total",
				Help: "Total number of expired records removed by kind",
			},
			[]string{"kind"},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_notifications_total",
				Help: "Total number of reset link deliveries by result",
			},
			[]string{"result"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_http_requests_total",
				Help: "Total number of HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatekeeper_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	reg.MustRegister(
		m.LoginAttempts,
		m.ResetRequests,
		m.ResetConfirms,
		m.RateLimitDecisions,
		m.SessionsCreated,
		m.SweptRecords,
		m.Notifications,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// ResultOf maps an orchestrator error to an outcome label.
func ResultOf(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, auth.ErrThrottled):
		return ResultThrottled
	case errors.Is(err, auth.ErrValidation):
		return ResultValidation
	case errors.Is(err, auth.ErrAuthentication):
		return ResultInvalid
	case errors.Is(err, auth.ErrStoreUnavailable):
		return ResultUnavailable
	default:
		return ResultError
	}
}

// RecordLogin counts one login attempt.
func (m *Metrics) RecordLogin(err error) {
	result := ResultOf(err)
	m.LoginAttempts.WithLabelValues(result).Inc()
	if result == ResultSuccess {
		m.SessionsCreated.Inc()
	}
}

// RecordResetRequest counts one reset request.
func (m *Metrics) RecordResetRequest(err error) {
	m.ResetRequests.WithLabelValues(ResultOf(err)).Inc()
}

// RecordResetConfirm counts one reset confirmation.
func (m *Metrics) RecordResetConfirm(err error) {
	m.ResetConfirms.WithLabelValues(ResultOf(err)).Inc()
}

// RecordDecision counts one rate limit decision.
func (m *Metrics) RecordDecision(scope string, d auth.Decision) {
	m.RateLimitDecisions.WithLabelValues(scope, strconv.FormatBool(d.Allowed)).Inc()
}

// RecordSweep counts records removed by a sweep. Suitable for Sweeper.OnSwept.
func (m *Metrics) RecordSweep(r auth.SweepResult) {
	m.SweptRecords.WithLabelValues("session").Add(float64(r.Sessions))
	m.SweptRecords.WithLabelValues("reset_token").Add(float64(r.ResetTokens))
}

// RecordHTTP counts one served request. route is the matched pattern, not
// the raw path.
func (m *Metrics) RecordHTTP(route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// InstrumentNotifier counts deliveries made through n.
func InstrumentNotifier(n auth.Notifier, m *Metrics) auth.Notifier {
	return &countingNotifier{next: n, metrics: m}
}

type countingNotifier struct {
	next    auth.Notifier
	metrics *Metrics
}

func (c *countingNotifier) SendPasswordReset(ctx context.Context, identity, resetLink string) error {
	err := c.next.SendPasswordReset(ctx, identity, resetLink)
	result := ResultSuccess
	if err != nil {
		result = ResultNotifyFailed
	}
	c.metrics.Notifications.WithLabelValues(result).Inc()
	return err //nolint:wrapcheck // transparent decorator
}
