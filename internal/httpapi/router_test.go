// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/httpapi"
)

type stubLogin struct {
	err     error
	panics  bool
	lastReq auth.LoginRequest
}

func (s *stubLogin) Login(_ context.Context, req auth.LoginRequest) (*auth.LoginResult, error) {
	s.lastReq = req
	if s.panics {
		panic("boom")
	}
	if s.err != nil {
		return nil, s.err
	}
	return &auth.LoginResult{
		Handle:    "handle",
		Session:   &auth.Session{Identity: req.Identity, ExpiresAt: time.Now().Add(time.Hour)},
		RateLimit: auth.Decision{Allowed: true, Limit: 5, Remaining: 4, ResetAt: time.Now().Add(time.Minute)},
	}, nil
}

type stubReset struct{ err error }

func (s *stubReset) RequestReset(context.Context, auth.ResetRequest) error      { return s.err }
func (s *stubReset) ConfirmReset(context.Context, auth.ResetConfirmation) error { return s.err }

type stubSessions struct{}

func (stubSessions) Validate(context.Context, string) (*auth.Session, error) {
	return nil, oops.Code("SESSION_INVALID").Wrap(auth.ErrInvalidSession)
}
func (stubSessions) Destroy(context.Context, string) error { return nil }
func (stubSessions) TTL() time.Duration                    { return time.Hour }

func newStubAPI(t *testing.T, login *stubLogin, reset *stubReset, cfg httpapi.Config) *testAPI {
	t.Helper()
	router, err := httpapi.NewRouter(httpapi.Services{Login: login, Reset: reset, Sessions: stubSessions{}}, cfg, nil, nil)
	require.NoError(t, err)
	return &testAPI{router: router}
}

func TestNewRouter_RequiresServices(t *testing.T) {
	_, err := httpapi.NewRouter(httpapi.Services{}, httpapi.DefaultConfig(), nil, nil)
	require.Error(t, err)

	_, err = httpapi.NewRouter(httpapi.Services{Login: &stubLogin{}}, httpapi.DefaultConfig(), nil, nil)
	require.Error(t, err)
}

func TestNewRouter_RejectsInvalidTrustedProxy(t *testing.T) {
	cfg := httpapi.DefaultConfig()
	cfg.TrustProxy = true
	cfg.TrustedProxies = []string{"not-an-address"}

	_, err := httpapi.NewRouter(httpapi.Services{Login: &stubLogin{}, Reset: &stubReset{}, Sessions: stubSessions{}}, cfg, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrConfiguration)
}

func TestRouter_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{
			name:   "store unavailable",
			err:    oops.Code("AUTH_LOGIN_FAILED").Wrap(auth.ErrStoreUnavailable),
			status: http.StatusServiceUnavailable,
			body:   `{"error":"service temporarily unavailable"}`,
		},
		{
			name:   "unexpected error",
			err:    errors.New("database password is hunter2"),
			status: http.StatusInternalServerError,
			body:   `{"error":"internal error"}`,
		},
		{
			name:   "authentication",
			err:    oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(auth.ErrInvalidCredentials),
			status: http.StatusUnauthorized,
			body:   `{"error":"invalid email or password"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newStubAPI(t, &stubLogin{err: tt.err}, &stubReset{err: tt.err}, httpapi.DefaultConfig())

			rec := api.do(http.MethodPost, "/auth/login", loginJSON(aliceEmail, alicePassword))
			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())

			rec = api.do(http.MethodPost, "/auth/forgot-password", `{"identity":"alice@example.com"}`)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestRouter_RecoversFromPanic(t *testing.T) {
	api := newStubAPI(t, &stubLogin{panics: true}, &stubReset{}, httpapi.DefaultConfig())

	rec := api.do(http.MethodPost, "/auth/login", loginJSON(aliceEmail, alicePassword))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}

func TestRouter_ClientIP(t *testing.T) {
	tests := []struct {
		name    string
		cfg     func(*httpapi.Config)
		headers map[string]string
		want    string
	}{
		{
			name:    "proxy headers ignored by default",
			cfg:     func(*httpapi.Config) {},
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9"},
			want:    "10.0.0.1",
		},
		{
			name:    "trusted proxy uses forwarded header",
			cfg:     func(c *httpapi.Config) { c.TrustProxy = true },
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9"},
			want:    "203.0.113.9",
		},
		{
			name: "custom forwarded header",
			cfg: func(c *httpapi.Config) {
				c.TrustProxy = true
				c.ForwardedHeader = "X-Real-IP"
			},
			headers: map[string]string{"X-Real-IP": "198.51.100.7", "X-Forwarded-For": "203.0.113.9"},
			want:    "198.51.100.7",
		},
		{
			name: "untrusted peer",
			cfg: func(c *httpapi.Config) {
				c.TrustProxy = true
				c.TrustedProxies = []string{"192.168.0.0/16"}
			},
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9"},
			want:    "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := httpapi.DefaultConfig()
			tt.cfg(&cfg)
			login := &stubLogin{}
			api := newStubAPI(t, login, &stubReset{}, cfg)

			opts := []requestOption{withRemoteAddr("10.0.0.1:40000")}
			for k, v := range tt.headers {
				opts = append(opts, withHeader(k, v))
			}
			rec := api.do(http.MethodPost, "/auth/login", loginJSON(aliceEmail, alicePassword), opts...)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, login.lastReq.ClientIP)
		})
	}
}

func TestRouter_RequestID(t *testing.T) {
	api := newStubAPI(t, &stubLogin{}, &stubReset{}, httpapi.DefaultConfig())

	rec := api.do(http.MethodPost, "/auth/logout", "")
	generated := rec.Header().Get(httpapi.RequestIDHeader)
	_, err := uuid.Parse(generated)
	require.NoError(t, err)

	incoming := uuid.NewString()
	rec = api.do(http.MethodPost, "/auth/logout", "", withHeader(httpapi.RequestIDHeader, incoming))
	assert.Equal(t, incoming, rec.Header().Get(httpapi.RequestIDHeader))

	rec = api.do(http.MethodPost, "/auth/logout", "", withHeader(httpapi.RequestIDHeader, "<script>"))
	assert.NotEqual(t, "<script>", rec.Header().Get(httpapi.RequestIDHeader))
}

func TestRouter_CookieSettings(t *testing.T) {
	cfg := httpapi.DefaultConfig()
	cfg.CookieName = "sid"
	cfg.CookieDomain = "example.com"
	cfg.CookieSecure = false
	cfg.CookieSameSite = http.SameSiteStrictMode
	api := newStubAPI(t, &stubLogin{}, &stubReset{}, cfg)

	rec := api.do(http.MethodPost, "/auth/login", loginJSON(aliceEmail, alicePassword))
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "sid", c.Name)
	assert.Equal(t, "handle", c.Value)
	assert.Equal(t, "example.com", c.Domain)
	assert.False(t, c.Secure)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
}

func TestRouter_CORS(t *testing.T) {
	cfg := httpapi.DefaultConfig()
	cfg.CORSAllowedOrigins = []string{"https://app.example.com"}
	api := newStubAPI(t, &stubLogin{}, &stubReset{}, cfg)

	rec := api.do(http.MethodOptions, "/auth/login", "",
		withHeader("Origin", "https://app.example.com"),
		withHeader("Access-Control-Request-Method", http.MethodPost),
	)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = api.do(http.MethodOptions, "/auth/login", "",
		withHeader("Origin", "https://evil.example.com"),
		withHeader("Access-Control-Request-Method", http.MethodPost),
	)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_NotFound(t *testing.T) {
	api := newStubAPI(t, &stubLogin{}, &stubReset{}, httpapi.DefaultConfig())

	rec := api.do(http.MethodGet, "/admin", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())
}
