// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Context keys.
const (
	ctxRequestID = "httpapi.request_id"
	ctxSession   = "httpapi.session"
)

// requestID reuses a well-formed incoming id or assigns a fresh UUID.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// requestTimeout cancels the request context after d.
func requestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// accessLog logs and counts every request.
func (h *Handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if h.metrics != nil {
			h.metrics.RecordHTTP(route, status, elapsed)
		}
		h.logger.InfoContext(c.Request.Context(), "http request",
			"request_id", c.GetString(ctxRequestID),
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

func (h *Handler) recover(c *gin.Context, recovered any) {
	errutil.LogErrorContext(c.Request.Context(), h.logger, "panic serving request",
		oops.Code("HTTP_PANIC").
			With("request_id", c.GetString(ctxRequestID)).
			Errorf("%v", recovered))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
}

// RequireSession rejects requests without a valid session cookie and
// stores the session for SessionFrom.
func (h *Handler) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		handle, err := c.Cookie(h.cfg.CookieName)
		if err != nil || handle == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrInvalidSession.Error()})
			return
		}
		session, err := h.svc.Sessions.Validate(c.Request.Context(), handle)
		if err != nil {
			h.writeError(c, err)
			c.Abort()
			return
		}
		c.Set(ctxSession, session)
		c.Next()
	}
}

// SessionFrom returns the session stored by RequireSession.
func SessionFrom(c *gin.Context) (*auth.Session, bool) {
	v, ok := c.Get(ctxSession)
	if !ok {
		return nil, false
	}
	s, ok := v.(*auth.Session)
	return s, ok
}
