// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

// Client-facing messages.
const (
	msgValidation  = "validation failed"
	msgThrottled   = "too many attempts"
	msgUnavailable = "service temporarily unavailable"
	msgInternal    = "internal error"
	msgTooLarge    = "request body too large"
)

// errBodyTooLarge is reported as 413.
var errBodyTooLarge = errors.New("request body too large")

// decodeJSON reads exactly one JSON object of at most MaxBodyBytes and
// rejects unknown fields.
func (h *Handler) decodeJSON(c *gin.Context, dst any) error {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		if errors.Is(err, io.EOF) {
			return auth.NewValidationError("body", "Request body is required")
		}
		return auth.NewValidationError("body", "Request body must be a JSON object with known fields")
	}
	if dec.More() {
		return auth.NewValidationError("body", "Request body must contain a single JSON object")
	}
	return nil
}

// writeError maps an error category to a status and a fixed message.
// Internal detail is logged, never returned.
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		throttled *auth.ThrottledError
		invalid   *auth.ValidationError
	)
	switch {
	case errors.Is(err, errBodyTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": msgTooLarge})
	case errors.As(err, &throttled):
		setRateLimitHeaders(c, throttled.Decision)
		c.Header("Retry-After", strconv.Itoa(int(throttled.Decision.RetryAfter(time.Now()).Seconds())))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": msgThrottled})
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": msgValidation, "fields": invalid.Fields})
	case errors.Is(err, auth.ErrInvalidResetToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": auth.ErrInvalidResetToken.Error()})
	case errors.Is(err, auth.ErrInvalidSession):
		c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrInvalidSession.Error()})
	case errors.Is(err, auth.ErrAuthentication):
		c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrInvalidCredentials.Error()})
	case errors.Is(err, auth.ErrStoreUnavailable):
		h.logError(c, "store unavailable", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgUnavailable})
	default:
		h.logError(c, "request failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
	}
}

func (h *Handler) logError(c *gin.Context, msg string, err error) {
	errutil.LogErrorContext(c.Request.Context(), h.logger, msg,
		oops.With("request_id", c.GetString(ctxRequestID)).
			With("route", c.FullPath()).
			Wrap(err))
}

func setRateLimitHeaders(c *gin.Context, d auth.Decision) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

func ok(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
