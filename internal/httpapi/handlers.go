// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

type loginBody struct {
	Identity string `json:"identity"`
	Secret   string `json:"secret"`
}

type forgotPasswordBody struct {
	Identity string `json:"identity"`
}

type resetPasswordBody struct {
	Token  string `json:"token"`
	Secret string `json:"secret"`
}

type sessionResponse struct {
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
}

// login counts every attempt, malformed ones included, before rejecting it.
func (h *Handler) login(c *gin.Context) {
	var body loginBody
	bodyErr := h.decodeJSON(c, &body)

	result, err := h.svc.Login.Login(c.Request.Context(), auth.LoginRequest{
		Identity:  body.Identity,
		Password:  body.Secret,
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		BodyErr:   bodyErr,
	})
	if h.metrics != nil {
		h.metrics.RecordLogin(err)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	setRateLimitHeaders(c, result.RateLimit)
	h.setSessionCookie(c, result.Handle, result.Session.ExpiresAt)
	ok(c)
}

// logout always succeeds and clears the cookie, even without a session.
func (h *Handler) logout(c *gin.Context) {
	if handle, err := c.Cookie(h.cfg.CookieName); err == nil && handle != "" {
		if err := h.svc.Sessions.Destroy(c.Request.Context(), handle); err != nil {
			errutil.LogErrorContext(c.Request.Context(), h.logger, "failed to destroy session", err)
		}
	}
	h.clearSessionCookie(c)
	ok(c)
}

func (h *Handler) session(c *gin.Context) {
	s, found := SessionFrom(c)
	if !found {
		c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrInvalidSession.Error()})
		return
	}
	c.JSON(http.StatusOK, sessionResponse{Identity: s.Identity, ExpiresAt: s.ExpiresAt.UTC()})
}

// forgotPassword answers the same way whether or not the account exists.
func (h *Handler) forgotPassword(c *gin.Context) {
	var body forgotPasswordBody
	bodyErr := h.decodeJSON(c, &body)

	err := h.svc.Reset.RequestReset(c.Request.Context(), auth.ResetRequest{
		Identity: body.Identity,
		ClientIP: c.ClientIP(),
		BodyErr:  bodyErr,
	})
	if h.metrics != nil {
		h.metrics.RecordResetRequest(err)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c)
}

func (h *Handler) resetPassword(c *gin.Context) {
	var body resetPasswordBody
	if err := h.decodeJSON(c, &body); err != nil {
		h.writeError(c, err)
		return
	}

	err := h.svc.Reset.ConfirmReset(c.Request.Context(), auth.ResetConfirmation{
		Token:    body.Token,
		Password: body.Secret,
	})
	if h.metrics != nil {
		h.metrics.RecordResetConfirm(err)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c)
}

func (h *Handler) setSessionCookie(c *gin.Context, handle string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 1 {
		maxAge = int(h.svc.Sessions.TTL().Seconds())
	}
	c.SetCookieData(&http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    handle,
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		MaxAge:   maxAge,
		Secure:   h.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: h.cfg.CookieSameSite,
	})
}

func (h *Handler) clearSessionCookie(c *gin.Context) {
	c.SetCookieData(&http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		MaxAge:   -1,
		Secure:   h.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: h.cfg.CookieSameSite,
	})
}
