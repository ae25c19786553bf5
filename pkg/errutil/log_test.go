// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeeper/pkg/errutil"
)

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("TEST_ERROR").
		With("key", "value").
		Errorf("something failed")

	errutil.LogError(logger, "operation failed", err)

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Equal(t, "operation failed", logEntry["msg"])
	assert.Equal(t, "TEST_ERROR", logEntry["code"])
	ctx, ok := logEntry["context"].(map[string]any)
	require.True(t, ok, "context should be an object")
	assert.Equal(t, "value", ctx["key"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := errors.New("standard error")

	errutil.LogError(logger, "operation failed", err)

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Contains(t, logEntry["error"], "standard error")
	assert.NotContains(t, logEntry, "code")
}

func TestLogErrorContext_PassesContext(t *testing.T) {
	type ctxKey struct{}
	var seen context.Context
	handler := &recordingHandler{onHandle: func(ctx context.Context) { seen = ctx }}
	logger := slog.New(handler)

	ctx := context.WithValue(context.Background(), ctxKey{}, "request-1")
	errutil.LogErrorContext(ctx, logger, "failed", errors.New("boom"))

	require.NotNil(t, seen)
	assert.Equal(t, "request-1", seen.Value(ctxKey{}))
}

func TestCode(t *testing.T) {
	assert.Equal(t, "MY_CODE", errutil.Code(oops.Code("MY_CODE").Errorf("x")))
	assert.Equal(t, "", errutil.Code(errors.New("plain")))
	assert.Equal(t, "", errutil.Code(oops.Errorf("no code")))
}

type recordingHandler struct {
	onHandle func(ctx context.Context)
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(ctx context.Context, _ slog.Record) error {
	h.onHandle(ctx)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *recordingHandler) WithGroup(string) slog.Handler { return h }
