// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func setupJSON(t *testing.T, buf *bytes.Buffer, level string) *slog.Logger {
	t.Helper()
	logger, err := Setup(Options{Service: "gatekeeper", Version: "1.0.0", Format: "json", Level: level}, buf)
	require.NoError(t, err)
	return logger
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "Failed to parse JSON: %s", buf.String())
	return entry
}

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := setupJSON(t, &buf, "")

	logger.Info("test message")

	entry := decode(t, &buf)
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "gatekeeper", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Contains(t, entry, "time", "time field missing")
	assert.Contains(t, entry, "level", "level field missing")
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Options{Service: "worker", Format: "text"}, &buf)
	require.NoError(t, err)

	logger.Info("test message")

	output := buf.String()
	assert.Contains(t, output, "test message", "Output missing message")
	assert.Contains(t, output, "worker", "Output missing service")
}

func TestSetup_InvalidOptions(t *testing.T) {
	_, err := Setup(Options{Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)

	_, err = Setup(Options{Level: "verbose"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestSetup_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := setupJSON(t, &buf, "warn")

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Equal(t, "kept", decode(t, &buf)["msg"])
}

func TestHandler_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := setupJSON(t, &buf, "debug")

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	logger.InfoContext(ctx, "traced message")

	entry := decode(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestHandler_NoTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := setupJSON(t, &buf, "")

	logger.Info("untraced")

	entry := decode(t, &buf)
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
}

func TestHandler_RedactsSensitiveAttributes(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"password", "password"},
		{"password hash", "password_hash"},
		{"reset link", "reset_link"},
		{"token", "token"},
		{"mixed case", "Secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := setupJSON(t, &buf, "")

			logger.Info("sensitive", tt.key, "hunter2")

			entry := decode(t, &buf)
			assert.Equal(t, Redacted, entry[tt.key])
			assert.NotContains(t, buf.String(), "hunter2")
		})
	}
}

func TestHandler_WithAttrsKeepsService(t *testing.T) {
	var buf bytes.Buffer
	logger := setupJSON(t, &buf, "").With("component", "httpapi").WithGroup("req")

	logger.Info("grouped", "path", "/auth/login")

	entry := decode(t, &buf)
	assert.Equal(t, "httpapi", entry["component"])
	req, ok := entry["req"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/auth/login", req["path"])
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	logger, err := SetDefault(Options{Service: "test-service", Version: "2.0.0"})
	require.NoError(t, err)

	assert.Same(t, logger, slog.Default())
}
