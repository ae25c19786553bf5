// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/samber/oops"
)

// ErrNotFound is returned by repositories when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned by repositories when a unique key is taken.
var ErrAlreadyExists = errors.New("already exists")

// Error categories. Every error returned by an orchestrator matches exactly one
// of these through errors.Is.
var (
	ErrValidation       = errors.New("validation failed")
	ErrThrottled        = errors.New("too many attempts")
	ErrAuthentication   = errors.New("authentication failed")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrConfiguration    = errors.New("invalid configuration")
)

// authError is an authentication failure with a fixed external message.
type authError struct {
	msg string
}

func (e *authError) Error() string { return e.msg }

func (e *authError) Is(target error) bool { return target == ErrAuthentication }

// Authentication failures. Each collapses several internal causes into one
// message that is safe to show to clients.
var (
	ErrInvalidCredentials error = &authError{msg: "invalid email or password"}
	ErrInvalidResetToken  error = &authError{msg: "invalid or expired reset token"}
	ErrInvalidSession     error = &authError{msg: "invalid session"}
)

// ValidationError reports malformed input. Fields maps an input field name to
// a message that may be shown to the client.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// add records a field message, keeping the first message per field.
func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// errOrNil returns e when it holds at least one field, nil otherwise.
func (e *ValidationError) errOrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return oops.Code("VALIDATION_FAILED").With("fields", slices.Sorted(maps.Keys(e.Fields))).Wrap(e)
}

// ThrottledError reports a rate limit rejection together with the limiter
// state that clients are allowed to see.
type ThrottledError struct {
	Decision Decision
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("too many attempts: limit %d, resets at %s", e.Decision.Limit, e.Decision.ResetAt.UTC().Format("15:04:05"))
}

func (e *ThrottledError) Is(target error) bool { return target == ErrThrottled }

// storeError marks err as a collaborator failure.
func storeError(code, operation string, err error) error {
	return oops.Code(code).
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
}

// configError marks a misconfiguration detected at construction time.
func configError(format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").Wrap(fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...)))
}
