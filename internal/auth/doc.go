// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth implements the credential and token authority: password
// login under a rate limit, opaque server-side sessions, and single-use
// password reset tokens.
//
// # Components
//
// Leaf components have no dependencies beyond their store interfaces:
//   - Argon2idHasher - password hashing and constant-time verification
//   - GenerateToken / HashToken - random hex tokens and their stored digests
//   - RateLimiter - fixed-window attempt counting over a CounterStore
//   - SessionAuthority - session handles over a SessionRepository
//   - ResetTokenAuthority - reset tokens over a ResetTokenRepository
//
// Orchestrators compose them:
//   - LoginService - throttle, validate, verify, create session
//   - ResetService - request and confirm phases of a password reset
//
// Constructors validate their dependencies and configuration and return an
// error wrapping ErrConfiguration for unusable settings.
//
// # Errors
//
// Every error returned by an orchestrator matches one category through
// errors.Is: ErrValidation, ErrThrottled, ErrAuthentication,
// ErrStoreUnavailable or ErrConfiguration. Authentication failures are
// deliberately coarse: ErrInvalidCredentials, ErrInvalidResetToken and
// ErrInvalidSession each cover several internal causes.
//
// Only SHA-256 digests of session handles and reset tokens are persisted.
package auth
