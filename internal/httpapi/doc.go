// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the credential authority as a JSON API.
//
// Routes:
//
//	POST /auth/login            password login, sets the session cookie
//	POST /auth/logout           destroys the session, clears the cookie
//	GET  /auth/session          describes the current session
//	POST /auth/forgot-password  starts a password reset
//	POST /auth/reset-password   completes a password reset
//
// Every error response is {"error": "<message>"}; validation failures add
// a "fields" object. Messages never reveal whether an account exists.
package httpapi
