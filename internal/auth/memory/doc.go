// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides in-process implementations of the auth stores.
// State is lost on restart and is not shared between replicas, so these
// stores suit tests, development and single-instance deployments.
package memory
