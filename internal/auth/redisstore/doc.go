// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package redisstore provides Redis implementations of the auth counter and
// session stores. Every key is namespaced by a configurable prefix.
//
// Scripts declare every key they touch in KEYS. The session scripts touch a
// session key and its identity index together, so on Redis Cluster the prefix
// must carry a hash tag, e.g. "{gatekeeper}:", to keep them in one slot.
package redisstore
