// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/samber/oops"
)

// MinTokenBytes is the smallest accepted token size (256 bits).
const MinTokenBytes = 32

// DefaultTokenBytes is the size of session handles and reset tokens.
// 32 bytes render as 64 hex characters.
const DefaultTokenBytes = 32

// GenerateToken returns byteLen bytes from crypto/rand as lowercase hex.
func GenerateToken(byteLen int) (string, error) {
	if byteLen < MinTokenBytes {
		return "", configError("token length must be at least %d bytes, got %d", MinTokenBytes, byteLen)
	}
	buf := make([]byte, byteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("TOKEN_GENERATE_FAILED").Wrap(err)
	}
	return hex.EncodeToString(buf), nil
}

// HashToken returns the SHA-256 digest of a token as hex. Only digests are
// persisted, so a store dump does not yield usable tokens.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ValidTokenFormat reports whether token looks like a value produced by
// GenerateToken(byteLen).
func ValidTokenFormat(token string, byteLen int) bool {
	if len(token) != 2*byteLen {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
