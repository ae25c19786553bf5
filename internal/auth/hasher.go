// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// HashParams are the argon2id cost parameters.
type HashParams struct {
	Time      uint32 // iterations
	MemoryKiB uint32
	Threads   uint8
	SaltLen   uint32 // bytes
	KeyLen    uint32 // bytes
}

// DefaultHashParams follows the OWASP argon2id recommendation.
func DefaultHashParams() HashParams {
	return HashParams{
		Time:      1,
		MemoryKiB: 64 * 1024,
		Threads:   4,
		SaltLen:   16,
		KeyLen:    32,
	}
}

// Validate reports parameters argon2 would accept but that are too weak to use.
func (p HashParams) Validate() error {
	switch {
	case p.Time == 0:
		return configError("argon2 time must be at least 1")
	case p.Threads == 0:
		return configError("argon2 threads must be at least 1")
	case p.MemoryKiB < 8*uint32(p.Threads):
		return configError("argon2 memory must be at least %d KiB for %d threads", 8*uint32(p.Threads), p.Threads)
	case p.SaltLen < 8:
		return configError("argon2 salt length must be at least 8 bytes, got %d", p.SaltLen)
	case p.KeyLen < 16:
		return configError("argon2 key length must be at least 16 bytes, got %d", p.KeyLen)
	}
	return nil
}

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces an encoded hash of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the encoded hash.
	// A malformed hash is a mismatch: (false, nil).
	Verify(password, hash string) (bool, error)

	// NeedsUpgrade returns true if the hash was produced with weaker
	// parameters than the hasher is configured with.
	NeedsUpgrade(hash string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id.
type Argon2idHasher struct {
	params HashParams
}

// NewArgon2idHasher creates a hasher with the given parameters.
func NewArgon2idHasher(params HashParams) (*Argon2idHasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Argon2idHasher{params: params}, nil
}

// Hash produces an argon2id hash of the password in PHC string format.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.MemoryKiB, h.params.Threads, h.params.KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if the password matches the encoded hash.
func (h *Argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	decoded, ok := decodeArgon2id(encodedHash)
	if !ok {
		return false, nil
	}

	computed := argon2.IDKey([]byte(password), decoded.salt, decoded.params.Time,
		decoded.params.MemoryKiB, decoded.params.Threads, uint32(len(decoded.key)))

	return subtle.ConstantTimeCompare(computed, decoded.key) == 1, nil
}

// NeedsUpgrade returns true for hashes that are not argon2id or were produced
// with weaker parameters than the configured ones.
func (h *Argon2idHasher) NeedsUpgrade(encodedHash string) bool {
	decoded, ok := decodeArgon2id(encodedHash)
	if !ok {
		return true
	}
	p := decoded.params
	return p.Time < h.params.Time ||
		p.MemoryKiB < h.params.MemoryKiB ||
		p.Threads < h.params.Threads ||
		uint32(len(decoded.salt)) < h.params.SaltLen ||
		uint32(len(decoded.key)) < h.params.KeyLen
}

type decodedHash struct {
	params HashParams
	salt   []byte
	key    []byte
}

// Upper bounds for parameters read back from stored hashes. A corrupted or
// hostile hash must not be able to request unbounded work.
const (
	maxDecodedMemoryKiB = 4 * 1024 * 1024
	maxDecodedTime      = 64
	maxDecodedKeyLen    = 1024
)

func decodeArgon2id(encoded string) (decodedHash, bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return decodedHash{}, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return decodedHash{}, false
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return decodedHash{}, false
	}
	if threads == 0 || threads > 255 || iterations == 0 || iterations > maxDecodedTime ||
		memory == 0 || memory > maxDecodedMemoryKiB {
		return decodedHash{}, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return decodedHash{}, false
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > maxDecodedKeyLen {
		return decodedHash{}, false
	}

	return decodedHash{
		params: HashParams{
			Time:      iterations,
			MemoryKiB: memory,
			Threads:   uint8(threads),
			SaltLen:   uint32(len(salt)),
			KeyLen:    uint32(len(key)),
		},
		salt: salt,
		key:  key,
	}, true
}
