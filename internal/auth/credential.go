// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"net/mail"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// Input bounds.
const (
	MaxIdentityLength = 254
	MaxPasswordLength = 1024
)

// Credential is an account's login identity and password hash.
type Credential struct {
	ID       ulid.ULID
	Identity string
	// PasswordHash is nil for accounts that can only sign in through an
	// external identity provider.
	PasswordHash *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword reports whether the credential can be used for password login.
func (c *Credential) HasPassword() bool {
	return c.PasswordHash != nil && *c.PasswordHash != ""
}

// NewCredential creates a credential for identity with an optional password hash.
func NewCredential(identity string, passwordHash *string) (*Credential, error) {
	normalized := NormalizeIdentity(identity)
	if err := ValidateIdentity(normalized); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Credential{
		ID:           ulid.Make(),
		Identity:     normalized,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// CredentialRepository manages credential persistence.
type CredentialRepository interface {
	// GetByIdentity returns ErrNotFound when no credential has this identity.
	GetByIdentity(ctx context.Context, identity string) (*Credential, error)

	// UpdatePassword replaces the password hash. Returns ErrNotFound when
	// the identity does not exist.
	UpdatePassword(ctx context.Context, identity, passwordHash string) error

	// Create stores a new credential. Returns ErrAlreadyExists when the
	// identity is taken.
	Create(ctx context.Context, c *Credential) error
}

// NormalizeIdentity trims whitespace and lower-cases an identity.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// ValidateIdentity checks that identity is a bare email address.
func ValidateIdentity(identity string) error {
	ve := &ValidationError{}
	validateIdentity(ve, "identity", identity)
	return ve.errOrNil()
}

func validateIdentity(ve *ValidationError, field, identity string) {
	switch {
	case identity == "":
		ve.add(field, "Email is required")
	case len(identity) > MaxIdentityLength:
		ve.add(field, "Email is too long")
	default:
		addr, err := mail.ParseAddress(identity)
		if err != nil || addr.Address != identity || addr.Name != "" {
			ve.add(field, "Invalid email address")
		}
	}
}

// PasswordPolicy constrains new passwords.
type PasswordPolicy struct {
	MinLength int
}

// DefaultPasswordPolicy requires at least 8 characters.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: 8}
}

// Validate reports a ValidationError on the "password" field when password
// does not satisfy the policy.
func (p PasswordPolicy) Validate(password string) error {
	ve := &ValidationError{}
	p.check(ve, "password", password)
	return ve.errOrNil()
}

func (p PasswordPolicy) check(ve *ValidationError, field, password string) {
	n := utf8.RuneCountInString(password)
	switch {
	case n < p.MinLength:
		ve.add(field, passwordTooShort(p.MinLength))
	case len(password) > MaxPasswordLength:
		ve.add(field, "Password is too long")
	}
}

func passwordTooShort(minLength int) string {
	if minLength == 1 {
		return "Password is required"
	}
	return "Password must be at least " + strconv.Itoa(minLength) + " characters"
}
