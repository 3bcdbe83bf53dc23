// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wardkey Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Account represents a registered user identity.
type Account struct {
	ID           ulid.ULID
	DisplayName  string // canonical URL-safe slug, unique across live accounts
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewAccount creates a validated Account. The display name must already be
// canonicalized with Slugify; the password hash comes from a PasswordHasher.
func NewAccount(displayName, email, passwordHash string) (*Account, error) {
	if displayName == "" {
		return nil, oops.Code("ACCOUNT_INVALID_NAME").
			Wrapf(ErrInvalidInput, "display name cannot be empty")
	}
	if strings.TrimSpace(email) == "" {
		return nil, oops.Code("ACCOUNT_INVALID_EMAIL").
			Wrapf(ErrInvalidInput, "email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").
			Wrapf(ErrInvalidInput, "password hash cannot be empty")
	}

	now := time.Now()
	return &Account{
		ID:           ulid.Make(),
		DisplayName:  displayName,
		Email:        strings.TrimSpace(email),
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// Create stores a new account. The display-name uniqueness check and the
	// insert are one atomic operation at the storage boundary; a collision
	// reports ErrConflict. This is the authoritative enforcement -- callers
	// must not rely on a prior Exists check for correctness.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByDisplayName retrieves an account by its canonical display name.
	GetByDisplayName(ctx context.Context, displayName string) (*Account, error)

	// Exists reports whether any live account collides with the given
	// canonical display name OR the given email (case-insensitive). Used as
	// a fast-path duplicate check before Create.
	Exists(ctx context.Context, displayName, email string) (bool, error)

	// ResetPassword replaces the password hash for an account.
	ResetPassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// Delete removes an account and all of its sessions in one transaction,
	// so a concurrent token lookup sees either the old state or full
	// deletion.
	Delete(ctx context.Context, id ulid.ULID) error
}
