// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wardkey Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	// SessionTokenBytes is the entropy of a bearer token. 32 bytes keeps the
	// probability of ever generating the same token twice negligible, which
	// is what prevents a revoked token from resurrecting.
	SessionTokenBytes = 32 // 32 bytes = 64 hex chars

	// DefaultDeviceLabel is used when the client supplies no device label.
	DefaultDeviceLabel = "Unknown device"
)

// Session is an opaque bearer credential bound to one account and one
// device. The plaintext token is never stored; only its SHA-256 hash is.
// Sessions are immutable once issued -- rotation means issuing a new one and
// deleting the old.
type Session struct {
	ID          ulid.ULID
	AccountID   ulid.ULID
	TokenHash   string
	DeviceLabel string
	IssuedAt    time.Time
}

// NewSession creates a validated Session. An empty device label falls back
// to DefaultDeviceLabel.
func NewSession(accountID ulid.ULID, tokenHash, deviceLabel string) (*Session, error) {
	if accountID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_ACCOUNT").Errorf("account ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if deviceLabel == "" {
		deviceLabel = DefaultDeviceLabel
	}

	return &Session{
		ID:          ulid.Make(),
		AccountID:   accountID,
		TokenHash:   tokenHash,
		DeviceLabel: deviceLabel,
		IssuedAt:    time.Now(),
	}, nil
}

// GenerateSessionToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
// The plaintext token goes to the client; the hash is stored.
func GenerateSessionToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	hash = HashSessionToken(token)

	return token, hash, nil
}

// HashSessionToken computes the SHA-256 hash of a session token for storage
// and lookup.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifySessionToken checks if the plaintext token matches the stored hash
// using a constant-time comparison.
func VerifySessionToken(token, hash string) (bool, error) {
	if token == "" {
		return false, oops.Code("SESSION_TOKEN_EMPTY").Errorf("session token cannot be empty")
	}
	if hash == "" {
		return false, oops.Code("SESSION_HASH_EMPTY").Errorf("stored hash cannot be empty")
	}
	computed := HashSessionToken(token)
	// Both are hex-encoded SHA-256 hashes (64 chars)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1, nil
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session. A token-hash collision with a live
	// session reports ErrConflict so the caller can retry with a fresh
	// token.
	Create(ctx context.Context, session *Session) error

	// GetByTokenHash retrieves a session by its token hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// ListByAccount retrieves all sessions for an account, ordered by
	// issuance time.
	ListByAccount(ctx context.Context, accountID ulid.ULID) ([]*Session, error)

	// Delete removes a session by ID.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteByAccount removes all sessions for an account and returns the
	// count of deleted records.
	DeleteByAccount(ctx context.Context, accountID ulid.ULID) (int64, error)
}
