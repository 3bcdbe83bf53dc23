// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wardkey Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// tokenRetryAttempts bounds regeneration when a freshly generated token
// collides with a live session. With 256-bit tokens a single retry should
// never happen in practice.
const tokenRetryAttempts = 3

// Service orchestrates registration, credential verification, session
// issuance, and revocation over the two repositories and the hasher.
type Service struct {
	accounts AccountRepository
	sessions SessionRepository
	hasher   PasswordHasher
	logger   *slog.Logger
}

// NewService creates a new Service. All dependencies are required.
func NewService(accounts AccountRepository, sessions SessionRepository, hasher PasswordHasher) (*Service, error) {
	return NewServiceWithLogger(accounts, sessions, hasher, slog.Default())
}

// NewServiceWithLogger creates a new Service with an explicit logger.
func NewServiceWithLogger(accounts AccountRepository, sessions SessionRepository, hasher PasswordHasher, logger *slog.Logger) (*Service, error) {
	if accounts == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("accounts repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("sessions repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("logger is required")
	}
	return &Service{
		accounts: accounts,
		sessions: sessions,
		hasher:   hasher,
		logger:   logger,
	}, nil
}

// dummyPasswordHash is verified when a login identifier doesn't resolve, so
// response time stays flat. It matches no password.
//
//nolint:gosec // not a credential
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Register creates a new account. The display name is canonicalized with
// Slugify (ErrInvalidInput on failure). A fast-path duplicate check reports
// ErrConflict "duplicate login"; the authoritative, race-safe enforcement is
// the atomic Create, whose storage-level collision surfaces as ErrConflict
// "name already exists". No session is issued.
func (s *Service) Register(ctx context.Context, displayName, email, password string) (*Account, error) {
	slug, err := Slugify(displayName)
	if err != nil {
		return nil, err
	}

	// Friendly-error pass only; two concurrent registrants can both get
	// false here. Correctness comes from Create below.
	taken, err := s.accounts.Exists(ctx, slug, email)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "check existing accounts").
			Wrap(err)
	}
	if taken {
		return nil, oops.Code("AUTH_DUPLICATE_LOGIN").
			With("display_name", slug).
			Wrapf(ErrConflict, "duplicate login")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	account, err := NewAccount(slug, email, hash)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrConflict) {
			// A concurrent registrant won the race for this name.
			return nil, oops.Code("AUTH_NAME_TAKEN").
				With("display_name", slug).
				Wrapf(ErrConflict, "name already exists")
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create account").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "account registered", "account_id", account.ID.String(), "display_name", slug)
	return account, nil
}

// Login verifies credentials and issues a session for the given device.
// Unknown login and wrong password collapse into the same ErrUnauthorized
// outcome, and verification runs against a dummy hash when the identifier
// does not resolve so that timing stays uniform.
func (s *Service) Login(ctx context.Context, login, password, deviceLabel string) (*Account, *Session, string, error) {
	account, err := s.verifyCredentials(ctx, login, password)
	if err != nil {
		return nil, nil, "", err
	}

	session, token, err := s.issueSession(ctx, account.ID, deviceLabel)
	if err != nil {
		return nil, nil, "", err
	}

	s.logger.InfoContext(ctx, "session issued",
		"account_id", account.ID.String(),
		"session_id", session.ID.String(),
		"device_label", session.DeviceLabel)
	return account, session, token, nil
}

// ListSessions returns all sessions for an account, ordered by issuance
// time.
func (s *Service) ListSessions(ctx context.Context, accountID ulid.ULID) ([]*Session, error) {
	sessions, err := s.sessions.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return sessions, nil
}

// Logout revokes the session identified by the bearer token. A token with
// no live session reports ErrNotFound.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return oops.Code("SESSION_NOT_FOUND").Wrapf(ErrNotFound, "no such session")
	}

	session, err := s.sessions.GetByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("SESSION_NOT_FOUND").Wrapf(ErrNotFound, "no such session")
		}
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Revoked concurrently; the logout goal is met either way.
			return oops.Code("SESSION_NOT_FOUND").Wrapf(ErrNotFound, "no such session")
		}
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete session").
			With("session_id", session.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "session revoked", "session_id", session.ID.String())
	return nil
}

// ResolveSession resolves a bearer token to its owning account. Any failure
// to resolve reports ErrUnauthenticated; the caller decides the
// transport-level consequence.
func (s *Service) ResolveSession(ctx context.Context, token string) (*Account, error) {
	if token == "" {
		return nil, oops.Code("SESSION_INVALID").Wrapf(ErrUnauthenticated, "invalid session token")
	}

	session, err := s.sessions.GetByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("SESSION_INVALID").Wrapf(ErrUnauthenticated, "invalid session token")
		}
		return nil, oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	// Re-check the token against the stored hash in constant time; the SQL
	// lookup alone is not a credential comparison.
	match, err := VerifySessionToken(token, session.TokenHash)
	if err != nil || !match {
		return nil, oops.Code("SESSION_INVALID").Wrapf(ErrUnauthenticated, "invalid session token")
	}

	account, err := s.accounts.GetByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Account deleted between the two reads; the token is dead.
			return nil, oops.Code("SESSION_INVALID").Wrapf(ErrUnauthenticated, "invalid session token")
		}
		return nil, oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "get account").
			With("account_id", session.AccountID.String()).
			Wrap(err)
	}

	return account, nil
}

// DeleteAccount destroys an account and cascades all of its sessions. The
// caller re-asserts credentials: a stolen token alone must not suffice. The
// re-asserted identity must match the authenticated caller, otherwise
// ErrForbidden.
func (s *Service) DeleteAccount(ctx context.Context, callerAccountID ulid.ULID, login, password string) error {
	account, err := s.verifyCredentials(ctx, login, password)
	if err != nil {
		return err
	}

	if account.ID.Compare(callerAccountID) != 0 {
		return oops.Code("AUTH_FORBIDDEN").
			With("caller_account_id", callerAccountID.String()).
			Wrapf(ErrForbidden, "cannot delete another account")
	}

	if err := s.accounts.Delete(ctx, account.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("ACCOUNT_NOT_FOUND").
				With("account_id", account.ID.String()).
				Wrap(err)
		}
		return oops.Code("AUTH_DELETE_FAILED").
			With("operation", "delete account").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "account deleted", "account_id", account.ID.String())
	return nil
}

// ResetPassword replaces an account's password hash. Unlike registration it
// performs no uniqueness checks.
func (s *Service) ResetPassword(ctx context.Context, accountID ulid.ULID, newPassword string) error {
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("AUTH_RESET_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	if err := s.accounts.ResetPassword(ctx, accountID, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("ACCOUNT_NOT_FOUND").
				With("account_id", accountID.String()).
				Wrap(err)
		}
		return oops.Code("AUTH_RESET_FAILED").
			With("operation", "reset password").
			With("account_id", accountID.String()).
			Wrap(err)
	}

	return nil
}

// verifyCredentials resolves the login identifier and verifies the password.
// Every failure mode collapses to ErrUnauthorized with the same message.
func (s *Service) verifyCredentials(ctx context.Context, login, password string) (*Account, error) {
	targetHash := dummyPasswordHash
	var account *Account

	slug, slugErr := Slugify(login)
	if slugErr == nil {
		found, lookupErr := s.accounts.GetByDisplayName(ctx, slug)
		switch {
		case lookupErr == nil:
			account = found
			targetHash = found.PasswordHash
		case errors.Is(lookupErr, ErrNotFound):
			// keep the dummy hash, still verify below
		default:
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get account by display name").
				Wrap(lookupErr)
		}
	}

	// Always verify, even against the dummy hash, to keep timing flat.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil && account != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if account == nil || !valid {
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").
			Wrapf(ErrUnauthorized, "invalid login or password")
	}

	return account, nil
}

// issueSession generates a token and persists the session, regenerating the
// token on the vanishing chance its hash collides with a live session.
func (s *Service) issueSession(ctx context.Context, accountID ulid.ULID, deviceLabel string) (*Session, string, error) {
	var session *Session
	var token string

	backoff := retry.WithMaxRetries(tokenRetryAttempts, retry.NewConstant(time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		tok, hash, err := GenerateSessionToken()
		if err != nil {
			return err
		}
		next, err := NewSession(accountID, hash, deviceLabel)
		if err != nil {
			return err
		}
		if err := s.sessions.Create(ctx, next); err != nil {
			if errors.Is(err, ErrConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		session = next
		token = tok
		return nil
	})
	if err != nil {
		return nil, "", oops.Code("SESSION_CREATE_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}

	return session, token, nil
}
