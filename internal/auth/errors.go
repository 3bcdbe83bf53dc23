// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wardkey Contributors

package auth

import "errors"

// Sentinel errors classifying authentication outcomes. Services wrap these
// with oops codes and context; callers branch with errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a uniqueness constraint is violated.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput is returned when a supplied identifier cannot be
	// canonicalized or a required field is missing.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized is returned for any credential failure. Unknown login
	// and wrong password deliberately collapse into this one kind.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when an authenticated caller is not entitled
	// to the requested mutation.
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthenticated is returned when a bearer token resolves to no
	// live session.
	ErrUnauthenticated = errors.New("unauthenticated")
)
