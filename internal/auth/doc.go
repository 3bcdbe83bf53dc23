// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wardkey Contributors

// Package auth implements Wardkey's account and session core: registration
// with race-safe display-name uniqueness, argon2id credential verification,
// opaque per-device bearer tokens, and revocation.
//
// # Domain Types
//
// Domain types (Account, Session) should be created through their
// constructors:
//   - NewAccount - account with a canonical display-name slug and password hash
//   - NewSession - session bound to one account and one device label
//
// Direct struct initialization bypasses validation and may create invalid
// state. Repository implementations receive pre-validated values from these
// constructors.
//
// # Service
//
// Service coordinates the repositories and the PasswordHasher. Its failure
// modes are the sentinel errors in errors.go, wrapped with oops codes;
// credential failures always collapse to ErrUnauthorized so that callers
// cannot distinguish an unknown login from a wrong password.
package auth
