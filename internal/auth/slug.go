// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wardkey Contributors

package auth

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/samber/oops"
)

// Display-name slug constraints.
const (
	MinSlugLength = 3
	MaxSlugLength = 32
)

// slugRegex matches URL-safe slugs: the RFC 3986 unreserved set, starting
// with a letter or digit.
var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._~-]*$`)

// Slugify canonicalizes a user-supplied display name into a unique URL-safe
// identifier. The transformation is deterministic: whitespace runs collapse
// to single hyphens and letters are lowercased. It fails with
// ErrInvalidInput when the result is empty, too short or long, or carries
// characters outside the URL-unreserved set; reserved characters are
// rejected rather than stripped so that distinct inputs cannot silently
// collide.
func Slugify(displayName string) (string, error) {
	if !utf8.ValidString(displayName) {
		return "", oops.Code("AUTH_INVALID_DISPLAY_NAME").
			Wrapf(ErrInvalidInput, "display name must be valid UTF-8")
	}

	slug := strings.ToLower(strings.Join(strings.Fields(displayName), "-"))

	if slug == "" {
		return "", oops.Code("AUTH_INVALID_DISPLAY_NAME").
			Wrapf(ErrInvalidInput, "display name cannot be empty")
	}
	if len(slug) < MinSlugLength {
		return "", oops.Code("AUTH_INVALID_DISPLAY_NAME").
			With("min", MinSlugLength).
			Wrapf(ErrInvalidInput, "display name must be at least %d characters", MinSlugLength)
	}
	if len(slug) > MaxSlugLength {
		return "", oops.Code("AUTH_INVALID_DISPLAY_NAME").
			With("max", MaxSlugLength).
			Wrapf(ErrInvalidInput, "display name must be at most %d characters", MaxSlugLength)
	}
	if !slugRegex.MatchString(slug) {
		return "", oops.Code("AUTH_INVALID_DISPLAY_NAME").
			With("slug", slug).
			Wrapf(ErrInvalidInput, "display name contains reserved characters")
	}

	return slug, nil
}
