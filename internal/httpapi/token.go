// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wardkey Contributors

package httpapi

import "net/http"

// Token transport names. Clients send the session token either in the
// TokenHeader or in the TokenCookie.
const (
	TokenHeader = "content-authtoken"
	TokenCookie = "authtoken"
)

// bearerToken extracts the session token from a request, honoring exactly
// one source per call: the content-authtoken header wins; the authtoken
// cookie is consulted only when the header is absent. Returns false when
// neither carries a token.
func bearerToken(r *http.Request) (string, bool) {
	if token := r.Header.Get(TokenHeader); token != "" {
		return token, true
	}
	if cookie, err := r.Cookie(TokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
}
