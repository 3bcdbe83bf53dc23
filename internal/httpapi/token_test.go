// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wardkey Contributors

package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		cookie    string
		wantToken string
		wantOK    bool
	}{
		{
			name:      "header only",
			header:    "headertoken",
			wantToken: "headertoken",
			wantOK:    true,
		},
		{
			name:      "cookie only",
			cookie:    "cookietoken",
			wantToken: "cookietoken",
			wantOK:    true,
		},
		{
			name:      "header wins over cookie",
			header:    "headertoken",
			cookie:    "cookietoken",
			wantToken: "headertoken",
			wantOK:    true,
		},
		{
			name:   "neither present",
			wantOK: false,
		},
		{
			name:      "empty header falls back to cookie",
			header:    "",
			cookie:    "cookietoken",
			wantToken: "cookietoken",
			wantOK:    true,
		},
		{
			name:   "empty cookie value is no token",
			cookie: "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/user/auth_tokens", nil)
			if tt.header != "" {
				r.Header.Set(TokenHeader, tt.header)
			}
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: TokenCookie, Value: tt.cookie})
			}

			token, ok := bearerToken(r)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantToken, token)
		})
	}
}
