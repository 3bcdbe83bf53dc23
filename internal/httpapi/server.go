// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wardkey Contributors

// Package httpapi is the thin routing layer over the auth core. It decodes
// request bodies, extracts bearer tokens, and maps the core's error kinds to
// HTTP status codes; all authentication decisions live in internal/auth.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/wardkey/wardkey/internal/auth"
	"github.com/wardkey/wardkey/internal/observability"
	"github.com/wardkey/wardkey/pkg/errutil"
)

// maxBodyBytes bounds request bodies; auth payloads are tiny.
const maxBodyBytes = 1 << 16

// Server serves the user-facing authentication API.
type Server struct {
	addr       string
	svc        *auth.Service
	metrics    *observability.Metrics
	logger     *slog.Logger
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a new API server. metrics may be nil.
func NewServer(addr string, svc *auth.Service, metrics *observability.Metrics, logger *slog.Logger) (*Server, error) {
	if svc == nil {
		return nil, errors.New("auth service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:    addr,
		svc:     svc,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Handler returns the API routes. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/user/create", s.handleCreate)
	mux.HandleFunc("POST /api/user/login", s.handleLogin)
	mux.HandleFunc("GET /api/user/auth_tokens", s.handleAuthTokens)
	mux.HandleFunc("POST /api/user/logout", s.handleLogout)
	mux.HandleFunc("POST /api/user/delete", s.handleDelete)
	return mux
}

// Start begins serving the API. The returned channel reports serve errors
// and is closed on graceful stop.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, errors.New("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, err
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return err
		}
	}
	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the listen address, or empty when not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

type accountPayload struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

type sessionPayload struct {
	ID          string    `json:"id"`
	DeviceLabel string    `json:"device_label"`
	IssuedAt    time.Time `json:"issued_at"`
}

func accountJSON(a *auth.Account) accountPayload {
	return accountPayload{
		ID:          a.ID.String(),
		DisplayName: a.DisplayName,
		Email:       a.Email,
	}
}

func sessionJSON(s *auth.Session) sessionPayload {
	return sessionPayload{
		ID:          s.ID.String(),
		DeviceLabel: s.DeviceLabel,
		IssuedAt:    s.IssuedAt,
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName string `json:"display_name"`
		Email       string `json:"email"`
		Password    string `json:"password"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	account, err := s.svc.Register(r.Context(), req.DisplayName, req.Email, req.Password)
	if err != nil {
		s.countRegistration(err)
		s.writeError(w, err)
		return
	}
	s.countRegistration(nil)

	s.writeJSON(w, http.StatusCreated, accountJSON(account))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Login    string `json:"login"`
		Password string `json:"password"`
		Device   string `json:"device"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	account, session, token, err := s.svc.Login(r.Context(), req.Login, req.Password, req.Device)
	if err != nil {
		s.countLogin(err)
		s.writeError(w, err)
		return
	}
	s.countLogin(nil)

	s.writeJSON(w, http.StatusOK, struct {
		Token string         `json:"token"`
		User  accountPayload `json:"user"`
		ID    string         `json:"session_id"`
	}{
		Token: token,
		User:  accountJSON(account),
		ID:    session.ID.String(),
	})
}

func (s *Server) handleAuthTokens(w http.ResponseWriter, r *http.Request) {
	account, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	sessions, err := s.svc.ListSessions(r.Context(), account.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	payload := make([]sessionPayload, 0, len(sessions))
	for _, session := range sessions {
		payload = append(payload, sessionJSON(session))
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		s.writeJSON(w, http.StatusUnauthorized, errorPayload{Error: "no token provided"})
		return
	}

	if err := s.svc.Logout(r.Context(), token); err != nil {
		s.writeError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.SessionsRevokedTotal.WithLabelValues("logout").Inc()
	}

	// 202 mirrors the disconnect semantics clients already rely on.
	s.writeJSON(w, http.StatusAccepted, struct {
		Status string `json:"status"`
	}{Status: "disconnected"})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	account, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.svc.DeleteAccount(r.Context(), account.ID, req.Login, req.Password); err != nil {
		s.writeError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.SessionsRevokedTotal.WithLabelValues("account_deleted").Inc()
	}

	w.WriteHeader(http.StatusNoContent)
}

// authenticate resolves the request's bearer token to an account, writing a
// 401 on failure.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*auth.Account, bool) {
	token, ok := bearerToken(r)
	if !ok {
		s.writeJSON(w, http.StatusUnauthorized, errorPayload{Error: "no token provided"})
		return nil, false
	}
	account, err := s.svc.ResolveSession(r.Context(), token)
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return account, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorPayload{Error: "malformed request body"})
		return false
	}
	return true
}

type errorPayload struct {
	Error string `json:"error"`
}

// writeError maps the core's error kinds onto HTTP status codes. Messages
// for client errors come from the wrapped sentinel chain; storage failures
// are logged and masked.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		s.writeJSON(w, http.StatusBadRequest, errorPayload{Error: err.Error()})
	case errors.Is(err, auth.ErrConflict):
		s.writeJSON(w, http.StatusConflict, errorPayload{Error: err.Error()})
	case errors.Is(err, auth.ErrUnauthorized):
		s.writeJSON(w, http.StatusUnauthorized, errorPayload{Error: "invalid login or password"})
	case errors.Is(err, auth.ErrUnauthenticated):
		s.writeJSON(w, http.StatusUnauthorized, errorPayload{Error: "invalid session token"})
	case errors.Is(err, auth.ErrForbidden):
		s.writeJSON(w, http.StatusForbidden, errorPayload{Error: "forbidden"})
	case errors.Is(err, auth.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, errorPayload{Error: err.Error()})
	default:
		errutil.LogError(s.logger, "request failed", err)
		s.writeJSON(w, http.StatusInternalServerError, errorPayload{Error: "internal error"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write response failed", "error", err)
	}
}

func (s *Server) countRegistration(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RegistrationsTotal.WithLabelValues(outcomeLabel(err)).Inc()
}

func (s *Server) countLogin(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.LoginsTotal.WithLabelValues(outcomeLabel(err)).Inc()
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, auth.ErrConflict):
		return "conflict"
	case errors.Is(err, auth.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, auth.ErrUnauthorized):
		return "unauthorized"
	default:
		return "error"
	}
}
