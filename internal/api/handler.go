// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jobmarket/jobmarket/internal/auth"
	"github.com/jobmarket/jobmarket/internal/observability"
)

// ResetService is the password reset workflow.
type ResetService interface {
	RequestReset(ctx context.Context, email string) error
	CheckToken(ctx context.Context, rawToken string) error
	ResetPassword(ctx context.Context, rawToken, newPassword string) error
}

// SessionService logs users in and verifies their session tokens.
type SessionService interface {
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	VerifySession(token string) *auth.SessionClaims
	SessionTTL() time.Duration
}

var (
	_ ResetService   = (*auth.PasswordResetService)(nil)
	_ SessionService = (*auth.Service)(nil)
)

type handler struct {
	resets   ResetService
	sessions SessionService
	metrics  *observability.Metrics
	cookie   CookieConfig
	maxBody  int64
	logger   *slog.Logger
}

type forgotRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	OK        bool      `json:"ok"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type sessionResponse struct {
	OK        bool      `json:"ok"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      auth.Role `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// forgotPassword answers identically for known and unknown emails.
func (h *handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		h.metrics.ObserveResetRequest(outcome(err, ""))
		writeError(w, r, h.logger, err)
		return
	}

	err := h.resets.RequestReset(r.Context(), req.Email)
	h.metrics.ObserveResetRequest(outcome(err, "accepted"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w)
}

func (h *handler) checkResetToken(w http.ResponseWriter, r *http.Request) {
	if err := h.resets.CheckToken(r.Context(), r.URL.Query().Get("token")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w)
}

func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		h.metrics.ObserveRedemption(outcome(err, ""))
		writeError(w, r, h.logger, err)
		return
	}

	err := h.resets.ResetPassword(r.Context(), req.Token, req.Password)
	h.metrics.ObserveRedemption(outcome(err, "success"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		h.metrics.ObserveLogin(outcome(err, ""))
		writeError(w, r, h.logger, err)
		return
	}

	session, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	h.metrics.ObserveLogin(outcome(err, "success"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	http.SetCookie(w, h.cookie.session(session.Token, session.Claims.ExpiresAt, h.sessions.SessionTTL()))
	writeJSON(w, http.StatusOK, loginResponse{
		OK:        true,
		Token:     session.Token,
		ExpiresAt: session.Claims.ExpiresAt,
	})
}

// logout only clears the cookie. Tokens are stateless and stay valid until
// they expire.
func (h *handler) logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, h.cookie.cleared())
	writeOK(w)
}

func (h *handler) session(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeFailure(w, http.StatusUnauthorized, CodeUnauthenticated, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		OK:        true,
		UserID:    claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		IssuedAt:  claims.IssuedAt,
		ExpiresAt: claims.ExpiresAt,
	})
}
