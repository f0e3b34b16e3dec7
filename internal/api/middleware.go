// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jobmarket/jobmarket/internal/auth"
	"github.com/jobmarket/jobmarket/pkg/errutil"
)

type claimsKey struct{}

// ClaimsFromContext returns the session claims attached by the session
// middleware, or nil.
func ClaimsFromContext(ctx context.Context) *auth.SessionClaims {
	claims, _ := ctx.Value(claimsKey{}).(*auth.SessionClaims)
	return claims
}

// bearerToken returns the session token from the Authorization header or,
// failing that, from the session cookie.
func (h *handler) bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(h.cookie.name()); err == nil {
		return c.Value
	}
	return ""
}

// requireSession rejects requests without a valid session token.
func (h *handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := h.sessions.VerifySession(h.bearerToken(r))
		if claims == nil {
			h.metrics.ObserveSession("invalid")
			writeFailure(w, http.StatusUnauthorized, CodeUnauthenticated, "authentication required")
			return
		}
		h.metrics.ObserveSession("valid")
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

// throttleIP limits requests per client address. Backend failures let the
// request through.
func (h *handler) throttleIP(limiter auth.Throttle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := limiter.Allow(r.Context(), "ip:"+clientIP(r))
			if err != nil {
				errutil.Log(r.Context(), h.logger, slog.LevelWarn, "throttle unavailable, allowing attempt", err)
				ok = true
			}
			if !ok {
				h.logger.InfoContext(r.Context(), "request throttled", "path", r.URL.Path)
				writeFailure(w, http.StatusTooManyRequests, CodeRateLimited, auth.ErrRateLimited.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr. RealIP has already applied
// X-Forwarded-For when present.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// instrument records the status and latency of each request and logs it.
// Routes are labelled by pattern so token values never become labels.
func (h *handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		h.metrics.ObserveHTTP(route, r.Method, status, elapsed)
		h.logger.DebugContext(r.Context(), "http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
