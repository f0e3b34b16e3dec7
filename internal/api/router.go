// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/samber/oops"

	"github.com/jobmarket/jobmarket/internal/auth"
	"github.com/jobmarket/jobmarket/internal/observability"
)

// DefaultMaxBodyBytes bounds JSON request bodies.
const DefaultMaxBodyBytes = 64 << 10

// Config configures the router.
type Config struct {
	// AllowedOrigins lists browser origins allowed by CORS. Empty disables
	// cross-origin access.
	AllowedOrigins []string
	Cookie         CookieConfig
	MaxBodyBytes   int64
}

// Deps are the services behind the routes.
type Deps struct {
	Resets   ResetService
	Sessions SessionService
	// IPThrottle, when set, limits /auth requests per client address.
	IPThrottle auth.Throttle
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

// NewRouter builds the HTTP handler for the auth routes.
func NewRouter(cfg Config, deps Deps) (http.Handler, error) {
	switch {
	case deps.Resets == nil:
		return nil, oops.Code("API_CONFIG_INVALID").Errorf("reset service is required")
	case deps.Sessions == nil:
		return nil, oops.Code("API_CONFIG_INVALID").Errorf("session service is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	h := &handler{
		resets:   deps.Resets,
		sessions: deps.Sessions,
		metrics:  deps.Metrics,
		cookie:   cfg.Cookie,
		maxBody:  maxBody,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.instrument)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, http.StatusNotFound, "not_found", "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Route("/auth", func(r chi.Router) {
		if deps.IPThrottle != nil {
			r.Use(h.throttleIP(deps.IPThrottle))
		}
		r.Post("/password/forgot", h.forgotPassword)
		r.Get("/password/reset", h.checkResetToken)
		r.Post("/password/reset", h.resetPassword)
		r.Post("/login", h.login)
		r.Post("/logout", h.logout)
		r.With(h.requireSession).Get("/session", h.session)
	})

	return r, nil
}
