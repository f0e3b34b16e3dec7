// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package api

import (
	"net/http"
	"time"
)

// DefaultCookieName is the session cookie name when none is configured.
const DefaultCookieName = "jobmarket_session"

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Domain string
	// Secure should be true whenever the service is reached over HTTPS.
	Secure bool
}

func (c CookieConfig) name() string {
	if c.Name == "" {
		return DefaultCookieName
	}
	return c.Name
}

func (c CookieConfig) session(token string, expires time.Time, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     c.name(),
		Value:    token,
		Path:     "/",
		Domain:   c.Domain,
		Expires:  expires,
		MaxAge:   int(ttl.Seconds()),
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c CookieConfig) cleared() *http.Cookie {
	return &http.Cookie{
		Name:     c.name(),
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
