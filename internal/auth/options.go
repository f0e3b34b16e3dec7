// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package auth

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"time"

	"github.com/jobmarket/jobmarket/pkg/errutil"
)

// Throttle limits how often a key may be used. Allow counts an attempt and
// reports whether it is within budget; Reset clears the key.
type Throttle interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// Option configures a service.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	now      func() time.Time
	random   io.Reader
	throttle Throttle
}

func newOptions(opts []Option) options {
	o := options{
		logger: slog.Default(),
		now:    time.Now,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock sets the time source used for expiry computation and checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRandom sets the source of token entropy. It must be cryptographically
// secure outside of tests.
func WithRandom(r io.Reader) Option {
	return func(o *options) {
		if r != nil {
			o.random = r
		}
	}
}

// WithThrottle enables per-email throttling.
func WithThrottle(t Throttle) Option {
	return func(o *options) {
		o.throttle = t
	}
}

// allow consults the throttle. Throttle backend failures fail open.
func (o *options) allow(ctx context.Context, key string) bool {
	if o.throttle == nil {
		return true
	}
	ok, err := o.throttle.Allow(ctx, key)
	if err != nil {
		errutil.Log(ctx, o.logger, slog.LevelWarn, "throttle unavailable, allowing attempt", err)
		return true
	}
	return ok
}

func (o *options) resetThrottle(ctx context.Context, key string) {
	if o.throttle == nil {
		return
	}
	if err := o.throttle.Reset(ctx, key); err != nil {
		errutil.Log(ctx, o.logger, slog.LevelWarn, "throttle reset failed", err)
	}
}
