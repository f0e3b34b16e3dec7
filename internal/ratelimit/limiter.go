// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

// Package ratelimit provides Redis fixed-window counters.
//
// Each key gets a counter that is created by INCR and expires one window
// after the first hit. Attempts beyond the limit are rejected until the
// counter expires.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// Config sets the budget for one limiter.
type Config struct {
	// Prefix namespaces the Redis keys, e.g. "jm:reset".
	Prefix string
	// Limit is the number of attempts allowed per window.
	Limit int64
	// Window is the lifetime of a counter.
	Window time.Duration
}

// Limiter implements auth.Throttle on Redis.
type Limiter struct {
	rdb redis.UniversalClient
	cfg Config
}

// New creates a Limiter.
func New(rdb redis.UniversalClient, cfg Config) (*Limiter, error) {
	if rdb == nil {
		return nil, oops.Code("RATELIMIT_INVALID").Errorf("redis client is required")
	}
	if cfg.Limit <= 0 {
		return nil, oops.Code("RATELIMIT_INVALID").With("limit", cfg.Limit).Errorf("limit must be positive")
	}
	if cfg.Window <= 0 {
		return nil, oops.Code("RATELIMIT_INVALID").With("window", cfg.Window.String()).Errorf("window must be positive")
	}
	return &Limiter{rdb: rdb, cfg: cfg}, nil
}

// Allow counts one attempt for key and reports whether it is within budget.
// The increment and the expiry run in one MULTI/EXEC, so a counter never
// outlives its window. NX keeps later attempts from extending it.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.key(key)

	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, l.cfg.Window)
		return nil
	})
	if err != nil {
		return false, oops.Code("RATELIMIT_UNAVAILABLE").With("operation", "incr").Wrap(err)
	}
	return incr.Val() <= l.cfg.Limit, nil
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.rdb.Del(ctx, l.key(key)).Err(); err != nil {
		return oops.Code("RATELIMIT_UNAVAILABLE").With("operation", "del").Wrap(err)
	}
	return nil
}

// Remaining reports how long key stays blocked. Zero means not blocked.
func (l *Limiter) Remaining(ctx context.Context, key string) (time.Duration, error) {
	k := l.key(key)
	count, err := l.rdb.Get(ctx, k).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, oops.Code("RATELIMIT_UNAVAILABLE").With("operation", "get").Wrap(err)
	}
	if count <= l.cfg.Limit {
		return 0, nil
	}
	ttl, err := l.rdb.PTTL(ctx, k).Result()
	if err != nil {
		return 0, oops.Code("RATELIMIT_UNAVAILABLE").With("operation", "pttl").Wrap(err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (l *Limiter) key(key string) string {
	if l.cfg.Prefix == "" {
		return key
	}
	return l.cfg.Prefix + ":" + key
}
