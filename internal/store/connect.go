// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions controls how Connect waits for the database.
type ConnectOptions struct {
	// Attempts is the number of pings before giving up. Zero means 5.
	Attempts uint64
	// BaseDelay is the first backoff interval. Zero means 200ms.
	BaseDelay time.Duration
	// MaxConns caps the pool size when positive.
	MaxConns int32
	Logger   *slog.Logger
}

// Connect opens a pgx pool for databaseURL and pings it with exponential
// backoff so the service can start alongside its database.
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attempt := 0
	err = retry.Do(ctx, connectBackoff(opts), func(ctx context.Context) error {
		attempt++
		if err := pool.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "database not reachable, retrying",
				"attempt", attempt,
				"host", cfg.ConnConfig.Host,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping").
			With("attempts", attempt).
			Wrap(err)
	}

	logger.DebugContext(ctx, "database connected", "host", cfg.ConnConfig.Host, "attempts", attempt)
	return pool, nil
}

func connectBackoff(opts ConnectOptions) retry.Backoff {
	attempts := opts.Attempts
	if attempts == 0 {
		attempts = 5
	}
	base := opts.BaseDelay
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	b := retry.NewExponential(base)
	b = retry.WithCappedDuration(5*time.Second, b)
	return retry.WithMaxRetries(attempts-1, b)
}
