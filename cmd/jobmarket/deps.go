// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package main

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/jobmarket/jobmarket/internal/auth/postgres"
	"github.com/jobmarket/jobmarket/internal/config"
	"github.com/jobmarket/jobmarket/internal/mail"
	"github.com/jobmarket/jobmarket/internal/observability"
	"github.com/jobmarket/jobmarket/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolFactory opens the database pool.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, url string, opts store.ConnectOptions) (Pool, error)

	// MigratorFactory opens a schema migrator for auto-migration.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (Migrator, error)

	// RedisFactory creates the throttle client.
	// Default: redis.NewClient
	RedisFactory func(cfg config.RedisConfig) redis.UniversalClient

	// TransportFactory creates the mail transport.
	// Default: SMTP when smtp.host is set, otherwise a discarding transport
	TransportFactory func(cfg config.SMTPConfig, logger *slog.Logger) (mail.Transport, error)

	// APIServerFactory creates the public API server.
	// Default: api.NewServer, serving HTTPS when tlsConfig is non-nil
	APIServerFactory func(addr string, handler http.Handler, tlsConfig *tls.Config, logger *slog.Logger) Server

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, logger *slog.Logger) ObservabilityServer
}

// Pool wraps the methods used from *pgxpool.Pool.
type Pool interface {
	postgres.DB
	Ping(ctx context.Context) error
	Close()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	Close() error
}

// Server wraps the methods used from api.Server.
type Server interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Server
	Metrics() *observability.Metrics
	AddCheck(name string, check observability.Check)
}

var (
	_ Migrator            = (*store.Migrator)(nil)
	_ ObservabilityServer = (*observability.Server)(nil)
)
