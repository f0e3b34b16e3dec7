// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/jobmarket/jobmarket/internal/api"
	"github.com/jobmarket/jobmarket/internal/auth"
	"github.com/jobmarket/jobmarket/internal/auth/postgres"
	"github.com/jobmarket/jobmarket/internal/config"
	"github.com/jobmarket/jobmarket/internal/logging"
	"github.com/jobmarket/jobmarket/internal/mail"
	"github.com/jobmarket/jobmarket/internal/observability"
	"github.com/jobmarket/jobmarket/internal/ratelimit"
	"github.com/jobmarket/jobmarket/internal/store"
	jmtls "github.com/jobmarket/jobmarket/internal/tls"
	"github.com/jobmarket/jobmarket/pkg/errutil"
)

// throttlePrefix namespaces throttle counters in Redis. The services add
// their own "login:", "reset:" and "ip:" key prefixes.
const throttlePrefix = "jm"

// shutdownTimeout bounds draining of servers and the mail queue.
const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API (login, sessions, password reset)",
		Long: `Start the public HTTP API together with the metrics and health
endpoints. Reset emails are queued and delivered in the background.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	config.BindFlags(cmd.Flags())
	return cmd
}

func setServeDefaults(deps *ServeDeps) {
	if deps.PoolFactory == nil {
		deps.PoolFactory = connectStore
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = newMigrator
	}
	if deps.RedisFactory == nil {
		deps.RedisFactory = func(cfg config.RedisConfig) redis.UniversalClient {
			return redis.NewClient(&redis.Options{
				Addr:     cfg.Addr,
				Password: cfg.Password,
				DB:       cfg.DB,
			})
		}
	}
	if deps.TransportFactory == nil {
		deps.TransportFactory = newTransport
	}
	if deps.APIServerFactory == nil {
		deps.APIServerFactory = func(addr string, handler http.Handler, tlsConfig *tls.Config, logger *slog.Logger) Server {
			return api.NewServer(addr, handler, logger, api.WithTLS(tlsConfig))
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, logger)
		}
	}
}

func connectStore(ctx context.Context, url string, opts store.ConnectOptions) (Pool, error) {
	pool, err := store.Connect(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

func newMigrator(url string) (Migrator, error) {
	m, err := store.NewMigrator(url)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// newTransport picks SMTP when a host is configured and drops mail otherwise.
func newTransport(cfg config.SMTPConfig, logger *slog.Logger) (mail.Transport, error) {
	if cfg.Host == "" {
		return mail.NewDiscardTransport(logger), nil
	}
	t, err := mail.NewSMTPTransport(mail.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		Timeout:  cfg.Timeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// newThrottle returns nil when limit disables throttling.
func newThrottle(rdb redis.UniversalClient, prefix string, limit int64, window time.Duration) (auth.Throttle, error) {
	if limit <= 0 {
		return nil, nil
	}
	l, err := ratelimit.New(rdb, ratelimit.Config{Prefix: prefix, Limit: limit, Window: window})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// runServeWithDeps starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	setServeDefaults(deps)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Log.Level)
	logger.Info("starting jobmarket",
		"http_addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.Metrics.Addr,
		"log_format", cfg.Log.Format,
	)

	var tlsConfig *tls.Config
	if cfg.HTTP.TLSCert != "" {
		var err error
		tlsConfig, err = jmtls.LoadServerConfig(cfg.HTTP.TLSCert, cfg.HTTP.TLSKey, time.Now())
		if err != nil {
			return fmt.Errorf("failed to load tls certificate: %w", err)
		}
	}

	pool, err := deps.PoolFactory(ctx, cfg.Database.URL, store.ConnectOptions{
		Attempts: cfg.Database.ConnectAttempts,
		MaxConns: cfg.Database.MaxConns,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	if cfg.Database.AutoMigrate {
		if err := autoMigrate(cfg.Database.URL, deps.MigratorFactory, logger); err != nil {
			return err
		}
	}

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, logger)
		obsServer.AddCheck("database", pool.Ping)
		metrics = obsServer.Metrics()
	}

	var loginThrottle, resetThrottle, ipThrottle auth.Throttle
	if cfg.Redis.Addr != "" {
		rdb := deps.RedisFactory(cfg.Redis)
		defer func() {
			if closeErr := rdb.Close(); closeErr != nil {
				logger.Debug("error closing redis client", "error", closeErr)
			}
		}()
		if loginThrottle, err = newThrottle(rdb, throttlePrefix, cfg.Login.Limit, cfg.Login.Window); err != nil {
			return fmt.Errorf("failed to set up login throttle: %w", err)
		}
		if resetThrottle, err = newThrottle(rdb, throttlePrefix, cfg.Reset.Limit, cfg.Reset.Window); err != nil {
			return fmt.Errorf("failed to set up reset throttle: %w", err)
		}
		if ipThrottle, err = newThrottle(rdb, throttlePrefix, cfg.HTTP.IPLimit, cfg.HTTP.IPWindow); err != nil {
			return fmt.Errorf("failed to set up ip throttle: %w", err)
		}
		if obsServer != nil {
			obsServer.AddCheck("redis", func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			})
		}
		logger.Info("throttling enabled", "redis_addr", cfg.Redis.Addr)
	} else {
		logger.Warn("redis not configured, throttling disabled")
	}

	transport, err := deps.TransportFactory(cfg.SMTP, logger)
	if err != nil {
		return fmt.Errorf("failed to set up mail transport: %w", err)
	}
	dispatcher, err := mail.NewDispatcher(transport, mail.DispatcherConfig{
		QueueSize:   cfg.Mail.QueueSize,
		Workers:     cfg.Mail.Workers,
		MaxAttempts: cfg.Mail.MaxAttempts,
		BaseDelay:   cfg.Mail.BaseDelay,
	}, mail.WithLogger(logger), mail.WithObserver(func(o mail.Outcome) {
		metrics.ObserveMail(string(o))
	}))
	if err != nil {
		return fmt.Errorf("failed to start mail dispatcher: %w", err)
	}
	defer func() {
		drainCtx, drainCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer drainCancel()
		if closeErr := dispatcher.Close(drainCtx); closeErr != nil {
			errutil.LogError(logger, "mail queue not fully drained", closeErr)
		}
	}()

	users := postgres.NewUserRepository(pool)
	tokens := postgres.NewResetTokenRepository(pool)
	tx := postgres.NewTransactor(pool, logger)
	hasher := auth.NewArgon2idHasher()

	resets, err := auth.NewPasswordResetService(users, tokens, tx, hasher, dispatcher,
		auth.PasswordResetConfig{
			BaseURL:         cfg.HTTP.BaseURL,
			TokenTTL:        cfg.Reset.TokenTTL,
			MinResponseTime: cfg.Reset.MinResponseTime,
		},
		auth.WithLogger(logger), auth.WithThrottle(resetThrottle))
	if err != nil {
		return fmt.Errorf("failed to create reset service: %w", err)
	}
	issuer, err := auth.NewSessionIssuer(auth.SessionConfig{
		Secret: []byte(cfg.Session.Secret),
		TTL:    cfg.Session.TTL,
		Issuer: cfg.Session.Issuer,
	}, auth.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create session issuer: %w", err)
	}
	sessions, err := auth.NewAuthService(users, hasher, issuer,
		auth.WithLogger(logger), auth.WithThrottle(loginThrottle))
	if err != nil {
		return fmt.Errorf("failed to create auth service: %w", err)
	}

	router, err := api.NewRouter(api.Config{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Cookie: api.CookieConfig{
			Name:   cfg.HTTP.CookieName,
			Secure: cfg.HTTP.CookieSecure,
		},
	}, api.Deps{
		Resets:     resets,
		Sessions:   sessions,
		IPThrottle: ipThrottle,
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	apiServer := deps.APIServerFactory(cfg.HTTP.Addr, router, tlsConfig, logger)
	apiErrChan, err := apiServer.Start()
	if err != nil {
		return fmt.Errorf("failed to start api server: %w", err)
	}
	go monitorServerErrors(ctx, logger, cancel, apiErrChan, "api")

	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			if stopErr := apiServer.Stop(stopCtx); stopErr != nil {
				logger.Warn("failed to stop api server during cleanup", "error", stopErr)
			}
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		go monitorServerErrors(ctx, logger, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("JobMarket started")
	logger.Info("jobmarket ready", "http_addr", apiServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when the channel closes or ctx ends.
func monitorServerErrors(ctx context.Context, logger *slog.Logger, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
