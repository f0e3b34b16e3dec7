// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

// Package config loads the jobmarket service configuration.
//
// Values are layered: built-in defaults, then the YAML file, then command
// line flags that were explicitly set, then the secret environment
// variables (DATABASE_URL, SESSION_SECRET, SMTP_PASSWORD, REDIS_PASSWORD).
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Config is the complete service configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http" json:"http" yaml:"http"`
	Metrics  MetricsConfig  `koanf:"metrics" json:"metrics" yaml:"metrics"`
	Log      LogConfig      `koanf:"log" json:"log" yaml:"log"`
	Database DatabaseConfig `koanf:"database" json:"database" yaml:"database"`
	Redis    RedisConfig    `koanf:"redis" json:"redis" yaml:"redis"`
	Session  SessionConfig  `koanf:"session" json:"session" yaml:"session"`
	Reset    ResetConfig    `koanf:"reset" json:"reset" yaml:"reset"`
	Login    LoginConfig    `koanf:"login" json:"login" yaml:"login"`
	SMTP     SMTPConfig     `koanf:"smtp" json:"smtp" yaml:"smtp"`
	Mail     MailConfig     `koanf:"mail" json:"mail" yaml:"mail"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr           string        `koanf:"addr" json:"addr,omitempty" yaml:"addr"`
	BaseURL        string        `koanf:"base_url" json:"base_url,omitempty" yaml:"base_url" jsonschema:"format=uri"`
	AllowedOrigins []string      `koanf:"allowed_origins" json:"allowed_origins,omitempty" yaml:"allowed_origins"`
	CookieName     string        `koanf:"cookie_name" json:"cookie_name,omitempty" yaml:"cookie_name"`
	CookieSecure   bool          `koanf:"cookie_secure" json:"cookie_secure,omitempty" yaml:"cookie_secure"`
	IPLimit        int64         `koanf:"ip_limit" json:"ip_limit,omitempty" yaml:"ip_limit" jsonschema:"minimum=0"`
	IPWindow       time.Duration `koanf:"ip_window" json:"ip_window,omitempty" yaml:"ip_window" jsonschema:"type=string"`
	TLSCert        string        `koanf:"tls_cert" json:"tls_cert,omitempty" yaml:"tls_cert"`
	TLSKey         string        `koanf:"tls_key" json:"tls_key,omitempty" yaml:"tls_key"`
}

// MetricsConfig configures the metrics and health listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty" yaml:"addr"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `koanf:"level" json:"level,omitempty" yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Format string `koanf:"format" json:"format,omitempty" yaml:"format" jsonschema:"enum=json,enum=text"`
}

// DatabaseConfig configures the Postgres pool.
type DatabaseConfig struct {
	URL             string `koanf:"url" json:"url,omitempty" yaml:"url"`
	MaxConns        int32  `koanf:"max_conns" json:"max_conns,omitempty" yaml:"max_conns" jsonschema:"minimum=0"`
	ConnectAttempts uint64 `koanf:"connect_attempts" json:"connect_attempts,omitempty" yaml:"connect_attempts"`
	AutoMigrate     bool   `koanf:"auto_migrate" json:"auto_migrate,omitempty" yaml:"auto_migrate"`
}

// RedisConfig configures the throttle backend. An empty Addr disables all
// throttling.
type RedisConfig struct {
	Addr     string `koanf:"addr" json:"addr,omitempty" yaml:"addr"`
	Password string `koanf:"password" json:"password,omitempty" yaml:"password"`
	DB       int    `koanf:"db" json:"db,omitempty" yaml:"db" jsonschema:"minimum=0"`
}

// SessionConfig configures session tokens.
type SessionConfig struct {
	Secret string        `koanf:"secret" json:"secret,omitempty" yaml:"secret"`
	TTL    time.Duration `koanf:"ttl" json:"ttl,omitempty" yaml:"ttl" jsonschema:"type=string"`
	Issuer string        `koanf:"issuer" json:"issuer,omitempty" yaml:"issuer"`
}

// ResetConfig configures the password reset workflow.
type ResetConfig struct {
	TokenTTL        time.Duration `koanf:"token_ttl" json:"token_ttl,omitempty" yaml:"token_ttl" jsonschema:"type=string"`
	MinResponseTime time.Duration `koanf:"min_response_time" json:"min_response_time,omitempty" yaml:"min_response_time" jsonschema:"type=string"`
	Limit           int64         `koanf:"limit" json:"limit,omitempty" yaml:"limit" jsonschema:"minimum=0"`
	Window          time.Duration `koanf:"window" json:"window,omitempty" yaml:"window" jsonschema:"type=string"`
}

// LoginConfig configures login throttling.
type LoginConfig struct {
	Limit  int64         `koanf:"limit" json:"limit,omitempty" yaml:"limit" jsonschema:"minimum=0"`
	Window time.Duration `koanf:"window" json:"window,omitempty" yaml:"window" jsonschema:"type=string"`
}

// SMTPConfig configures outbound mail. An empty Host disables delivery.
type SMTPConfig struct {
	Host     string        `koanf:"host" json:"host,omitempty" yaml:"host"`
	Port     int           `koanf:"port" json:"port,omitempty" yaml:"port" jsonschema:"minimum=1,maximum=65535"`
	Username string        `koanf:"username" json:"username,omitempty" yaml:"username"`
	Password string        `koanf:"password" json:"password,omitempty" yaml:"password"`
	From     string        `koanf:"from" json:"from,omitempty" yaml:"from"`
	Timeout  time.Duration `koanf:"timeout" json:"timeout,omitempty" yaml:"timeout" jsonschema:"type=string"`
}

// MailConfig configures the mail dispatcher.
type MailConfig struct {
	QueueSize   int           `koanf:"queue_size" json:"queue_size,omitempty" yaml:"queue_size" jsonschema:"minimum=1"`
	Workers     int           `koanf:"workers" json:"workers,omitempty" yaml:"workers" jsonschema:"minimum=1"`
	MaxAttempts uint64        `koanf:"max_attempts" json:"max_attempts,omitempty" yaml:"max_attempts" jsonschema:"minimum=1"`
	BaseDelay   time.Duration `koanf:"base_delay" json:"base_delay,omitempty" yaml:"base_delay" jsonschema:"type=string"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:         ":8080",
			BaseURL:      "http://localhost:8080",
			CookieName:   "jobmarket_session",
			CookieSecure: true,
			IPLimit:      60,
			IPWindow:     time.Minute,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{
			MaxConns:        10,
			ConnectAttempts: 5,
		},
		Session: SessionConfig{
			TTL:    7 * 24 * time.Hour,
			Issuer: "jobmarket",
		},
		Reset: ResetConfig{
			TokenTTL:        15 * time.Minute,
			MinResponseTime: 250 * time.Millisecond,
			Limit:           5,
			Window:          time.Hour,
		},
		Login: LoginConfig{
			Limit:  10,
			Window: 15 * time.Minute,
		},
		SMTP: SMTPConfig{
			Port:    587,
			Timeout: 10 * time.Second,
		},
		Mail: MailConfig{
			QueueSize:   100,
			Workers:     1,
			MaxAttempts: 3,
			BaseDelay:   time.Second,
		},
	}
}

// minSessionSecretBytes matches the session issuer's requirement.
const minSessionSecretBytes = 32

// ValidateDatabase checks only what commands that touch the database need.
func (c *Config) ValidateDatabase() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return oops.Code("CONFIG_INVALID").With("key", "database.url").
			Errorf("database.url is required (or set DATABASE_URL)")
	}
	return nil
}

// Validate checks everything the serve command needs.
func (c *Config) Validate() error {
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http.addr is required")
	}
	base, err := url.Parse(c.HTTP.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return invalid("http.base_url", "http.base_url must be an absolute http(s) URL")
	}
	if len(c.Session.Secret) < minSessionSecretBytes {
		return invalid("session.secret", "session.secret must be at least 32 bytes (or set SESSION_SECRET)")
	}
	if (c.HTTP.TLSCert == "") != (c.HTTP.TLSKey == "") {
		return invalid("http.tls_key", "http.tls_cert and http.tls_key must be set together")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log.format must be 'json' or 'text'")
	}
	if c.SMTP.Host != "" {
		if c.SMTP.From == "" {
			return invalid("smtp.from", "smtp.from is required when smtp.host is set")
		}
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			return invalid("smtp.port", "smtp.port must be between 1 and 65535")
		}
	}
	for key, w := range map[string]struct {
		limit  int64
		window time.Duration
	}{
		"http.ip_window": {c.HTTP.IPLimit, c.HTTP.IPWindow},
		"reset.window":   {c.Reset.Limit, c.Reset.Window},
		"login.window":   {c.Login.Limit, c.Login.Window},
	} {
		if w.limit > 0 && w.window <= 0 {
			return invalid(key, key+" must be positive when its limit is set")
		}
	}
	return nil
}

func invalid(key, msg string) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf("%s", msg)
}

// Redacted returns a copy with every secret replaced.
func (c Config) Redacted() Config {
	const mask = "[REDACTED]"
	if c.Database.URL != "" {
		c.Database.URL = redactURL(c.Database.URL)
	}
	if c.Session.Secret != "" {
		c.Session.Secret = mask
	}
	if c.SMTP.Password != "" {
		c.SMTP.Password = mask
	}
	if c.Redis.Password != "" {
		c.Redis.Password = mask
	}
	return c
}

// redactURL hides the password of a connection URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
