// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package config

import (
	"os"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Environment variables that override file and flag values.
const (
	EnvDatabaseURL   = "DATABASE_URL"
	EnvSessionSecret = "SESSION_SECRET"
	EnvSMTPPassword  = "SMTP_PASSWORD"
	EnvRedisPassword = "REDIS_PASSWORD"
)

// flagKeys maps command line flag names to configuration keys.
var flagKeys = map[string]string{
	"http-addr":    "http.addr",
	"base-url":     "http.base_url",
	"metrics-addr": "metrics.addr",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"auto-migrate": "database.auto_migrate",
	"redis-addr":   "redis.addr",
	"smtp-host":    "smtp.host",
	"smtp-port":    "smtp.port",
	"smtp-from":    "smtp.from",
	"tls-cert":     "http.tls_cert",
	"tls-key":      "http.tls_key",
}

// BindFlags registers the configuration flags on fs. Defaults shown in help
// come from Default; a flag only takes effect when it is set explicitly.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http-addr", d.HTTP.Addr, "API listen address")
	fs.String("base-url", d.HTTP.BaseURL, "public base URL used in reset links")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health listen address (empty disables)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("log-format", d.Log.Format, "log format (json, text)")
	fs.Bool("auto-migrate", d.Database.AutoMigrate, "apply database migrations on startup")
	fs.String("redis-addr", d.Redis.Addr, "redis address for throttling (empty disables)")
	fs.String("smtp-host", d.SMTP.Host, "SMTP host (empty disables mail delivery)")
	fs.Int("smtp-port", d.SMTP.Port, "SMTP port")
	fs.String("smtp-from", d.SMTP.From, "sender address for outgoing mail")
	fs.String("tls-cert", d.HTTP.TLSCert, "PEM certificate for serving the API over HTTPS")
	fs.String("tls-key", d.HTTP.TLSKey, "PEM private key matching --tls-cert")
}

// LoadOptions controls where Load reads values from.
type LoadOptions struct {
	// Path is the YAML file. Empty means defaults only.
	Path string
	// Flags is consulted for flags registered by BindFlags.
	Flags *pflag.FlagSet
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load builds a Config from defaults, the file, flags and environment.
// It does not call Validate.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if opts.Path != "" {
		provider := file.Provider(opts.Path)
		data, err := provider.ReadBytes()
		if err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", opts.Path).Wrap(err)
		}
		if err := ValidateSchema(data); err != nil {
			return nil, oops.Code("CONFIG_SCHEMA_INVALID").
				With("path", opts.Path).
				Errorf("%s", FormatSchemaError(err))
		}
		if err := k.Load(provider, kyaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_PARSE_FAILED").With("path", opts.Path).Wrap(err)
		}
	}

	if opts.Flags != nil {
		err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", nil, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		}), nil)
		if err != nil {
			return nil, oops.Code("CONFIG_PARSE_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_PARSE_FAILED").Wrap(err)
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	applyEnv(&cfg, lookup)
	return &cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	for name, dst := range map[string]*string{
		EnvDatabaseURL:   &cfg.Database.URL,
		EnvSessionSecret: &cfg.Session.Secret,
		EnvSMTPPassword:  &cfg.SMTP.Password,
		EnvRedisPassword: &cfg.Redis.Password,
	} {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
}
