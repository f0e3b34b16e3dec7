// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package main

import (
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/jobmarket/jobmarket/internal/config"
	"github.com/jobmarket/jobmarket/internal/logging"
	"github.com/jobmarket/jobmarket/internal/xdg"
)

// serviceName tags every log line.
const serviceName = "jobmarket"

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the jobmarket CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobmarket",
		Short: "JobMarket - account and password reset service",
		Long: `JobMarket runs the account service of the job market platform:
password login, stateless sessions and the emailed password reset flow,
backed by PostgreSQL with optional Redis throttling.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewTokensCmd())
	cmd.AddCommand(NewUsersCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewCertsCmd())

	return cmd
}

// loadConfig reads the layered configuration for cmd. Only flags bound with
// config.BindFlags on cmd take part.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}
	return config.Load(config.LoadOptions{
		Path:  path,
		Flags: cmd.Flags(),
	})
}

// resolveConfigPath prefers --config, then $XDG_CONFIG_HOME/jobmarket/config.yaml
// when that file exists. An empty result means defaults only.
func resolveConfigPath() (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	path, ok, err := xdg.FindConfig()
	if err != nil {
		return "", oops.Code("CONFIG_READ_FAILED").Wrap(err)
	}
	if !ok {
		return "", nil
	}
	return path, nil
}

// commandLogger builds the logger for one-shot commands.
func commandLogger(cfg *config.Config) *slog.Logger {
	return logging.Setup(serviceName, version, cfg.Log.Format, cfg.Log.Level, nil)
}
