// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jobmarket/jobmarket/internal/config"
)

// NewConfigCmd creates the config command.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		RunE:  runConfigShow,
	}
	config.BindFlags(show.Flags())
	cmd.AddCommand(show)

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check that the configuration is complete enough to serve",
		RunE:  runConfigValidate,
	}
	config.BindFlags(validate.Flags())
	cmd.AddCommand(validate)

	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return oops.Code("SCHEMA_GENERATE_FAILED").Wrap(err)
			}
			cmd.Println(string(data))
			return nil
		},
	})

	return cmd
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return oops.Code("CONFIG_RENDER_FAILED").Wrap(err)
	}
	cmd.Print(string(out))
	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cmd.Println("Configuration is valid")
	return nil
}
