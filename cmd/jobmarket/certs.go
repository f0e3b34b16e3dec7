// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package main

import (
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	jmtls "github.com/jobmarket/jobmarket/internal/tls"
	"github.com/jobmarket/jobmarket/internal/xdg"
)

type certsOptions struct {
	dir      string
	name     string
	hosts    []string
	validFor time.Duration
}

// NewCertsCmd creates the certs command.
func NewCertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Manage TLS certificates for the API listener",
	}

	opts := &certsOptions{}
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate a self-signed certificate for local HTTPS",
		Long: `Generate a self-signed ECDSA certificate and key. Point http.tls_cert
and http.tls_key (or --tls-cert/--tls-key) at the written files.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCertsGenerate(cmd, opts)
		},
	}
	generate.Flags().StringVar(&opts.dir, "dir", "", "output directory (default $XDG_CONFIG_HOME/jobmarket/certs)")
	generate.Flags().StringVar(&opts.name, "name", "api", "base file name for the .crt and .key files")
	generate.Flags().StringSliceVar(&opts.hosts, "host", []string{"localhost", "127.0.0.1"}, "DNS names or IPs the certificate is valid for")
	generate.Flags().DurationVar(&opts.validFor, "valid-for", 365*24*time.Hour, "certificate lifetime")
	cmd.AddCommand(generate)

	return cmd
}

func runCertsGenerate(cmd *cobra.Command, opts *certsOptions) error {
	dir := opts.dir
	if dir == "" {
		configDir, err := xdg.ConfigDir()
		if err != nil {
			return err
		}
		dir = filepath.Join(configDir, "certs")
	}

	kp, err := jmtls.GenerateSelfSigned(opts.hosts, opts.validFor)
	if err != nil {
		return err
	}
	certPath, keyPath, err := jmtls.Save(dir, opts.name, kp)
	if err != nil {
		return err
	}

	cmd.Printf("Wrote certificate %s\n", certPath)
	cmd.Printf("Wrote private key %s\n", keyPath)
	cmd.Printf("Valid until %s\n", kp.Certificate.NotAfter.UTC().Format(time.RFC3339))
	return nil
}
