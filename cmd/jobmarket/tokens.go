// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package main

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/jobmarket/jobmarket/internal/auth/postgres"
	"github.com/jobmarket/jobmarket/internal/config"
	"github.com/jobmarket/jobmarket/internal/store"
)

// poolFactory opens the database for one-shot commands. Tests replace it.
var poolFactory = connectStore

// NewTokensCmd creates the tokens command.
func NewTokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Maintain password reset tokens",
	}

	var grace time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete expired reset tokens",
		Long: `Delete reset tokens whose expiry lies further in the past than
--grace. Used tokens are kept until they expire.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTokensPrune(cmd, grace)
		},
	}
	prune.Flags().DurationVar(&grace, "grace", 0, "keep tokens that expired less than this long ago")
	cmd.AddCommand(prune)

	return cmd
}

// openPool connects for a one-shot command.
func openPool(ctx context.Context, cmd *cobra.Command) (Pool, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ValidateDatabase(); err != nil {
		return nil, nil, err
	}
	pool, err := poolFactory(ctx, cfg.Database.URL, store.ConnectOptions{
		Attempts: cfg.Database.ConnectAttempts,
		Logger:   commandLogger(cfg),
	})
	if err != nil {
		return nil, nil, oops.With("operation", "connect to database").Wrap(err)
	}
	return pool, cfg, nil
}

func runTokensPrune(cmd *cobra.Command, grace time.Duration) error {
	if grace < 0 {
		return oops.Code("INVALID_ARGUMENT").With("grace", grace.String()).Errorf("grace must not be negative")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	pool, _, err := openPool(ctx, cmd)
	if err != nil {
		return err
	}
	defer pool.Close()

	deleted, err := postgres.NewResetTokenRepository(pool).DeleteExpired(ctx, time.Now().Add(-grace))
	if err != nil {
		return err
	}
	cmd.Printf("Deleted %d expired reset token(s)\n", deleted)
	return nil
}
