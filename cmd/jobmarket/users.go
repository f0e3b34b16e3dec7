// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/jobmarket/jobmarket/internal/auth"
	"github.com/jobmarket/jobmarket/internal/auth/postgres"
)

// newHasher builds the hasher used for operator-created accounts.
var newHasher = func() auth.PasswordHasher { return auth.NewArgon2idHasher() }

// NewUsersCmd creates the users command.
func NewUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage accounts",
	}

	var email, role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account; the password is read from stdin",
		Long: `Create an account with the given email and role. The password is
read from the first line of standard input so it never appears in the
process list or shell history:

  printf '%s\n' "$PASSWORD" | jobmarket users create --email a@example.com`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUsersCreate(cmd, email, role)
		},
	}
	create.Flags().StringVar(&email, "email", "", "account email (required)")
	create.Flags().StringVar(&role, "role", string(auth.RoleCandidate), "account role (candidate, employer, admin)")
	_ = create.MarkFlagRequired("email") //nolint:errcheck // flag is defined above
	cmd.AddCommand(create)

	return cmd
}

// readPassword returns the first line of r without its line ending.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", oops.Code("PASSWORD_REQUIRED").Errorf("password must be supplied on stdin")
	}
	return password, nil
}

func runUsersCreate(cmd *cobra.Command, email, role string) error {
	r := auth.Role(strings.ToLower(strings.TrimSpace(role)))
	if !r.Valid() {
		return oops.Code("INVALID_ROLE").With("role", role).Errorf("role must be candidate, employer or admin")
	}

	password, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
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

	user, err := auth.CreateUser(ctx, postgres.NewUserRepository(pool), newHasher(), email, password, r)
	if err != nil {
		var verr *auth.ValidationError
		if errors.As(err, &verr) {
			for field, msg := range verr.FieldMap() {
				cmd.PrintErrf("  %s: %s\n", field, msg)
			}
		}
		return err
	}

	cmd.Printf("Created user %s (%s, %s)\n", user.ID, user.Email, user.Role)
	return nil
}
