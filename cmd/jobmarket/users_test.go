// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobmarket/jobmarket/internal/auth"
	"github.com/jobmarket/jobmarket/pkg/errutil"
)

// prefixHasher avoids argon2 cost in command tests.
type prefixHasher struct{}

func (prefixHasher) Hash(password string) (string, error) { return "test$" + password, nil }

func (prefixHasher) Verify(password, hash string) (bool, error) {
	return hash == "test$"+password, nil
}

func (prefixHasher) NeedsUpgrade(string) bool { return false }

func useHasher(t *testing.T) {
	t.Helper()
	prev := newHasher
	newHasher = func() auth.PasswordHasher { return prefixHasher{} }
	t.Cleanup(func() { newHasher = prev })
}

func TestReadPassword(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr string
	}{
		{name: "line", input: "s3cret-pass\n", want: "s3cret-pass"},
		{name: "crlf", input: "s3cret-pass\r\n", want: "s3cret-pass"},
		{name: "no newline", input: "s3cret-pass", want: "s3cret-pass"},
		{name: "only first line", input: "first-line\nsecond\n", want: "first-line"},
		{name: "inner spaces kept", input: "  spaced pass  \n", want: "  spaced pass  "},
		{name: "empty", input: "", wantErr: "PASSWORD_REQUIRED"},
		{name: "blank line", input: "\n", wantErr: "PASSWORD_REQUIRED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readPassword(strings.NewReader(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUsersCreate(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/jobs")
	useHasher(t)

	t.Run("creates account", func(t *testing.T) {
		mock := usePool(t)
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(pgxmock.AnyArg(), "recruiter@example.com", "test$long-enough-pass", "employer", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectClose()

		out, err := execute(t, "long-enough-pass\n",
			"users", "create", "--email", "Recruiter@Example.com", "--role", "Employer")
		require.NoError(t, err)
		assert.Contains(t, out, "Created user ")
		assert.Contains(t, out, "(recruiter@example.com, employer)")
		assert.NotContains(t, out, "long-enough-pass")
	})

	t.Run("default role is candidate", func(t *testing.T) {
		mock := usePool(t)
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(pgxmock.AnyArg(), "seeker@example.com", pgxmock.AnyArg(), "candidate", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectClose()

		_, err := execute(t, "long-enough-pass\n", "users", "create", "--email", "seeker@example.com")
		require.NoError(t, err)
	})

	t.Run("duplicate email", func(t *testing.T) {
		mock := usePool(t)
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: "23505"})
		mock.ExpectClose()

		_, err := execute(t, "long-enough-pass\n", "users", "create", "--email", "taken@example.com")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "USER_EMAIL_TAKEN")
	})

	t.Run("short password lists the field", func(t *testing.T) {
		mock := usePool(t)
		mock.ExpectClose()

		out, err := execute(t, "short\n", "users", "create", "--email", "a@example.com")
		require.Error(t, err)
		var verr *auth.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Contains(t, out, "password:")
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := execute(t, "long-enough-pass\n", "users", "create", "--email", "a@example.com", "--role", "owner")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "INVALID_ROLE")
	})

	t.Run("email is required", func(t *testing.T) {
		_, err := execute(t, "long-enough-pass\n", "users", "create")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "email")
	})

	t.Run("missing password", func(t *testing.T) {
		_, err := execute(t, "", "users", "create", "--email", "a@example.com")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "PASSWORD_REQUIRED")
	})
}
