// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/jobmarket/jobmarket/internal/auth"
)

const userColumns = `id, email, password_hash, role, created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create stores a new user. A second account with the same email, compared
// case-insensitively, fails with USER_EMAIL_TAKEN.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	q, _ := conn(ctx, r.db)
	_, err := q.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID.String(), user.Email, user.PasswordHash, string(user.Role), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("USER_EMAIL_TAKEN").With("email", user.Email).Wrap(err)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	q, _ := conn(ctx, r.db)
	row := q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return user, err
}

// GetByEmail retrieves a user by email, ignoring case.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	q, _ := conn(ctx, r.db)
	row := q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return user, err
}

// UpdatePassword replaces the password hash and bumps updated_at.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	q, _ := conn(ctx, r.db)
	tag, err := q.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1
	`, id.String(), passwordHash)
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			With("user_id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanUser leaves pgx.ErrNoRows unwrapped for the caller.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr     string
		email     string
		hash      string
		role      string
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&idStr, &email, &hash, &role, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers attach context
		}
		return nil, oops.Code("USER_SCAN_FAILED").With("operation", "scan user").Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").With("id", idStr).Wrap(err)
	}

	return &auth.User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Role:         auth.Role(role),
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

var _ auth.UserRepository = (*UserRepository)(nil)
