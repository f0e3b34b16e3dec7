// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is the authorization role carried in session claims.
type Role string

// Marketplace roles.
const (
	RoleCandidate Role = "candidate"
	RoleEmployer  Role = "employer"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCandidate, RoleEmployer, RoleAdmin:
		return true
	default:
		return false
	}
}

// User is the account record the credential core reads and, for the
// password hash only, writes. Registration lives outside this package.
type User struct {
	ID           ulid.ULID
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser creates a validated User. The email is normalized.
func NewUser(email, passwordHash string, role Role) (*User, error) {
	email = NormalizeEmail(email)
	if err := validateInput(newUserInput{Email: email, Role: role}); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	now := time.Now().UTC()
	return &User{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// UpdatePassword replaces the password hash of a user.
	// Returns ErrNotFound if the user does not exist.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error
}
