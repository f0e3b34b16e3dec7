// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package auth

import (
	"context"

	"github.com/samber/oops"
)

// CreateUser validates and hashes password and stores a new account. It is
// the operator path for seeding accounts; self-service registration is not
// part of this package.
func CreateUser(ctx context.Context, users UserRepository, hasher PasswordHasher, email, password string, role Role) (*User, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").With("operation", "hash password").Wrap(err)
	}

	user, err := NewUser(email, hash, role)
	if err != nil {
		return nil, err
	}

	if err := users.Create(ctx, user); err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "store user").
			With("email", user.Email).
			Wrap(err)
	}
	return user, nil
}
