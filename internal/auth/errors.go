// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package auth

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidToken is the only error a caller sees when a reset token is
	// unknown, expired or already used.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrInvalidCredentials is returned by Login for an unknown email and for
	// a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrRateLimited is returned when a throttle rejects an attempt.
	ErrRateLimited = errors.New("too many attempts")

	// ErrTokenConsumed is returned by ResetTokenRepository.MarkUsed when the
	// token was redeemed or expired between lookup and update.
	ErrTokenConsumed = errors.New("reset token already consumed")
)
