// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultResetTokenTTL is how long an issued reset token stays redeemable.
const DefaultResetTokenTTL = 15 * time.Minute

// TokenState is the lifecycle state of a stored reset token.
// A superseded token is deleted, so it has no observable state.
type TokenState int

// Reset token states.
const (
	TokenIssued TokenState = iota
	TokenRedeemed
	TokenExpired
)

func (s TokenState) String() string {
	switch s {
	case TokenIssued:
		return "issued"
	case TokenRedeemed:
		return "redeemed"
	case TokenExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ResetToken is one outstanding or historical password reset attempt.
type ResetToken struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	Email     string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// NewResetToken creates a validated ResetToken issued at now.
func NewResetToken(userID ulid.ULID, email, tokenHash string, now time.Time, ttl time.Duration) (*ResetToken, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("RESET_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if email == "" {
		return nil, oops.Code("RESET_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if tokenHash == "" {
		return nil, oops.Code("RESET_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if ttl <= 0 {
		return nil, oops.Code("RESET_INVALID_EXPIRY").With("ttl", ttl.String()).Errorf("ttl must be positive")
	}

	now = now.UTC()
	return &ResetToken{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()),
		UserID:    userID,
		Email:     email,
		TokenHash: tokenHash,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}, nil
}

// IsRedeemableAt reports whether the token can still be redeemed at t.
func (t *ResetToken) IsRedeemableAt(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}

// StateAt returns the lifecycle state of the token at t.
func (t *ResetToken) StateAt(now time.Time) TokenState {
	switch {
	case t.UsedAt != nil:
		return TokenRedeemed
	case !now.Before(t.ExpiresAt):
		return TokenExpired
	default:
		return TokenIssued
	}
}

// ResetTokenRepository manages reset token persistence.
type ResetTokenRepository interface {
	// InvalidateUnused removes every unused token of the user and returns
	// how many were removed. Removing nothing is not an error.
	InvalidateUnused(ctx context.Context, userID ulid.ULID) (int64, error)

	// Create stores a new reset token.
	Create(ctx context.Context, token *ResetToken) error

	// FindByHash retrieves a token by exact match on its hash.
	// Returns ErrNotFound if no token has the given hash.
	FindByHash(ctx context.Context, tokenHash string) (*ResetToken, error)

	// MarkUsed sets used_at on a token that is still unused and unexpired
	// at usedAt. Returns ErrTokenConsumed if that condition no longer holds.
	MarkUsed(ctx context.Context, id ulid.ULID, usedAt time.Time) error

	// DeleteExpired removes tokens that expired before now and returns the
	// count of deleted records.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Transactor runs fn inside a single storage transaction. Repository calls
// made with the context passed to fn participate in that transaction.
// The transaction commits if fn returns nil and rolls back otherwise.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
