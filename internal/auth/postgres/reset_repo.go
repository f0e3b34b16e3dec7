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

const resetColumns = `id, user_id, email, token_hash, expires_at, used_at, created_at`

// ResetTokenRepository implements auth.ResetTokenRepository using PostgreSQL.
type ResetTokenRepository struct {
	db DB
}

// NewResetTokenRepository creates a new ResetTokenRepository.
func NewResetTokenRepository(db DB) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

// InvalidateUnused deletes the user's unused tokens. Inside a transaction it
// first takes the per-user token lock, so two concurrent issuances for one
// user serialize and leave a single live token.
func (r *ResetTokenRepository) InvalidateUnused(ctx context.Context, userID ulid.ULID) (int64, error) {
	q, inTx := conn(ctx, r.db)
	if inTx {
		if err := lockUserTokens(ctx, q, userID.String()); err != nil {
			return 0, err
		}
	}

	tag, err := q.Exec(ctx, `
		DELETE FROM reset_tokens WHERE user_id = $1 AND used_at IS NULL
	`, userID.String())
	if err != nil {
		return 0, oops.Code("RESET_INVALIDATE_FAILED").
			With("operation", "delete unused tokens").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// lockUserTokens takes the transaction-scoped advisory lock guarding one
// user's tokens. Every transaction that locks token rows takes this lock
// first, so issuance and redemption acquire locks in the same order.
// The lock is re-entrant within a transaction.
func lockUserTokens(ctx context.Context, q querier, userID string) error {
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "reset_tokens:"+userID); err != nil {
		return oops.Code("RESET_LOCK_FAILED").
			With("operation", "lock user tokens").
			With("user_id", userID).
			Wrap(err)
	}
	return nil
}

// Create stores a new reset token.
func (r *ResetTokenRepository) Create(ctx context.Context, token *auth.ResetToken) error {
	q, _ := conn(ctx, r.db)
	_, err := q.Exec(ctx, `
		INSERT INTO reset_tokens (id, user_id, email, token_hash, expires_at, used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, token.ID.String(), token.UserID.String(), token.Email, token.TokenHash,
		token.ExpiresAt, token.UsedAt, token.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("RESET_TOKEN_COLLISION").With("user_id", token.UserID.String()).Wrap(err)
		}
		return oops.Code("RESET_CREATE_FAILED").
			With("operation", "insert reset token").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	return nil
}

// FindByHash looks a token up by its hash. Inside a transaction it takes
// the owner's token lock and then locks the row until commit.
func (r *ResetTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*auth.ResetToken, error) {
	q, inTx := conn(ctx, r.db)
	query := `SELECT ` + resetColumns + ` FROM reset_tokens WHERE token_hash = $1`
	if inTx {
		var userID string
		err := q.QueryRow(ctx, `SELECT user_id FROM reset_tokens WHERE token_hash = $1`, tokenHash).Scan(&userID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
		}
		if err != nil {
			return nil, oops.Code("RESET_LOOKUP_FAILED").With("operation", "resolve token owner").Wrap(err)
		}
		if err := lockUserTokens(ctx, q, userID); err != nil {
			return nil, err
		}
		query += ` FOR UPDATE`
	}

	token, err := scanResetToken(q.QueryRow(ctx, query, tokenHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return token, err
}

// MarkUsed sets used_at only while the token is unused and unexpired at usedAt.
func (r *ResetTokenRepository) MarkUsed(ctx context.Context, id ulid.ULID, usedAt time.Time) error {
	q, _ := conn(ctx, r.db)
	tag, err := q.Exec(ctx, `
		UPDATE reset_tokens SET used_at = $2
		WHERE id = $1 AND used_at IS NULL AND expires_at > $2
	`, id.String(), usedAt)
	if err != nil {
		return oops.Code("RESET_MARK_USED_FAILED").
			With("operation", "mark token used").
			With("token_id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("RESET_TOKEN_CONSUMED").With("token_id", id.String()).Wrap(auth.ErrTokenConsumed)
	}
	return nil
}

// DeleteExpired removes tokens that expired before now.
func (r *ResetTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	q, _ := conn(ctx, r.db)
	tag, err := q.Exec(ctx, `DELETE FROM reset_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, oops.Code("RESET_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired tokens").
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// scanResetToken leaves pgx.ErrNoRows unwrapped for the caller.
func scanResetToken(row pgx.Row) (*auth.ResetToken, error) {
	var (
		idStr, userIDStr string
		t                auth.ResetToken
	)
	err := row.Scan(&idStr, &userIDStr, &t.Email, &t.TokenHash, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers attach context
		}
		return nil, oops.Code("RESET_SCAN_FAILED").With("operation", "scan reset token").Wrap(err)
	}

	if t.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("RESET_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if t.UserID, err = ulid.Parse(userIDStr); err != nil {
		return nil, oops.Code("RESET_INVALID_USER_ID").With("user_id", userIDStr).Wrap(err)
	}
	return &t, nil
}

var _ auth.ResetTokenRepository = (*ResetTokenRepository)(nil)
