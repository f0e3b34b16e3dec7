// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/jobmarket/jobmarket/pkg/errutil"
)

// PasswordResetConfig configures a PasswordResetService.
type PasswordResetConfig struct {
	// BaseURL is the public application URL the reset link is built on.
	BaseURL string

	// TokenTTL defaults to DefaultResetTokenTTL.
	TokenTTL time.Duration

	// MinResponseTime pads RequestReset so that known and unknown emails
	// take comparable time. Zero disables padding.
	MinResponseTime time.Duration
}

// PasswordResetService handles password reset operations.
type PasswordResetService struct {
	users    UserRepository
	tokens   ResetTokenRepository
	tx       Transactor
	hasher   PasswordHasher
	notifier Notifier

	resetURL    *url.URL
	tokenTTL    time.Duration
	minResponse time.Duration

	opts options
}

// NewPasswordResetService creates a new PasswordResetService.
func NewPasswordResetService(
	users UserRepository,
	tokens ResetTokenRepository,
	tx Transactor,
	hasher PasswordHasher,
	notifier Notifier,
	cfg PasswordResetConfig,
	opts ...Option,
) (*PasswordResetService, error) {
	switch {
	case users == nil:
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("user repository is required")
	case tokens == nil:
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("reset token repository is required")
	case tx == nil:
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("transactor is required")
	case hasher == nil:
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("password hasher is required")
	case notifier == nil:
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("notifier is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, oops.Code("RESET_SERVICE_INVALID").
			With("base_url", cfg.BaseURL).
			Errorf("base URL must be an absolute http(s) URL")
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}

	return &PasswordResetService{
		users:       users,
		tokens:      tokens,
		tx:          tx,
		hasher:      hasher,
		notifier:    notifier,
		resetURL:    base.JoinPath("auth", "reset"),
		tokenTTL:    ttl,
		minResponse: cfg.MinResponseTime,
		opts:        newOptions(opts),
	}, nil
}

// RequestReset starts a password reset for the account registered under
// email. The result is the same whether or not such an account exists; only
// a malformed email or a storage failure returns an error.
//
// For an existing account every unused token is invalidated, a new token is
// stored and the reset link is handed to the notifier. A notifier failure is
// logged and does not fail the request.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if err := validateInput(resetRequestInput{Email: email}); err != nil {
		return err
	}

	defer s.padResponse(ctx, time.Now())

	if !s.opts.allow(ctx, "reset:"+email) {
		s.opts.logger.InfoContext(ctx, "password reset request throttled")
		return nil
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.opts.logger.DebugContext(ctx, "password reset requested for unknown account")
			return nil
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	raw, hash, err := GenerateToken(s.opts.random)
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "generate token").
			Wrap(err)
	}

	token, err := NewResetToken(user.ID, user.Email, hash, s.opts.now(), s.tokenTTL)
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "new reset token").
			Wrap(err)
	}

	var superseded int64
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		n, err := s.tokens.InvalidateUnused(ctx, user.ID)
		if err != nil {
			return oops.With("operation", "invalidate unused tokens").Wrap(err)
		}
		superseded = n
		if err := s.tokens.Create(ctx, token); err != nil {
			return oops.With("operation", "create token").Wrap(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.opts.logger.InfoContext(ctx, "password reset token issued",
		"user_id", user.ID.String(),
		"token_id", token.ID.String(),
		"superseded", superseded,
		"expires_at", token.ExpiresAt,
	)

	s.notify(ctx, user, raw)
	return nil
}

// notify renders and dispatches the reset email. Failures are logged only.
func (s *PasswordResetService) notify(ctx context.Context, user *User, raw string) {
	msg, err := renderResetMessage(user.Email, s.resetLink(raw), s.tokenTTL)
	if err == nil {
		err = s.notifier.Send(ctx, msg)
	}
	if err != nil {
		errutil.Log(ctx, s.opts.logger, slog.LevelWarn,
			"password reset notification failed, token remains valid",
			oops.Code("RESET_NOTIFY_FAILED").
				With("operation", "notify").
				With("user_id", user.ID.String()).
				Wrap(err),
		)
	}
}

// resetLink returns <base>/auth/reset?token=<raw>.
func (s *PasswordResetService) resetLink(raw string) string {
	u := *s.resetURL
	u.RawQuery = url.Values{"token": {raw}}.Encode()
	return u.String()
}

// padResponse sleeps until minResponse has elapsed since start.
func (s *PasswordResetService) padResponse(ctx context.Context, start time.Time) {
	remaining := s.minResponse - time.Since(start)
	if remaining <= 0 {
		return
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// CheckToken reports whether rawToken is currently redeemable. It returns
// ErrInvalidToken otherwise and never modifies the token.
func (s *PasswordResetService) CheckToken(ctx context.Context, rawToken string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return s.rejectToken(ctx, "empty", nil)
	}

	token, err := s.tokens.FindByHash(ctx, HashToken(rawToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.rejectToken(ctx, "not_found", nil)
		}
		return oops.Code("RESET_VALIDATE_FAILED").
			With("operation", "find token").
			Wrap(err)
	}

	now := s.opts.now()
	if !token.IsRedeemableAt(now) {
		return s.rejectToken(ctx, token.StateAt(now).String(), token)
	}
	return nil
}

// ResetPassword redeems rawToken and sets the user's password to newPassword.
//
// The password update and the token consumption happen in one transaction,
// so either both take effect or neither does. Unknown, expired and already
// used tokens all produce ErrInvalidToken.
func (s *PasswordResetService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if err := validateInput(resetPasswordInput{Password: newPassword}); err != nil {
		return err
	}

	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return s.rejectToken(ctx, "empty", nil)
	}

	// Hashing is slow; do it before the transaction holds any row lock.
	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	tokenHash := HashToken(rawToken)
	var redeemed *ResetToken

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		token, err := s.tokens.FindByHash(ctx, tokenHash)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return s.rejectToken(ctx, "not_found", nil)
			}
			return oops.Code("RESET_PASSWORD_FAILED").
				With("operation", "find token").
				Wrap(err)
		}

		now := s.opts.now()
		if !token.IsRedeemableAt(now) {
			return s.rejectToken(ctx, token.StateAt(now).String(), token)
		}

		if err := s.users.UpdatePassword(ctx, token.UserID, passwordHash); err != nil {
			if errors.Is(err, ErrNotFound) {
				return s.rejectToken(ctx, "user_missing", token)
			}
			return oops.Code("RESET_PASSWORD_FAILED").
				With("operation", "update password").
				With("user_id", token.UserID.String()).
				Wrap(err)
		}

		if err := s.tokens.MarkUsed(ctx, token.ID, now); err != nil {
			if errors.Is(err, ErrTokenConsumed) {
				return s.rejectToken(ctx, "concurrent_redemption", token)
			}
			return oops.Code("RESET_PASSWORD_FAILED").
				With("operation", "mark token used").
				With("token_id", token.ID.String()).
				Wrap(err)
		}

		if _, err := s.tokens.InvalidateUnused(ctx, token.UserID); err != nil {
			return oops.Code("RESET_PASSWORD_FAILED").
				With("operation", "invalidate sibling tokens").
				With("user_id", token.UserID.String()).
				Wrap(err)
		}

		redeemed = token
		return nil
	})
	if err != nil {
		return err
	}

	s.opts.logger.InfoContext(ctx, "password reset completed",
		"user_id", redeemed.UserID.String(),
		"token_id", redeemed.ID.String(),
	)
	return nil
}

// rejectToken logs why a token was refused and returns the uniform error.
func (s *PasswordResetService) rejectToken(ctx context.Context, reason string, token *ResetToken) error {
	attrs := []any{"reason", reason}
	if token != nil {
		attrs = append(attrs,
			"token_id", token.ID.String(),
			"user_id", token.UserID.String(),
		)
	}
	s.opts.logger.InfoContext(ctx, "password reset token rejected", attrs...)
	return oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidToken)
}
