// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/jobmarket/jobmarket/pkg/errutil"
)

// Session is the result of a successful login.
type Session struct {
	Token  string
	Claims SessionClaims
}

// Service provides login and session verification.
type Service struct {
	users    UserRepository
	hasher   PasswordHasher
	sessions *SessionIssuer
	opts     options
}

// NewAuthService creates a new Service.
func NewAuthService(users UserRepository, hasher PasswordHasher, sessions *SessionIssuer, opts ...Option) (*Service, error) {
	switch {
	case users == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("user repository is required")
	case hasher == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	case sessions == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("session issuer is required")
	}

	return &Service{
		users:    users,
		hasher:   hasher,
		sessions: sessions,
		opts:     newOptions(opts),
	}, nil
}

// dummyPasswordHash is verified when the email is unknown so that the
// response time does not reveal whether an account exists. It never matches.
//
//nolint:gosec // G101: intentionally fake hash, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Login verifies email and password and issues a session token.
// An unknown email, a wrong password and an unreadable stored hash all
// produce the same ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = NormalizeEmail(email)
	if err := validateInput(loginInput{Email: email, Password: password}); err != nil {
		return nil, err
	}

	throttleKey := "login:" + email
	if !s.opts.allow(ctx, throttleKey) {
		s.opts.logger.InfoContext(ctx, "login throttled")
		return nil, oops.Code("AUTH_RATE_LIMITED").Wrap(ErrRateLimited)
	}

	user, lookupErr := s.users.GetByEmail(ctx, email)

	targetHash := dummyPasswordHash
	userExists := false
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
		userExists = true
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(lookupErr)
	}

	// Always verify, even for unknown users, to keep timing uniform.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		// A stored hash that cannot be parsed is an operator problem; the
		// caller sees the same answer as for a wrong password.
		if userExists {
			errutil.Log(ctx, s.opts.logger, slog.LevelError, "stored password hash unreadable",
				oops.Code("AUTH_HASH_CORRUPT").
					With("operation", "verify password").
					With("user_id", user.ID.String()).
					Wrap(verifyErr))
		}
		return nil, invalidCredentials()
	}

	if !userExists || !valid {
		return nil, invalidCredentials()
	}

	s.opts.resetThrottle(ctx, throttleKey)
	s.upgradeHash(ctx, user, password)

	token, claims, err := s.sessions.Issue(SessionClaims{
		Subject: user.ID.String(),
		Email:   user.Email,
		Role:    user.Role,
	})
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue session").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.opts.logger.InfoContext(ctx, "login succeeded", "user_id", user.ID.String())
	return &Session{Token: token, Claims: claims}, nil
}

// upgradeHash replaces a legacy hash after a successful login. Failure is
// logged; the login still succeeds.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	if !s.hasher.NeedsUpgrade(user.PasswordHash) {
		return
	}
	newHash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.users.UpdatePassword(ctx, user.ID, newHash)
	}
	if err != nil {
		errutil.Log(ctx, s.opts.logger, slog.LevelWarn, "password hash upgrade failed",
			oops.With("operation", "upgrade hash").With("user_id", user.ID.String()).Wrap(err))
		return
	}
	s.opts.logger.InfoContext(ctx, "password hash upgraded", "user_id", user.ID.String())
}

// VerifySession returns the claims of a valid session token, or nil.
// Callers treat nil as unauthenticated without inspecting the cause.
func (s *Service) VerifySession(token string) *SessionClaims {
	return s.sessions.Verify(token)
}

// SessionTTL returns the lifetime of issued session tokens.
func (s *Service) SessionTTL() time.Duration {
	return s.sessions.TTL()
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
}
