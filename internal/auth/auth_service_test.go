// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jobmarket/jobmarket/internal/auth"
	"github.com/jobmarket/jobmarket/internal/auth/authtest"
	"github.com/jobmarket/jobmarket/internal/auth/mocks"
	"github.com/jobmarket/jobmarket/pkg/errutil"
)

func newLoginFixture(t *testing.T, hasher auth.PasswordHasher, opts ...auth.Option) (*auth.Service, *authtest.Store, *auth.User) {
	t.Helper()
	store := authtest.NewStore()
	user, err := auth.NewUser("user@test.com", "plain$correct-horse", auth.RoleEmployer)
	require.NoError(t, err)
	store.AddUser(user)

	clock := newTestClock()
	issuer := newTestIssuer(t, clock)
	opts = append([]auth.Option{auth.WithClock(clock.Now)}, opts...)
	svc, err := auth.NewAuthService(store, hasher, issuer, opts...)
	require.NoError(t, err)
	return svc, store, user
}

func TestNewAuthService_NilDependencies(t *testing.T) {
	issuer := newTestIssuer(t, newTestClock())
	users := mocks.NewMockUserRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)

	tests := []struct {
		name        string
		users       auth.UserRepository
		hasher      auth.PasswordHasher
		issuer      *auth.SessionIssuer
		expectError string
	}{
		{name: "nil user repository", hasher: hasher, issuer: issuer, expectError: "user repository is required"},
		{name: "nil hasher", users: users, issuer: issuer, expectError: "password hasher is required"},
		{name: "nil session issuer", users: users, hasher: hasher, expectError: "session issuer is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := auth.NewAuthService(tt.users, tt.hasher, tt.issuer)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
			errutil.AssertErrorCode(t, err, "AUTH_SERVICE_INVALID")
		})
	}
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("issues session for valid credentials", func(t *testing.T) {
		svc, _, user := newLoginFixture(t, plainHasher{})

		session, err := svc.Login(ctx, " User@Test.com", "correct-horse")
		require.NoError(t, err)
		require.NotEmpty(t, session.Token)
		assert.Equal(t, user.ID.String(), session.Claims.Subject)
		assert.Equal(t, auth.RoleEmployer, session.Claims.Role)
		assert.Equal(t, time.Hour, session.Claims.ExpiresAt.Sub(session.Claims.IssuedAt))
		assert.Equal(t, time.Hour, svc.SessionTTL())

		claims := svc.VerifySession(session.Token)
		require.NotNil(t, claims)
		assert.Equal(t, session.Claims, *claims)
	})

	t.Run("wrong password and unknown email are indistinguishable", func(t *testing.T) {
		svc, _, _ := newLoginFixture(t, plainHasher{})

		_, errWrong := svc.Login(ctx, "user@test.com", "wrong-password")
		_, errUnknown := svc.Login(ctx, "nobody@test.com", "wrong-password")

		require.ErrorIs(t, errWrong, auth.ErrInvalidCredentials)
		require.ErrorIs(t, errUnknown, auth.ErrInvalidCredentials)
		assert.Equal(t, errWrong.Error(), errUnknown.Error())
		errutil.AssertErrorCode(t, errWrong, "AUTH_INVALID_CREDENTIALS")
		errutil.AssertErrorCode(t, errUnknown, "AUTH_INVALID_CREDENTIALS")
	})

	t.Run("unknown email still runs password verification", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		users.On("GetByEmail", mock.Anything, "nobody@test.com").Return(nil, auth.ErrNotFound)
		hasher.On("Verify", "some-password", mock.MatchedBy(func(h string) bool {
			return strings.HasPrefix(h, "$argon2id$")
		})).Return(false, nil).Once()

		svc, err := auth.NewAuthService(users, hasher, newTestIssuer(t, newTestClock()))
		require.NoError(t, err)

		_, err = svc.Login(ctx, "nobody@test.com", "some-password")
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("dummy hash never matches with the real hasher", func(t *testing.T) {
		svc, err := auth.NewAuthService(authtest.NewStore(), auth.NewArgon2idHasher(), newTestIssuer(t, newTestClock()))
		require.NoError(t, err)

		_, err = svc.Login(ctx, "nobody@test.com", "")
		var verr *auth.ValidationError
		require.ErrorAs(t, err, &verr)

		_, err = svc.Login(ctx, "nobody@test.com", "password")
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("malformed email is a validation error", func(t *testing.T) {
		svc, _, _ := newLoginFixture(t, plainHasher{})

		_, err := svc.Login(ctx, "user-at-test", "whatever")
		var verr *auth.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.FieldMap(), "email")
		assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("storage failure is internal", func(t *testing.T) {
		svc, store, _ := newLoginFixture(t, plainHasher{})
		store.FailOn(authtest.OpGetByEmail, errors.New("connection refused"))

		_, err := svc.Login(ctx, "user@test.com", "correct-horse")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
		errutil.AssertErrorCode(t, err, "AUTH_LOGIN_FAILED")
	})

	t.Run("corrupt stored hash looks like wrong password", func(t *testing.T) {
		logger, logs := newCaptureLogger()
		svc, store, user := newLoginFixture(t, plainHasher{}, auth.WithLogger(logger))
		require.NoError(t, store.UpdatePassword(ctx, user.ID, "garbage"))

		_, errCorrupt := svc.Login(ctx, "user@test.com", "correct-horse")
		_, errUnknown := svc.Login(ctx, "nobody@test.com", "correct-horse")

		require.ErrorIs(t, errCorrupt, auth.ErrInvalidCredentials)
		errutil.AssertErrorCode(t, errCorrupt, "AUTH_INVALID_CREDENTIALS")
		assert.Equal(t, errUnknown.Error(), errCorrupt.Error())

		entry := logs.find(t, "stored password hash unreadable")
		require.NotNil(t, entry)
		assert.Equal(t, "ERROR", entry["level"])
		assert.Equal(t, "AUTH_HASH_CORRUPT", entry["code"])
		logCtx, ok := entry["context"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, user.ID.String(), logCtx["user_id"])
	})
}

func TestService_Login_UpgradesLegacyHash(t *testing.T) {
	ctx := context.Background()
	user, err := auth.NewUser("user@test.com", "$2a$10$legacy", auth.RoleCandidate)
	require.NoError(t, err)

	t.Run("rehashes on success", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		users.On("GetByEmail", mock.Anything, "user@test.com").Return(user, nil)
		hasher.On("Verify", "secret-pass", "$2a$10$legacy").Return(true, nil)
		hasher.On("NeedsUpgrade", "$2a$10$legacy").Return(true)
		hasher.On("Hash", "secret-pass").Return("$argon2id$new", nil)
		users.On("UpdatePassword", mock.Anything, user.ID, "$argon2id$new").Return(nil).Once()

		svc, err := auth.NewAuthService(users, hasher, newTestIssuer(t, newTestClock()))
		require.NoError(t, err)

		_, err = svc.Login(ctx, "user@test.com", "secret-pass")
		require.NoError(t, err)
	})

	t.Run("upgrade failure does not block login", func(t *testing.T) {
		logger, logs := newCaptureLogger()
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		users.On("GetByEmail", mock.Anything, "user@test.com").Return(user, nil)
		hasher.On("Verify", "secret-pass", "$2a$10$legacy").Return(true, nil)
		hasher.On("NeedsUpgrade", "$2a$10$legacy").Return(true)
		hasher.On("Hash", "secret-pass").Return("$argon2id$new", nil)
		users.On("UpdatePassword", mock.Anything, user.ID, "$argon2id$new").Return(errors.New("read only"))

		svc, err := auth.NewAuthService(users, hasher, newTestIssuer(t, newTestClock()), auth.WithLogger(logger))
		require.NoError(t, err)

		session, err := svc.Login(ctx, "user@test.com", "secret-pass")
		require.NoError(t, err)
		assert.NotEmpty(t, session.Token)

		entry := logs.find(t, "password hash upgrade failed")
		require.NotNil(t, entry)
		assert.Equal(t, "WARN", entry["level"])
	})
}

func TestService_Login_Throttle(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects when throttled", func(t *testing.T) {
		throttle := mocks.NewMockThrottle(t)
		throttle.On("Allow", mock.Anything, "login:user@test.com").Return(false, nil)
		svc, _, _ := newLoginFixture(t, plainHasher{}, auth.WithThrottle(throttle))

		_, err := svc.Login(ctx, "user@test.com", "correct-horse")
		require.ErrorIs(t, err, auth.ErrRateLimited)
		errutil.AssertErrorCode(t, err, "AUTH_RATE_LIMITED")
	})

	t.Run("unknown email counts against the same budget", func(t *testing.T) {
		throttle := mocks.NewMockThrottle(t)
		throttle.On("Allow", mock.Anything, "login:nobody@test.com").Return(false, nil)
		svc, _, _ := newLoginFixture(t, plainHasher{}, auth.WithThrottle(throttle))

		_, err := svc.Login(ctx, "nobody@test.com", "whatever")
		require.ErrorIs(t, err, auth.ErrRateLimited)
	})

	t.Run("success clears the counter", func(t *testing.T) {
		throttle := mocks.NewMockThrottle(t)
		throttle.On("Allow", mock.Anything, "login:user@test.com").Return(true, nil)
		throttle.On("Reset", mock.Anything, "login:user@test.com").Return(nil).Once()
		svc, _, _ := newLoginFixture(t, plainHasher{}, auth.WithThrottle(throttle))

		_, err := svc.Login(ctx, "user@test.com", "correct-horse")
		require.NoError(t, err)
	})

	t.Run("failure keeps the counter", func(t *testing.T) {
		throttle := mocks.NewMockThrottle(t)
		throttle.On("Allow", mock.Anything, "login:user@test.com").Return(true, nil)
		svc, _, _ := newLoginFixture(t, plainHasher{}, auth.WithThrottle(throttle))

		_, err := svc.Login(ctx, "user@test.com", "wrong")
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
		throttle.AssertNotCalled(t, "Reset", mock.Anything, mock.Anything)
	})

	t.Run("backend failure fails open", func(t *testing.T) {
		logger, logs := newCaptureLogger()
		throttle := mocks.NewMockThrottle(t)
		throttle.On("Allow", mock.Anything, "login:user@test.com").Return(false, errors.New("redis down"))
		throttle.On("Reset", mock.Anything, "login:user@test.com").Return(errors.New("redis down"))
		svc, _, _ := newLoginFixture(t, plainHasher{}, auth.WithThrottle(throttle), auth.WithLogger(logger))

		_, err := svc.Login(ctx, "user@test.com", "correct-horse")
		require.NoError(t, err)
		require.NotNil(t, logs.find(t, "throttle unavailable, allowing attempt"))
		require.NotNil(t, logs.find(t, "throttle reset failed"))
	})
}

func TestService_VerifySession(t *testing.T) {
	svc, _, _ := newLoginFixture(t, plainHasher{})

	assert.Nil(t, svc.VerifySession(""))
	assert.Nil(t, svc.VerifySession("eyJhbGciOiJIUzI1NiJ9.e30.x"))
}
