// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package mocks

import (
	context "context"

	auth "github.com/jobmarket/jobmarket/internal/auth"
	mock "github.com/stretchr/testify/mock"

	time "time"

	ulid "github.com/oklog/ulid/v2"
)

// MockResetTokenRepository is a mock type for the ResetTokenRepository type
type MockResetTokenRepository struct {
	mock.Mock
}

// InvalidateUnused provides a mock function with given fields: ctx, userID
func (_m *MockResetTokenRepository) InvalidateUnused(ctx context.Context, userID ulid.ULID) (int64, error) {
	ret := _m.Called(ctx, userID)

	if len(ret) == 0 {
		panic("no return value specified for InvalidateUnused")
	}

	var r0 int64
	if rf, ok := ret.Get(0).(func(context.Context, ulid.ULID) int64); ok {
		r0 = rf(ctx, userID)
	} else {
		r0 = ret.Get(0).(int64)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, ulid.ULID) error); ok {
		r1 = rf(ctx, userID)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Create provides a mock function with given fields: ctx, token
func (_m *MockResetTokenRepository) Create(ctx context.Context, token *auth.ResetToken) error {
	ret := _m.Called(ctx, token)

	if len(ret) == 0 {
		panic("no return value specified for Create")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, *auth.ResetToken) error); ok {
		r0 = rf(ctx, token)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// FindByHash provides a mock function with given fields: ctx, tokenHash
func (_m *MockResetTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*auth.ResetToken, error) {
	ret := _m.Called(ctx, tokenHash)

	if len(ret) == 0 {
		panic("no return value specified for FindByHash")
	}

	var r0 *auth.ResetToken
	if rf, ok := ret.Get(0).(func(context.Context, string) *auth.ResetToken); ok {
		r0 = rf(ctx, tokenHash)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*auth.ResetToken)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, tokenHash)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// MarkUsed provides a mock function with given fields: ctx, id, usedAt
func (_m *MockResetTokenRepository) MarkUsed(ctx context.Context, id ulid.ULID, usedAt time.Time) error {
	ret := _m.Called(ctx, id, usedAt)

	if len(ret) == 0 {
		panic("no return value specified for MarkUsed")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, ulid.ULID, time.Time) error); ok {
		r0 = rf(ctx, id, usedAt)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// DeleteExpired provides a mock function with given fields: ctx, now
func (_m *MockResetTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ret := _m.Called(ctx, now)

	if len(ret) == 0 {
		panic("no return value specified for DeleteExpired")
	}

	var r0 int64
	if rf, ok := ret.Get(0).(func(context.Context, time.Time) int64); ok {
		r0 = rf(ctx, now)
	} else {
		r0 = ret.Get(0).(int64)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, time.Time) error); ok {
		r1 = rf(ctx, now)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockResetTokenRepository creates a new instance of MockResetTokenRepository. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockResetTokenRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockResetTokenRepository {
	m := &MockResetTokenRepository{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
