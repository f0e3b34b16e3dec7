// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package mocks

import (
	context "context"

	auth "github.com/jobmarket/jobmarket/internal/auth"

	mock "github.com/stretchr/testify/mock"

	time "time"
)

// MockSessionService is a mock type for the SessionService type
type MockSessionService struct {
	mock.Mock
}

// Login provides a mock function with given fields: ctx, email, password
func (_m *MockSessionService) Login(ctx context.Context, email string, password string) (*auth.Session, error) {
	ret := _m.Called(ctx, email, password)

	if len(ret) == 0 {
		panic("no return value specified for Login")
	}

	var r0 *auth.Session
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) (*auth.Session, error)); ok {
		return rf(ctx, email, password)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, string) *auth.Session); ok {
		r0 = rf(ctx, email, password)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*auth.Session)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, email, password)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// SessionTTL provides a mock function with no fields
func (_m *MockSessionService) SessionTTL() time.Duration {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for SessionTTL")
	}

	var r0 time.Duration
	if rf, ok := ret.Get(0).(func() time.Duration); ok {
		r0 = rf()
	} else {
		r0 = ret.Get(0).(time.Duration)
	}

	return r0
}

// VerifySession provides a mock function with given fields: token
func (_m *MockSessionService) VerifySession(token string) *auth.SessionClaims {
	ret := _m.Called(token)

	if len(ret) == 0 {
		panic("no return value specified for VerifySession")
	}

	var r0 *auth.SessionClaims
	if rf, ok := ret.Get(0).(func(string) *auth.SessionClaims); ok {
		r0 = rf(token)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*auth.SessionClaims)
		}
	}

	return r0
}

// NewMockSessionService creates a new instance of MockSessionService. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockSessionService(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockSessionService {
	m := &MockSessionService{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
