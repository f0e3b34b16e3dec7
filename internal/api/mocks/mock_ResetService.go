// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

// Package mocks holds hand-written testify mocks for the api service interfaces.
package mocks

import (
	context "context"

	mock "github.com/stretchr/testify/mock"
)

// MockResetService is a mock type for the ResetService type
type MockResetService struct {
	mock.Mock
}

// CheckToken provides a mock function with given fields: ctx, rawToken
func (_m *MockResetService) CheckToken(ctx context.Context, rawToken string) error {
	ret := _m.Called(ctx, rawToken)

	if len(ret) == 0 {
		panic("no return value specified for CheckToken")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string) error); ok {
		r0 = rf(ctx, rawToken)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// RequestReset provides a mock function with given fields: ctx, email
func (_m *MockResetService) RequestReset(ctx context.Context, email string) error {
	ret := _m.Called(ctx, email)

	if len(ret) == 0 {
		panic("no return value specified for RequestReset")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string) error); ok {
		r0 = rf(ctx, email)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// ResetPassword provides a mock function with given fields: ctx, rawToken, newPassword
func (_m *MockResetService) ResetPassword(ctx context.Context, rawToken string, newPassword string) error {
	ret := _m.Called(ctx, rawToken, newPassword)

	if len(ret) == 0 {
		panic("no return value specified for ResetPassword")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) error); ok {
		r0 = rf(ctx, rawToken, newPassword)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// NewMockResetService creates a new instance of MockResetService. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockResetService(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockResetService {
	m := &MockResetService{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
