// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package mocks

import (
	context "context"

	auth "github.com/jobmarket/jobmarket/internal/auth"
	mock "github.com/stretchr/testify/mock"
)

// MockNotifier is a mock type for the Notifier type
type MockNotifier struct {
	mock.Mock
}

// Send provides a mock function with given fields: ctx, msg
func (_m *MockNotifier) Send(ctx context.Context, msg auth.Message) error {
	ret := _m.Called(ctx, msg)

	if len(ret) == 0 {
		panic("no return value specified for Send")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, auth.Message) error); ok {
		r0 = rf(ctx, msg)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// NewMockNotifier creates a new instance of MockNotifier. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockNotifier(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockNotifier {
	m := &MockNotifier{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
