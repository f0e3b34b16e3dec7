// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package mocks_test

import (
	"github.com/jobmarket/jobmarket/internal/auth"
	"github.com/jobmarket/jobmarket/internal/auth/mocks"
)

// The mocks are maintained by hand; these fail to compile when an
// interface gains a method the mock lacks.
var (
	_ auth.UserRepository       = (*mocks.MockUserRepository)(nil)
	_ auth.ResetTokenRepository = (*mocks.MockResetTokenRepository)(nil)
	_ auth.PasswordHasher       = (*mocks.MockPasswordHasher)(nil)
	_ auth.Notifier             = (*mocks.MockNotifier)(nil)
	_ auth.Throttle             = (*mocks.MockThrottle)(nil)
)
