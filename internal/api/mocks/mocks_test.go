// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package mocks_test

import (
	"github.com/jobmarket/jobmarket/internal/api"
	"github.com/jobmarket/jobmarket/internal/api/mocks"
)

var (
	_ api.ResetService   = (*mocks.MockResetService)(nil)
	_ api.SessionService = (*mocks.MockSessionService)(nil)
)
