// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

// Package api exposes the credential lifecycle over HTTP.
//
// Routes (all JSON):
//
//	POST /auth/password/forgot   {email}            request a reset link
//	GET  /auth/password/reset    ?token=            check a reset token
//	POST /auth/password/reset    {token, password}  redeem a reset token
//	POST /auth/login             {email, password}  issue a session
//	POST /auth/logout                               clear the session cookie
//	GET  /auth/session                              describe the current session
//
// Every response carries "ok". Failures add "error" (a stable machine code)
// and "message". Anything unexpected is reported as internal_error with no
// detail; the cause is logged server side.
package api
