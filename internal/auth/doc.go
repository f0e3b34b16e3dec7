// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

// Package auth implements the credential lifecycle of the job marketplace:
// password reset tokens, password verification and signed session tokens.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewUser - creates a User with a normalized email and a valid role
//   - NewResetToken - creates a ResetToken from a token hash and expiry
//
// Raw reset tokens are never persisted. Only HashToken output reaches a
// ResetTokenRepository.
//
// # Services
//
//   - PasswordResetService - issues, mails and redeems single-use reset tokens
//   - Service - login and session verification
//   - SessionIssuer - signs and verifies stateless session tokens
//
// Services are created with New* constructors that validate dependencies.
// Sessions are not revocable server-side; a token stays valid until it
// expires. Logout is a client-side concern.
package auth
