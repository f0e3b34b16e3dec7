// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

// Package authtest provides in-memory implementations of the auth storage
// and notification interfaces for tests.
package authtest

import (
	"context"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/jobmarket/jobmarket/internal/auth"
)

// Operation names accepted by Store.FailOn.
const (
	OpGetByEmail       = "GetByEmail"
	OpUpdatePassword   = "UpdatePassword"
	OpInvalidateUnused = "InvalidateUnused"
	OpCreateToken      = "CreateToken"
	OpFindByHash       = "FindByHash"
	OpMarkUsed         = "MarkUsed"
)

type txKey struct{}

// Store is an in-memory UserRepository, ResetTokenRepository and Transactor.
// Transactions are serialized and roll back every change on error.
type Store struct {
	txMu sync.Mutex

	mu       sync.Mutex
	users    map[ulid.ULID]auth.User
	tokens   map[ulid.ULID]auth.ResetToken
	failures map[string]error
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		users:    make(map[ulid.ULID]auth.User),
		tokens:   make(map[ulid.ULID]auth.ResetToken),
		failures: make(map[string]error),
	}
}

// FailOn makes the next call of op return err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *Store) injected(op string) error {
	err, ok := s.failures[op]
	if !ok {
		return nil
	}
	delete(s.failures, op)
	return err
}

// InTransaction implements auth.Transactor.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	users := maps.Clone(s.users)
	tokens := maps.Clone(s.tokens)
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.users = users
		s.tokens = tokens
		s.mu.Unlock()
		return err
	}
	return nil
}

// AddUser stores user directly.
func (s *Store) AddUser(user *auth.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = *user
}

// Create implements auth.UserRepository.
func (s *Store) Create(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return oops.Code("USER_EMAIL_TAKEN").With("email", user.Email).Errorf("email already registered")
		}
	}
	s.users[user.ID] = *user
	return nil
}

// GetByID implements auth.UserRepository.
func (s *Store) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &u, nil
}

// GetByEmail implements auth.UserRepository.
func (s *Store) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpGetByEmail); err != nil {
		return nil, err
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, auth.ErrNotFound
}

// UpdatePassword implements auth.UserRepository.
func (s *Store) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpUpdatePassword); err != nil {
		return err
	}
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return nil
}

// PasswordHash returns the stored hash of the user, or "" if unknown.
func (s *Store) PasswordHash(id ulid.ULID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id].PasswordHash
}

// InvalidateUnused implements auth.ResetTokenRepository.
func (s *Store) InvalidateUnused(_ context.Context, userID ulid.ULID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpInvalidateUnused); err != nil {
		return 0, err
	}
	var n int64
	for id, t := range s.tokens {
		if t.UserID == userID && t.UsedAt == nil {
			delete(s.tokens, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) createToken(_ context.Context, token *auth.ResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpCreateToken); err != nil {
		return err
	}
	for _, t := range s.tokens {
		if t.TokenHash == token.TokenHash {
			return oops.Code("RESET_TOKEN_COLLISION").Errorf("token hash already exists")
		}
	}
	s.tokens[token.ID] = *token
	return nil
}

// FindByHash implements auth.ResetTokenRepository.
func (s *Store) FindByHash(_ context.Context, tokenHash string) (*auth.ResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpFindByHash); err != nil {
		return nil, err
	}
	for _, t := range s.tokens {
		if t.TokenHash == tokenHash {
			return &t, nil
		}
	}
	return nil, auth.ErrNotFound
}

// MarkUsed implements auth.ResetTokenRepository.
func (s *Store) MarkUsed(_ context.Context, id ulid.ULID, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpMarkUsed); err != nil {
		return err
	}
	t, ok := s.tokens[id]
	if !ok || t.UsedAt != nil || !usedAt.Before(t.ExpiresAt) {
		return auth.ErrTokenConsumed
	}
	used := usedAt.UTC()
	t.UsedAt = &used
	s.tokens[id] = t
	return nil
}

// DeleteExpired implements auth.ResetTokenRepository.
func (s *Store) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.tokens {
		if t.ExpiresAt.Before(now) {
			delete(s.tokens, id)
			n++
		}
	}
	return n, nil
}

// Tokens returns a ResetTokenRepository view of the store.
func (s *Store) Tokens() auth.ResetTokenRepository {
	return tokenRepo{s}
}

// TokensFor returns copies of every stored token of the user.
func (s *Store) TokensFor(userID ulid.ULID) []auth.ResetToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.ResetToken
	for _, t := range s.tokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

// tokenRepo resolves the Create name clash between the two repositories.
type tokenRepo struct {
	*Store
}

func (r tokenRepo) Create(ctx context.Context, token *auth.ResetToken) error {
	return r.createToken(ctx, token)
}

var (
	_ auth.UserRepository       = (*Store)(nil)
	_ auth.ResetTokenRepository = tokenRepo{}
	_ auth.Transactor           = (*Store)(nil)
)
