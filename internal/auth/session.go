// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	DefaultSessionTTL     = 7 * 24 * time.Hour
	DefaultSessionIssuer  = "jobmarket"
	MinSessionSecretBytes = 32
)

// SessionClaims is the identity carried by a session token.
type SessionClaims struct {
	Subject   string
	Email     string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// sessionJWTClaims is the signed wire form of SessionClaims.
type sessionJWTClaims struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

// SessionConfig configures a SessionIssuer.
type SessionConfig struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
}

// SessionIssuer signs and verifies stateless session tokens (HS256 JWTs).
// The server keeps no session records, so an issued token cannot be revoked
// before it expires.
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	parser *jwt.Parser
	opts   options
}

// NewSessionIssuer creates a SessionIssuer. The secret must be at least
// MinSessionSecretBytes long.
func NewSessionIssuer(cfg SessionConfig, opts ...Option) (*SessionIssuer, error) {
	if len(cfg.Secret) < MinSessionSecretBytes {
		return nil, oops.Code("SESSION_INVALID_SECRET").
			With("min_bytes", MinSessionSecretBytes).
			Errorf("session secret must be at least %d bytes", MinSessionSecretBytes)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultSessionIssuer
	}

	o := newOptions(opts)
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &SessionIssuer{
		secret: secret,
		ttl:    ttl,
		issuer: issuer,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithIssuer(issuer),
			jwt.WithTimeFunc(o.now),
			jwt.WithStrictDecoding(),
		),
		opts: o,
	}, nil
}

// TTL returns the lifetime of issued tokens.
func (i *SessionIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token for the subject, email and role in claims. IssuedAt
// and ExpiresAt are set by the issuer; the returned claims hold the values
// embedded in the token.
func (i *SessionIssuer) Issue(claims SessionClaims) (string, SessionClaims, error) {
	if claims.Subject == "" {
		return "", SessionClaims{}, oops.Code("SESSION_INVALID_CLAIMS").Errorf("subject cannot be empty")
	}
	if claims.Email == "" {
		return "", SessionClaims{}, oops.Code("SESSION_INVALID_CLAIMS").Errorf("email cannot be empty")
	}
	if !claims.Role.Valid() {
		return "", SessionClaims{}, oops.Code("SESSION_INVALID_CLAIMS").
			With("role", string(claims.Role)).
			Errorf("unknown role")
	}

	// NumericDate has second precision.
	now := i.opts.now().UTC().Truncate(time.Second)
	expires := now.Add(i.ttl)

	jti, err := ulid.New(ulid.Timestamp(now), i.opts.random)
	if err != nil {
		return "", SessionClaims{}, oops.Code("SESSION_ISSUE_FAILED").
			With("operation", "generate token id").
			Wrap(err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionJWTClaims{
		Email: claims.Email,
		Role:  claims.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        jti.String(),
		},
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", SessionClaims{}, oops.Code("SESSION_ISSUE_FAILED").
			With("operation", "sign token").
			Wrap(err)
	}

	claims.IssuedAt = now
	claims.ExpiresAt = expires
	return signed, claims, nil
}

// Verify checks the signature and expiry of token and returns its claims.
// It returns nil for every failure: empty, malformed, tampered, signed with
// another key or algorithm, expired, or carrying incomplete claims.
func (i *SessionIssuer) Verify(token string) *SessionClaims {
	if token == "" {
		return nil
	}

	parsed := &sessionJWTClaims{}
	tok, err := i.parser.ParseWithClaims(token, parsed, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil || !tok.Valid {
		i.opts.logger.Debug("session token rejected", "error", err)
		return nil
	}

	if parsed.Subject == "" || parsed.Email == "" || !parsed.Role.Valid() || parsed.IssuedAt == nil {
		i.opts.logger.Debug("session token rejected", "error", "incomplete claims")
		return nil
	}

	return &SessionClaims{
		Subject:   parsed.Subject,
		Email:     parsed.Email,
		Role:      parsed.Role,
		IssuedAt:  parsed.IssuedAt.UTC(),
		ExpiresAt: parsed.ExpiresAt.UTC(),
	}
}
