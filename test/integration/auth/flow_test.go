// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

//go:build integration

package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/redis/go-redis/v9"

	"github.com/jobmarket/jobmarket/internal/api"
	"github.com/jobmarket/jobmarket/internal/auth"
	"github.com/jobmarket/jobmarket/internal/auth/authtest"
	"github.com/jobmarket/jobmarket/internal/auth/postgres"
	"github.com/jobmarket/jobmarket/internal/ratelimit"
)

const tokenTTL = 15 * time.Minute

// stack is one fully wired service behind an httptest server.
type stack struct {
	server *httptest.Server
	client *http.Client
	outbox *authtest.Outbox
	users  *postgres.UserRepository
	tokens *postgres.ResetTokenRepository
	redis  *miniredis.Miniredis
	// offset shifts the service clock forward.
	offset atomic.Int64
}

func (s *stack) now() time.Time {
	return time.Now().Add(time.Duration(s.offset.Load()))
}

func (s *stack) advance(d time.Duration) {
	s.offset.Add(int64(d))
}

type limits struct {
	login, reset int64
}

func newStack(l limits) *stack {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := &stack{
		outbox: authtest.NewOutbox(),
		users:  postgres.NewUserRepository(pool),
		tokens: postgres.NewResetTokenRepository(pool),
	}

	mr, err := miniredis.Run()
	Expect(err).NotTo(HaveOccurred())
	s.redis = mr
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	DeferCleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	loginLimiter, err := ratelimit.New(rdb, ratelimit.Config{Prefix: "jm", Limit: l.login, Window: time.Minute})
	Expect(err).NotTo(HaveOccurred())
	resetLimiter, err := ratelimit.New(rdb, ratelimit.Config{Prefix: "jm", Limit: l.reset, Window: time.Hour})
	Expect(err).NotTo(HaveOccurred())

	hasher := auth.NewArgon2idHasher()
	resets, err := auth.NewPasswordResetService(s.users, s.tokens, postgres.NewTransactor(pool, logger), hasher, s.outbox,
		auth.PasswordResetConfig{BaseURL: "https://jobs.example.com", TokenTTL: tokenTTL},
		auth.WithLogger(logger), auth.WithClock(s.now), auth.WithThrottle(resetLimiter))
	Expect(err).NotTo(HaveOccurred())

	issuer, err := auth.NewSessionIssuer(auth.SessionConfig{Secret: []byte(strings.Repeat("k", 32))},
		auth.WithClock(s.now))
	Expect(err).NotTo(HaveOccurred())
	sessions, err := auth.NewAuthService(s.users, hasher, issuer,
		auth.WithLogger(logger), auth.WithThrottle(loginLimiter))
	Expect(err).NotTo(HaveOccurred())

	router, err := api.NewRouter(api.Config{}, api.Deps{Resets: resets, Sessions: sessions, Logger: logger})
	Expect(err).NotTo(HaveOccurred())

	s.server = httptest.NewServer(router)
	DeferCleanup(s.server.Close)

	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	s.client = &http.Client{Jar: jar, Timeout: 10 * time.Second}
	return s
}

func (s *stack) post(path string, body any) (int, map[string]any) {
	raw, err := json.Marshal(body)
	Expect(err).NotTo(HaveOccurred())
	resp, err := s.client.Post(s.server.URL+path, "application/json", bytes.NewReader(raw))
	Expect(err).NotTo(HaveOccurred())
	return decode(resp)
}

func (s *stack) get(path string) (int, map[string]any) {
	resp, err := s.client.Get(s.server.URL + path)
	Expect(err).NotTo(HaveOccurred())
	return decode(resp)
}

func decode(resp *http.Response) (int, map[string]any) {
	defer func() { _ = resp.Body.Close() }()
	var out map[string]any
	Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
	return resp.StatusCode, out
}

func (s *stack) createUser(email, password string) *auth.User {
	user, err := auth.CreateUser(context.Background(), s.users, auth.NewArgon2idHasher(), email, password, auth.RoleCandidate)
	Expect(err).NotTo(HaveOccurred())
	return user
}

func (s *stack) requestReset(email string) string {
	before := len(s.outbox.Messages())
	status, body := s.post("/auth/password/forgot", map[string]string{"email": email})
	Expect(status).To(Equal(http.StatusOK))
	Expect(body).To(Equal(map[string]any{"ok": true}))
	Expect(s.outbox.Messages()).To(HaveLen(before + 1))
	return s.outbox.LastToken()
}

var _ = Describe("Password reset over HTTP", func() {
	var s *stack

	BeforeEach(func() {
		truncate()
		s = newStack(limits{login: 5, reset: 10})
	})

	It("resets the password and logs in with the new one", func() {
		s.createUser("alice@example.com", "original-pass")
		token := s.requestReset("Alice@Example.com")

		status, _ := s.get("/auth/password/reset?token=" + token)
		Expect(status).To(Equal(http.StatusOK))

		status, _ = s.post("/auth/password/reset", map[string]string{"token": token, "password": "brand-new-pass"})
		Expect(status).To(Equal(http.StatusOK))

		By("rejecting the old password")
		status, body := s.post("/auth/login", map[string]string{"email": "alice@example.com", "password": "original-pass"})
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(body["error"]).To(Equal(api.CodeInvalidCredentials))

		By("accepting the new password and setting the session cookie")
		status, body = s.post("/auth/login", map[string]string{"email": "alice@example.com", "password": "brand-new-pass"})
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["token"]).NotTo(BeEmpty())

		status, body = s.get("/auth/session")
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["email"]).To(Equal("alice@example.com"))

		By("refusing to redeem the token twice")
		status, body = s.post("/auth/password/reset", map[string]string{"token": token, "password": "third-pass-123"})
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body["error"]).To(Equal(api.CodeInvalidToken))
	})

	It("answers unknown emails exactly like known ones", func() {
		s.createUser("known@example.com", "original-pass")

		status, unknown := s.post("/auth/password/forgot", map[string]string{"email": "ghost@example.com"})
		Expect(status).To(Equal(http.StatusOK))
		Expect(s.outbox.Messages()).To(BeEmpty())

		status, known := s.post("/auth/password/forgot", map[string]string{"email": "known@example.com"})
		Expect(status).To(Equal(http.StatusOK))
		Expect(known).To(Equal(unknown))
		Expect(s.outbox.Messages()).To(HaveLen(1))
	})

	It("invalidates earlier tokens when a new one is requested", func() {
		s.createUser("bob@example.com", "original-pass")
		first := s.requestReset("bob@example.com")
		second := s.requestReset("bob@example.com")
		Expect(second).NotTo(Equal(first))

		status, _ := s.post("/auth/password/reset", map[string]string{"token": first, "password": "brand-new-pass"})
		Expect(status).To(Equal(http.StatusBadRequest))

		status, _ = s.post("/auth/password/reset", map[string]string{"token": second, "password": "brand-new-pass"})
		Expect(status).To(Equal(http.StatusOK))
	})

	It("rejects tokens after they expire", func() {
		s.createUser("carol@example.com", "original-pass")
		token := s.requestReset("carol@example.com")

		s.advance(tokenTTL + time.Second)

		status, body := s.get("/auth/password/reset?token=" + token)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body["error"]).To(Equal(api.CodeInvalidToken))

		status, _ = s.post("/auth/password/reset", map[string]string{"token": token, "password": "brand-new-pass"})
		Expect(status).To(Equal(http.StatusBadRequest))

		By("pruning the expired token")
		deleted, err := s.tokens.DeleteExpired(context.Background(), s.now())
		Expect(err).NotTo(HaveOccurred())
		Expect(deleted).To(BeEquivalentTo(1))
	})

	It("rejects weak passwords without spending the token", func() {
		s.createUser("dave@example.com", "original-pass")
		token := s.requestReset("dave@example.com")

		status, body := s.post("/auth/password/reset", map[string]string{"token": token, "password": "short"})
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body["error"]).To(Equal(api.CodeValidation))

		status, _ = s.post("/auth/password/reset", map[string]string{"token": token, "password": "long-enough-pass"})
		Expect(status).To(Equal(http.StatusOK))
	})
})

var _ = Describe("Throttling", func() {
	var s *stack

	BeforeEach(func() {
		truncate()
		s = newStack(limits{login: 2, reset: 1})
	})

	It("silently drops reset requests over budget", func() {
		s.createUser("erin@example.com", "original-pass")
		s.requestReset("erin@example.com")

		status, body := s.post("/auth/password/forgot", map[string]string{"email": "erin@example.com"})
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(Equal(map[string]any{"ok": true}))
		Expect(s.outbox.Messages()).To(HaveLen(1))
		Expect(s.redis.Exists("jm:reset:erin@example.com")).To(BeTrue())
	})

	It("rate limits repeated failed logins", func() {
		s.createUser("frank@example.com", "original-pass")
		creds := map[string]string{"email": "frank@example.com", "password": "wrong-pass"}

		for range 2 {
			status, _ := s.post("/auth/login", creds)
			Expect(status).To(Equal(http.StatusUnauthorized))
		}
		status, body := s.post("/auth/login", creds)
		Expect(status).To(Equal(http.StatusTooManyRequests))
		Expect(body["error"]).To(Equal(api.CodeRateLimited))
	})
})
