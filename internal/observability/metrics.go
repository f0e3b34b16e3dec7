// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the credential lifecycle counters. All methods are safe
// on a nil *Metrics, which records nothing.
type Metrics struct {
	ResetRequests    *prometheus.CounterVec
	ResetRedemptions *prometheus.CounterVec
	Logins           *prometheus.CounterVec
	SessionChecks    *prometheus.CounterVec
	MailDispatch     *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// NewMetrics creates and registers the jobmarket metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ResetRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobmarket_password_reset_requests_total",
				Help: "Password reset requests by outcome",
			},
			[]string{"outcome"},
		),
		ResetRedemptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobmarket_password_reset_redemptions_total",
				Help: "Password reset token redemptions by outcome",
			},
			[]string{"outcome"},
		),
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobmarket_logins_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		SessionChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobmarket_session_verifications_total",
				Help: "Session token verifications by outcome",
			},
			[]string{"outcome"},
		),
		MailDispatch: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobmarket_mail_dispatch_total",
				Help: "Outbound mail by dispatch outcome",
			},
			[]string{"outcome"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobmarket_http_requests_total",
				Help: "HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobmarket_http_request_duration_seconds",
				Help:    "HTTP request latency by route and method",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}

	reg.MustRegister(
		m.ResetRequests,
		m.ResetRedemptions,
		m.Logins,
		m.SessionChecks,
		m.MailDispatch,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// ObserveResetRequest counts a password reset request.
func (m *Metrics) ObserveResetRequest(outcome string) {
	if m != nil {
		m.ResetRequests.WithLabelValues(outcome).Inc()
	}
}

// ObserveRedemption counts a reset token redemption attempt.
func (m *Metrics) ObserveRedemption(outcome string) {
	if m != nil {
		m.ResetRedemptions.WithLabelValues(outcome).Inc()
	}
}

// ObserveLogin counts a login attempt.
func (m *Metrics) ObserveLogin(outcome string) {
	if m != nil {
		m.Logins.WithLabelValues(outcome).Inc()
	}
}

// ObserveSession counts a session verification.
func (m *Metrics) ObserveSession(outcome string) {
	if m != nil {
		m.SessionChecks.WithLabelValues(outcome).Inc()
	}
}

// ObserveMail counts a mail dispatch outcome.
func (m *Metrics) ObserveMail(outcome string) {
	if m != nil {
		m.MailDispatch.WithLabelValues(outcome).Inc()
	}
}

// ObserveHTTP records a served request.
func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}
