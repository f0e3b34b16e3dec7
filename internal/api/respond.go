// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JobMarket Contributors

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/jobmarket/jobmarket/internal/auth"
	"github.com/jobmarket/jobmarket/pkg/errutil"
)

// Error codes returned in the "error" field.
const (
	CodeValidation         = "validation_error"
	CodeInvalidToken       = "invalid_token"
	CodeInvalidCredentials = "invalid_credentials"
	CodeRateLimited        = "rate_limited"
	CodeUnauthenticated    = "unauthenticated"
	CodeInternal           = "internal_error"
)

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	OK      bool              `json:"ok"`
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// writeError maps a service error onto the public error contract. Only
// errors the caller can act on are described; the rest become a generic
// 500 and are logged.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var verr *auth.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   CodeValidation,
			Message: "validation failed",
			Fields:  verr.FieldMap(),
		})
	case errors.Is(err, auth.ErrInvalidToken):
		writeFailure(w, http.StatusBadRequest, CodeInvalidToken, auth.ErrInvalidToken.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeFailure(w, http.StatusUnauthorized, CodeInvalidCredentials, auth.ErrInvalidCredentials.Error())
	case errors.Is(err, auth.ErrRateLimited):
		writeFailure(w, http.StatusTooManyRequests, CodeRateLimited, auth.ErrRateLimited.Error())
	default:
		errutil.Log(r.Context(), logger, slog.LevelError, "request failed",
			oops.With("method", r.Method).With("path", r.URL.Path).Wrap(err))
		writeFailure(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

// outcome is the metric label for a service result.
func outcome(err error, success string) string {
	var verr *auth.ValidationError
	switch {
	case err == nil:
		return success
	case errors.As(err, &verr):
		return "invalid_input"
	case errors.Is(err, auth.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, auth.ErrRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}

// decodeJSON reads a bounded JSON body into dst. The body must hold exactly
// one object with known fields; anything else is reported as a validation
// error on the "body" field.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return malformedBody(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errTrailingData
		}
		return malformedBody(err)
	}
	return nil
}

var errTrailingData = errors.New("trailing data after JSON object")

func malformedBody(cause error) error {
	return oops.Code("REQUEST_MALFORMED").
		With("cause", cause.Error()).
		Wrap(&auth.ValidationError{
			Fields: []auth.FieldError{{Field: "body", Rule: "json", Message: "must be a single JSON object"}},
		})
}
