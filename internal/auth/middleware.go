// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/switchboard/internal/logging"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

// Middleware provides Bearer authentication for REST handlers.
type Middleware struct {
	authenticator *Authenticator
}

// NewMiddleware creates a new authentication middleware
func NewMiddleware(authenticator *Authenticator) *Middleware {
	return &Middleware{authenticator: authenticator}
}

// Authenticate is middleware that enforces authentication
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			AuthAttempts.WithLabelValues("rest", "missing").Inc()
			WriteError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid authorization header")
			return
		}

		claims, err := m.authenticator.Authenticate(r.Context(), token)
		AuthAttempts.WithLabelValues("rest", Outcome(err)).Inc()
		if err != nil {
			logging.Ctx(r.Context()).Debug().Err(err).Msg("Token validation failed")
			WriteError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	})
}

// ContextWithClaims stores claims in ctx.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, claims)
}

// ClaimsFromContext returns the claims stored by Authenticate.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	return claims, ok && claims != nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type authErrorBody struct {
	Success bool `json:"success"`
	Error   struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

// WriteError writes the error envelope the api package uses.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	var body authErrorBody
	body.Error.Code = code
	body.Error.Message = message
	body.Error.RequestID = logging.RequestIDFromContext(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Failed to write auth error")
	}
}
