// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package authz

import (
	"net/http"

	"github.com/tomtom215/switchboard/internal/auth"
	"github.com/tomtom215/switchboard/internal/logging"
)

// Middleware enforces the policy on REST routes.
type Middleware struct {
	enforcer *Enforcer
}

// NewMiddleware creates a new authorization middleware.
func NewMiddleware(enforcer *Enforcer) *Middleware {
	return &Middleware{enforcer: enforcer}
}

// Authorize admits requests whose role may perform action on object.
func (m *Middleware) Authorize(object, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.check(w, r, next, object, action)
		})
	}
}

// AuthorizeMethod is Authorize with the action taken from the request method.
func (m *Middleware) AuthorizeMethod(object string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.check(w, r, next, object, methodAction(r.Method))
		})
	}
}

func (m *Middleware) check(w http.ResponseWriter, r *http.Request, next http.Handler, object, action string) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		auth.WriteError(w, r, http.StatusForbidden, "FORBIDDEN", "no authentication context")
		return
	}

	allowed, err := m.enforcer.Enforce(claims.Role, object, action)
	if err != nil {
		DecisionsTotal.WithLabelValues(claims.Role, object, action, "error").Inc()
		logging.Ctx(r.Context()).Error().Err(err).Str("object", object).Msg("Authorization error")
		auth.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "authorization failed")
		return
	}
	if !allowed {
		DecisionsTotal.WithLabelValues(claims.Role, object, action, "deny").Inc()
		auth.WriteError(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
		return
	}

	DecisionsTotal.WithLabelValues(claims.Role, object, action, "allow").Inc()
	next.ServeHTTP(w, r)
}

// methodAction maps an HTTP method to a policy action.
func methodAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ActionRead
	case http.MethodDelete:
		return ActionDelete
	default:
		return ActionWrite
	}
}
