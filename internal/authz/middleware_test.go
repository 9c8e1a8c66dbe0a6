// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/switchboard/internal/auth"
)

func TestMiddleware_Authorize(t *testing.T) {
	e, err := NewEnforcer(&EnforcerConfig{})
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	defer e.Close()
	mw := NewMiddleware(e)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	gate := mw.Authorize(ObjectEvents, ActionWrite)(ok)

	tests := []struct {
		name   string
		claims *auth.Claims
		status int
	}{
		{"service", &auth.Claims{Role: auth.RoleService}, http.StatusNoContent},
		{"admin", &auth.Claims{Role: auth.RoleAdmin}, http.StatusNoContent},
		{"subscriber", &auth.Claims{Role: auth.RoleSubscriber}, http.StatusForbidden},
		{"no claims", nil, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
			if tt.claims != nil {
				req = req.WithContext(auth.ContextWithClaims(req.Context(), tt.claims))
			}
			rec := httptest.NewRecorder()
			gate.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestMiddleware_AuthorizeMethod(t *testing.T) {
	e, err := NewEnforcer(&EnforcerConfig{})
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	defer e.Close()

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	gate := NewMiddleware(e).AuthorizeMethod(ObjectNotifications)(ok)

	denied := DecisionsTotal.WithLabelValues(auth.RoleService, ObjectNotifications, ActionRead, "deny")
	before := testutil.ToFloat64(denied)

	for _, tt := range []struct {
		method, role string
		status       int
	}{
		{http.MethodGet, auth.RoleSubscriber, http.StatusNoContent},
		{http.MethodPost, auth.RoleSubscriber, http.StatusNoContent},
		{http.MethodDelete, auth.RoleSubscriber, http.StatusForbidden},
		{http.MethodGet, auth.RoleService, http.StatusForbidden},
	} {
		req := httptest.NewRequest(tt.method, "/api/v1/notifications", nil)
		req = req.WithContext(auth.ContextWithClaims(req.Context(), &auth.Claims{Role: tt.role}))
		rec := httptest.NewRecorder()
		gate.ServeHTTP(rec, req)
		if rec.Code != tt.status {
			t.Errorf("%s as %s: status = %d, want %d", tt.method, tt.role, rec.Code, tt.status)
		}
	}

	if got := testutil.ToFloat64(denied) - before; got != 1 {
		t.Errorf("service read denials = %v, want 1", got)
	}
}

func TestMethodAction(t *testing.T) {
	t.Parallel()
	for method, want := range map[string]string{
		http.MethodGet:    ActionRead,
		http.MethodHead:   ActionRead,
		http.MethodPost:   ActionWrite,
		http.MethodPut:    ActionWrite,
		http.MethodPatch:  ActionWrite,
		http.MethodDelete: ActionDelete,
	} {
		if got := methodAction(method); got != want {
			t.Errorf("methodAction(%s) = %s, want %s", method, got, want)
		}
	}
}
