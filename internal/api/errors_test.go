// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/switchboard/internal/database"
	"github.com/tomtom215/switchboard/internal/dispatch"
	"github.com/tomtom215/switchboard/internal/eventbus"
	"github.com/tomtom215/switchboard/internal/scheduler"
)

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"body too large", ErrBodyTooLarge, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge},
		{"bus payload too large", fmt.Errorf("publish: %w", eventbus.ErrPayloadTooLarge), http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge},
		{"invalid body", ErrInvalidBody, http.StatusBadRequest, ErrCodeBadRequest},
		{"invalid input", fmt.Errorf("%w: empty message", dispatch.ErrInvalidInput), http.StatusBadRequest, ErrCodeBadRequest},
		{"invalid room", eventbus.ErrInvalidRoom, http.StatusBadRequest, ErrCodeBadRequest},
		{"no next run", scheduler.ErrNoNextRun, http.StatusBadRequest, ErrCodeBadRequest},
		{"not found", fmt.Errorf("load actor 9: %w", database.ErrNotFound), http.StatusNotFound, ErrCodeNotFound},
		{"not member", database.ErrNotMember, http.StatusForbidden, ErrCodeForbidden},
		{"duplicate", database.ErrDuplicate, http.StatusConflict, ErrCodeConflict},
		{"bus unavailable", eventbus.ErrBusUnavailable, http.StatusServiceUnavailable, ErrCodeBusUnavailable},
		{"bus closed", eventbus.ErrClosed, http.StatusServiceUnavailable, ErrCodeBusUnavailable},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, ErrCodeDatabaseError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)

			writeDomainError(NewResponseWriter(rec, req), tt.err)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			var body APIResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Success || body.Error == nil || body.Error.Code != tt.code {
				t.Fatalf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestWriteDomainError_HidesInternalText(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	writeDomainError(NewResponseWriter(rec, req), errors.New("duckdb: catalog error at /data/switchboard.duckdb"))

	if strings.Contains(rec.Body.String(), "/data/switchboard.duckdb") {
		t.Errorf("internal error text leaked: %s", rec.Body.String())
	}
}
