// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/switchboard/internal/metrics"
)

func TestPrometheusMetrics(t *testing.T) {
	t.Parallel()

	t.Run("records route pattern rather than raw path", func(t *testing.T) {
		t.Parallel()
		r := chi.NewRouter()
		r.Use(PrometheusMetrics)
		r.Get("/api/v1/rooms/{room_id}/messages_test", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})

		counter := metrics.APIRequestsTotal.WithLabelValues("GET", "/api/v1/rooms/{room_id}/messages_test", "418")
		before := testutil.ToFloat64(counter)

		for _, path := range []string{"/api/v1/rooms/1/messages_test", "/api/v1/rooms/2/messages_test"} {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			if rec.Code != http.StatusTeapot {
				t.Fatalf("status = %d, want 418", rec.Code)
			}
		}

		if got := testutil.ToFloat64(counter) - before; got != 2 {
			t.Errorf("expected both requests under one series, got %v", got)
		}
	})

	t.Run("defaults to 200 when WriteHeader not called", func(t *testing.T) {
		t.Parallel()
		handler := PrometheusMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("Hello"))
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusOK {
			t.Errorf("Expected default status 200, got %d", rec.Code)
		}
	})
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestMetricsResponseWriter(t *testing.T) {
	t.Parallel()

	t.Run("captures status code", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		wrapper := &metricsResponseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

		wrapper.WriteHeader(http.StatusNotFound)

		if wrapper.statusCode != http.StatusNotFound {
			t.Errorf("Expected status code 404, got %d", wrapper.statusCode)
		}
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected underlying recorder status 404, got %d", rec.Code)
		}
	})

	t.Run("hijack passes through", func(t *testing.T) {
		t.Parallel()
		rec := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
		wrapper := &metricsResponseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

		if _, _, err := wrapper.Hijack(); err != nil {
			t.Fatalf("Hijack() error = %v", err)
		}
		if !rec.hijacked {
			t.Error("underlying writer was not hijacked")
		}
		if wrapper.statusCode != http.StatusSwitchingProtocols {
			t.Errorf("status = %d, want 101", wrapper.statusCode)
		}
	})

	t.Run("hijack unsupported", func(t *testing.T) {
		t.Parallel()
		wrapper := &metricsResponseWriter{ResponseWriter: httptest.NewRecorder()}

		if _, _, err := wrapper.Hijack(); !errors.Is(err, errHijackUnsupported) {
			t.Errorf("Hijack() error = %v, want errHijackUnsupported", err)
		}
	})
}
