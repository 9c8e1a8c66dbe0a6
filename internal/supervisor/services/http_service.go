// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/switchboard/internal/logging"
)

// HTTPServer is the part of *http.Server the service drives.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService runs the REST and WebSocket listener under the API
// supervisor. On cancellation it drains in-flight requests for up to
// shutdownTimeout.
//
// Hijacked WebSocket connections are not tracked by Shutdown; the hub
// closes those when its own service stops.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPServerService wraps server. A non-positive timeout means 10s.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	log := logging.WithComponent(h.String())

	stopped := make(chan error, 1)
	go func() { stopped <- h.server.ListenAndServe() }()

	if srv, ok := h.server.(*http.Server); ok {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
	}

	select {
	case err := <-stopped:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			// Closed behind our back; a restart brings the listener back.
			return errors.New("http server stopped unexpectedly")
		}
		return fmt.Errorf("http server failed: %w", err)

	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()

	start := time.Now()
	if err := h.server.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	<-stopped
	log.Info().Dur("drain", time.Since(start)).Msg("HTTP server stopped")
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logs.
func (h *HTTPServerService) String() string {
	return "http-server"
}
