// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/tomtom215/switchboard/internal/logging"
)

// EmbeddedServerConfig configures the in-process NATS server.
type EmbeddedServerConfig struct {
	Host string
	// Port -1 picks a random free port.
	Port            int
	MaxPayloadBytes int32
}

// EmbeddedServer wraps an in-process core NATS server for single-node
// deployments and tests.
type EmbeddedServer struct {
	server    *server.Server
	clientURL string
}

// NewEmbeddedServer creates and starts an embedded NATS server. It returns an
// error if the server is not accepting connections within 30 seconds.
func NewEmbeddedServer(cfg EmbeddedServerConfig) (*EmbeddedServer, error) {
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	maxPayload := cfg.MaxPayloadBytes
	if maxPayload <= 0 {
		maxPayload = 1024 * 1024
	}

	opts := &server.Options{
		ServerName: "switchboard",
		Host:       host,
		Port:       cfg.Port,
		JetStream:  false,
		NoLog:      true,
		NoSigs:     true,
		MaxPayload: maxPayload,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within timeout")
	}

	logging.Info().Str("url", ns.ClientURL()).Msg("Embedded NATS server started")

	return &EmbeddedServer{
		server:    ns,
		clientURL: ns.ClientURL(),
	}, nil
}

// ClientURL returns the connection URL for clients.
func (s *EmbeddedServer) ClientURL() string {
	return s.clientURL
}

// IsRunning returns server health status.
func (s *EmbeddedServer) IsRunning() bool {
	return s.server.Running()
}

// Shutdown stops the server and waits for it to exit or ctx to end.
func (s *EmbeddedServer) Shutdown(ctx context.Context) error {
	s.server.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.WaitForShutdown()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Serve implements suture.Service. The server is already running; Serve
// holds it until ctx is cancelled and then shuts it down.
func (s *EmbeddedServer) Serve(ctx context.Context) error {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("Embedded NATS server shutdown timed out")
	}
	return ctx.Err()
}

// String returns the service name for supervisor logs.
func (s *EmbeddedServer) String() string {
	return "nats-embedded"
}
