// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	_ "github.com/tomtom215/switchboard/docs" // swagger spec for /swagger/*
	"github.com/tomtom215/switchboard/internal/api"
	"github.com/tomtom215/switchboard/internal/auth"
	"github.com/tomtom215/switchboard/internal/authz"
	"github.com/tomtom215/switchboard/internal/config"
	"github.com/tomtom215/switchboard/internal/database"
	"github.com/tomtom215/switchboard/internal/dispatch"
	"github.com/tomtom215/switchboard/internal/eventbus"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/scheduler"
	"github.com/tomtom215/switchboard/internal/supervisor"
	"github.com/tomtom215/switchboard/internal/supervisor/services"
	ws "github.com/tomtom215/switchboard/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Switchboard exited with error")
	}
}

//nolint:gocyclo // sequential wiring of every component
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("environment", cfg.Server.Environment).
		Str("db_path", cfg.Database.Path).
		Str("bus_driver", cfg.Bus.Driver).
		Msg("Starting Switchboard with supervisor tree")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === STORAGE ===
	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	// === EVENT BUS ===
	// origin tags events published by this process so its own echoes can
	// be told apart from other replicas in logs.
	host, _ := os.Hostname()
	origin := fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])

	transport, err := eventbus.Open(ctx, &cfg.Bus, origin)
	if err != nil {
		return fmt.Errorf("open event bus: %w", err)
	}
	defer func() {
		if err := transport.Bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()
	logging.Info().
		Str("transport", transport.Bus.Transport()).
		Str("origin", origin).
		Bool("embedded_nats", transport.Embedded != nil).
		Msg("Event bus connected")

	if cfg.IsProduction() && transport.Bus.Transport() == config.BusDriverMemory {
		logging.Warn().Msg("Memory event bus delivers only within this process; run one replica or use nats/redis")
	}

	// === DISPATCH ===
	dispatcher := dispatch.New(db, transport.Bus, dispatch.Options{
		NotifyMembers: cfg.WebSocket.NotifyMembers,
	})
	defer dispatcher.Close()

	// === AUTHENTICATION ===
	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		return fmt.Errorf("initialize JWT manager: %w", err)
	}

	var (
		revocations auth.RevocationStore
		badgerStore *auth.BadgerRevocationStore
	)
	if cfg.Security.RevocationPath != "" {
		badgerStore, err = auth.OpenBadgerRevocationStore(cfg.Security.RevocationPath)
		if err != nil {
			return err
		}
		revocations = badgerStore
		logging.Info().Str("path", cfg.Security.RevocationPath).Msg("Token revocations persisted in BadgerDB")
	} else {
		revocations = auth.NewMemoryRevocationStore()
		if cfg.IsProduction() {
			logging.Warn().Msg("Token revocations are in memory and are lost on restart; set REVOCATION_PATH")
		}
	}
	defer func() {
		if err := revocations.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing revocation store")
		}
	}()

	authenticator := auth.NewAuthenticator(jwtManager, revocations, db)
	authMiddleware := auth.NewMiddleware(authenticator)

	enforcer, err := authz.NewEnforcer(&authz.EnforcerConfig{
		PolicyPath:     cfg.Security.PolicyPath,
		ReloadInterval: 30 * time.Second,
		CacheTTL:       30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("initialize authorization: %w", err)
	}
	defer enforcer.Close()

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}

	// === CONNECTIONS ===
	hub := ws.NewHub(transport.Bus, authenticator, db, dispatcher, ws.HubConfig{
		Settings:          ws.SettingsFromConfig(&cfg.WebSocket),
		HandshakeTimeout:  cfg.WebSocket.HandshakeTimeout,
		AllowedOrigins:    cfg.Security.CORSOrigins,
		MembershipRecheck: cfg.WebSocket.MembershipRecheck,
	})
	dispatcher.SetEvictor(hub)

	// === SCHEDULER ===
	sched, err := scheduler.New(db, dispatcher, scheduler.ConfigFrom(&cfg.Scheduler, &cfg.Retention))
	if err != nil {
		return fmt.Errorf("initialize scheduler: %w", err)
	}

	// === HTTP ===
	handler := api.NewHandler(api.HandlerDeps{
		DB:            db,
		Dispatcher:    dispatcher,
		Hub:           hub,
		Authenticator: authenticator,
		Bus:           transport.Bus,
		Scheduler:     sched,
		Version:       version,
	})
	router := api.NewRouter(handler, authMiddleware, authz.NewMiddleware(enforcer), api.NewChiMiddleware(api.ChiMiddlewareConfigFrom(&cfg.Security)))

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	// === SUPERVISOR TREE ===
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	tree.AddDataService(sched)
	if badgerStore != nil {
		tree.AddDataService(services.NewPeriodicService("revocation-gc", badgerStore.RunGC, services.PeriodicConfig{
			Interval: 30 * time.Minute,
			Timeout:  5 * time.Minute,
		}))
	}

	tree.AddMessagingService(services.NewHubService(hub))
	if transport.Embedded != nil {
		tree.AddMessagingService(transport.Embedded)
	}

	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Interface("layers", tree.Services()).Msg("Services added to supervisor tree")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
		cancel()
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}

	logging.Info().Msg("Switchboard stopped gracefully")
	return nil
}
