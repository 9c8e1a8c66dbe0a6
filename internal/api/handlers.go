// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package api

import (
	"context"
	"time"

	"github.com/tomtom215/switchboard/internal/auth"
	"github.com/tomtom215/switchboard/internal/database"
	"github.com/tomtom215/switchboard/internal/dispatch"
	"github.com/tomtom215/switchboard/internal/websocket"
)

// BusHealth reports the state of the event bus transport.
// *eventbus.Resilient implements it.
type BusHealth interface {
	Transport() string
	State() string
}

// SchedulerHealth reports whether the scheduler service is running.
type SchedulerHealth interface {
	IsRunning() bool
}

// Handler holds the dependencies of every HTTP handler.
type Handler struct {
	db         *database.DB
	dispatcher *dispatch.Dispatcher
	hub        *websocket.Hub
	authn      *auth.Authenticator
	bus        BusHealth
	scheduler  SchedulerHealth
	version    string
	startTime  time.Time

	// now is replaced in tests.
	now func() time.Time
}

// HandlerDeps groups NewHandler's collaborators. Bus and Scheduler are
// optional and only feed the health endpoints.
type HandlerDeps struct {
	DB            *database.DB
	Dispatcher    *dispatch.Dispatcher
	Hub           *websocket.Hub
	Authenticator *auth.Authenticator
	Bus           BusHealth
	Scheduler     SchedulerHealth
	Version       string
}

// NewHandler creates a new Handler.
func NewHandler(deps HandlerDeps) *Handler {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	return &Handler{
		db:         deps.DB,
		dispatcher: deps.Dispatcher,
		hub:        deps.Hub,
		authn:      deps.Authenticator,
		bus:        deps.Bus,
		scheduler:  deps.Scheduler,
		version:    version,
		startTime:  time.Now(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// pingDB checks store connectivity with a short deadline.
func (h *Handler) pingDB(ctx context.Context) bool {
	if h.db == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return h.db.Ping(ctx) == nil
}
