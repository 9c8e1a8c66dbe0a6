// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package api

import (
	"net/http"
	"time"
)

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status            string  `json:"status"`
	Version           string  `json:"version"`
	DatabaseConnected bool    `json:"database_connected"`
	BusTransport      string  `json:"bus_transport,omitempty"`
	BusState          string  `json:"bus_state,omitempty"`
	SchedulerRunning  bool    `json:"scheduler_running"`
	Connections       int     `json:"connections"`
	Subscribers       int     `json:"subscribers"`
	ActiveRooms       int     `json:"active_rooms"`
	Uptime            float64 `json:"uptime_seconds"`
}

// Health handles health check requests
//
// @Summary Get system health status
// @Description Returns database connectivity, event bus breaker state, scheduler state and live connection counts
// @Tags Health
// @Produce json
// @Success 200 {object} APIResponse{data=HealthStatus} "Health status retrieved successfully"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	dbConnected := h.pingDB(r.Context())

	health := HealthStatus{
		Status:            "healthy",
		Version:           h.version,
		DatabaseConnected: dbConnected,
		Uptime:            time.Since(h.startTime).Seconds(),
	}
	if !dbConnected {
		health.Status = "degraded"
	}
	if h.bus != nil {
		health.BusTransport = h.bus.Transport()
		health.BusState = h.bus.State()
		// An open breaker means publishes are failing fast.
		if health.BusState == "open" {
			health.Status = "degraded"
		}
	}
	if h.scheduler != nil {
		health.SchedulerRunning = h.scheduler.IsRunning()
	}
	if h.hub != nil {
		health.Connections = h.hub.GetClientCount()
		health.Subscribers = h.hub.Registry().SubscriberCount()
		health.ActiveRooms = h.hub.Rooms().ActiveRooms()
	}

	NewResponseWriter(w, r).Success(health)
}

// HealthLive is the Kubernetes liveness probe. It reports only that the
// process is serving HTTP.
//
// @Summary Liveness probe
// @Tags Health
// @Produce json
// @Success 200 {object} APIResponse
// @Router /health/live [get]
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady is the Kubernetes readiness probe. It fails while the durable
// store is unreachable, since every write path persists before publishing.
//
// @Summary Readiness probe
// @Tags Health
// @Produce json
// @Success 200 {object} APIResponse
// @Failure 503 {object} APIResponse
// @Router /health/ready [get]
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !h.pingDB(r.Context()) {
		rw.ServiceUnavailable("database not reachable")
		return
	}
	rw.Success(map[string]interface{}{"ready": true})
}
