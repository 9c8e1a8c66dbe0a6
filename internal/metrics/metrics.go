// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

// Package metrics holds the Prometheus collectors for Switchboard.
//
// Collectors are registered with the default registry through promauto and
// exposed at /metrics. Components call the Record helpers rather than
// touching label values directly so label sets stay consistent.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of registered WebSocket connections",
		},
	)

	WSConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total number of WebSocket connection attempts by outcome",
		},
		[]string{"endpoint", "outcome"}, // outcome: accepted, unauthenticated, auth_failed, forbidden, error
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket frames written to clients",
		},
	)

	WSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of inbound WebSocket frames by type",
		},
		[]string{"type"},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	WSSlowConsumerEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_slow_consumer_evictions_total",
			Help: "Connections closed because their send queue was full",
		},
	)

	WSRoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_rooms_active",
			Help: "Rooms with at least one local member",
		},
	)

	WSRoomJoins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_room_joins_total",
			Help: "Total number of room joins by room kind",
		},
		[]string{"kind"},
	)

	// Event Bus Metrics
	BusPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_published_total",
			Help: "Total number of publish attempts by transport and outcome",
		},
		[]string{"transport", "outcome"}, // outcome: success, failure, rejected, too_large
	)

	BusPublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventbus_publish_duration_seconds",
			Help:    "Duration of publish calls in seconds",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		},
		[]string{"transport"},
	)

	BusPayloadRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_payload_rejected_total",
			Help: "Total number of events refused for exceeding the payload limit",
		},
		[]string{"transport"},
	)

	BusReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_received_total",
			Help: "Total number of events delivered to local subscribers",
		},
		[]string{"transport"},
	)

	BusDecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_decode_errors_total",
			Help: "Total number of received payloads that could not be decoded",
		},
		[]string{"transport"},
	)

	BusSubscriptions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventbus_subscriptions_active",
			Help: "Current number of active room subscriptions",
		},
		[]string{"transport"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Dispatcher Metrics
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_actions_total",
			Help: "Total number of dispatched domain actions by kind and outcome",
		},
		[]string{"kind", "outcome"}, // outcome: delivered, push_failed, suppressed, persist_failed, duplicate
	)

	// Scheduler Metrics
	SchedulerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Total number of scheduled job executions by job and outcome",
		},
		[]string{"job", "outcome"},
	)

	SchedulerRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Duration of scheduled job executions",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"job"},
	)
)

// RecordDBQuery records a database query metric.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordWSConnection records the outcome of a WebSocket connection attempt.
func RecordWSConnection(endpoint, outcome string) {
	WSConnectionsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// RecordWSInbound records an inbound frame of the given type.
func RecordWSInbound(frameType string) {
	WSMessagesReceived.WithLabelValues(frameType).Inc()
}

// RecordBusPublish records a publish attempt on a transport.
func RecordBusPublish(transport, outcome string, duration time.Duration) {
	BusPublished.WithLabelValues(transport, outcome).Inc()
	BusPublishDuration.WithLabelValues(transport).Observe(duration.Seconds())
}

// RecordDispatch records a dispatcher action outcome.
func RecordDispatch(kind, outcome string) {
	DispatchTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordSchedulerRun records one scheduled job execution.
func RecordSchedulerRun(job string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	SchedulerRuns.WithLabelValues(job, outcome).Inc()
	SchedulerRunDuration.WithLabelValues(job).Observe(duration.Seconds())
}
