// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

/*
Package api provides the HTTP surface of Switchboard.

The router is built on go-chi/chi/v5 and serves three groups of routes:

  - /ws/chat/{room_id} and /ws/notifications upgrade to WebSocket and are
    handed to the websocket.Hub.
  - /health, /health/live, /health/ready and /metrics serve probes and
    Prometheus collectors.
  - /api/v1 carries the REST layer: the publish API for other backend
    services, rooms and membership, durable message and notification reads,
    domain actions, scheduled broadcasts, and token revocation.

# Response Format

Every REST response uses the APIResponse envelope:

	{
	  "success": true,
	  "data": { ... },
	  "meta": {"request_id": "...", "timestamp": "...", "duration_ms": 3}
	}

Failures set success to false and carry an APIError with a machine-readable
code. Domain errors from the store, dispatcher and bus are mapped to status
codes in one place (see writeDomainError).

# Middleware

Applied globally in order: request id, real IP, panic recovery, CORS, and
Prometheus request metrics. The /api/v1 group adds httprate rate limiting,
security headers and Bearer authentication; the publish API, action and
broadcast routes additionally require the service or admin role.

# Delivery Semantics

A REST write that produces a real-time event stores the record first and
publishes second. A publish failure never fails the request: the response
reports pushed=false together with push_error so the caller can observe it,
and clients recover the record through the list endpoints.
*/
package api
