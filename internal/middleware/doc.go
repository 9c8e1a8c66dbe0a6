// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

/*
Package middleware provides HTTP middleware shared by the REST and WebSocket
endpoints.

  - RequestID: assigns an X-Request-ID and seeds the logging context
  - PrometheusMetrics: records request count and latency per route pattern

Both wrappers preserve http.Hijacker on the response writer, so they can sit in
front of the WebSocket upgrade routes.

Middleware Stack:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware
