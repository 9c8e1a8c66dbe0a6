// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

/*
Command server runs Switchboard: chat rooms and per-subscriber notification
streams over WebSocket, fed by an event bus so any replica can deliver to
any connection.

# Application Architecture

	RootSupervisor ("switchboard")
	├── DataSupervisor ("data-layer")
	│   ├── scheduler (broadcast cron, retention cleanup)
	│   └── revocation-gc (when REVOCATION_PATH is set)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── connection-hub
	│   └── nats-embedded (BUS_DRIVER=nats NATS_EMBEDDED=true)
	└── APISupervisor ("api-layer")
	    └── http-server

Initialization order:

 1. Configuration: Koanf v2 (defaults, config.yaml, environment)
 2. Logging: zerolog, JSON or console
 3. Database: DuckDB
 4. Event bus: memory, NATS or Redis behind a circuit breaker
 5. Dispatcher: persist then publish
 6. Authentication: JWT plus revocation store (memory or BadgerDB)
 7. Connection hub and scheduler
 8. Chi router and HTTP server
 9. Supervisor tree

# Configuration

	HTTP_PORT=8080
	ENVIRONMENT=production
	JWT_SECRET=<32+ chars>
	DUCKDB_PATH=/data/switchboard.duckdb
	REVOCATION_PATH=/data/revocations

	BUS_DRIVER=nats              # memory, nats or redis
	NATS_URL=nats://nats:4222
	NATS_EMBEDDED=false
	REDIS_ADDR=redis:6379

	LOG_LEVEL=info
	LOG_FORMAT=json

The memory bus only reaches connections of the same process. Run more than
one replica only with nats or redis.

# Signal Handling

SIGINT and SIGTERM cancel the root context. The HTTP server drains for up
to 10s, the hub closes every connection with 1001 going away, the scheduler
stops claiming work, and the bus, revocation store and database are closed
in reverse order of creation.

# API Documentation

Swagger UI is served at /swagger/index.html.
*/
package main
