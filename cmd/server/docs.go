// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

// @title Switchboard API
// @version 1.0
// @description Real-time chat and notification fan-out over WebSocket.
// @description
// @description ## Authentication
// @description
// @description REST endpoints take `Authorization: Bearer <JWT>`. WebSocket endpoints take the
// @description token in the `token` query parameter and report auth failures as close codes.
// @description Backend services use tokens with the `service` role.
// @description
// @description ## Delivery
// @description
// @description Writes are persisted before they are published. A publish failure never fails
// @description the request: the response reports `pushed: false` with `push_error`, and clients
// @description catch up through the history endpoints.
// @description
// @description ## Error Responses
// @description
// @description ```json
// @description {
// @description   "success": false,
// @description   "error": {"code": "VALIDATION_ERROR", "message": "...", "details": {}},
// @description   "meta": {"request_id": "...", "timestamp": "2026-10-14T12:00:00Z"}
// @description }
// @description ```
//
// @contact.name GitHub Repository
// @contact.url https://github.com/tomtom215/switchboard/issues
//
// @license.name AGPL-3.0-or-later
// @license.url https://www.gnu.org/licenses/agpl-3.0.html
//
// @host localhost:8080
// @BasePath /
// @schemes http https
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Bearer JWT. Subscriber tokens carry their subscriber id in the sid claim.
//
// @tag.name Health
// @tag.description Liveness, readiness and component status
// @tag.name Rooms
// @tag.description Chat rooms, membership and message history
// @tag.name Notifications
// @tag.description Stored notifications and the action feed from backend services
// @tag.name Events
// @tag.description Raw publish to any room
// @tag.name Broadcasts
// @tag.description Scheduled broadcasts to every active subscriber
// @tag.name Tokens
// @tag.description Token revocation
// @tag.name WebSocket
// @tag.description Chat and notification sockets
package main
