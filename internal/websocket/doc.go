// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

/*
Package websocket holds the persistent client connections of one process and
delivers room events to them.

Key Components:

  - Hub: upgrades, authenticates and joins connections; closes them all on shutdown
  - Client: one connection with its own read goroutine, write goroutine, send queue and rate limiter
  - Registry: subscriber id to open connections, plus notification room subscriptions
  - Rooms: local room membership and fan-out, one bus subscription per non-empty room

Architecture:

	REST / scheduler            other processes
	       │                           │
	  dispatch.Dispatcher ──► eventbus.Bus ◄──┘
	                              │  one subscription per local room
	                        ┌─────┴─────┐
	                        │   Rooms   │ sorted snapshot, non-blocking enqueue
	                        └─────┬─────┘
	              ┌───────────────┼───────────────┐
	           Client1         Client2         Client3
	         (send queue)    (send queue)    (send queue)

Endpoints:

  - /ws/chat/{room_id}?token=    join a chat room after a membership check
  - /ws/notifications?token=     receive the subscriber's notifications

Connection Lifecycle:

 1. Connecting: HTTP upgrade
 2. Authenticating: the token query parameter is validated
 3. Authenticated: the client is registered and, for chat, joined after a membership check
 4. Closing: client close, read error, heartbeat timeout, slow consumer, eviction or shutdown
 5. Closed: offline status sent, rooms left, client unregistered, socket closed, exactly once

Close Codes:

  - 1000: the client closed the connection
  - 1001: server shutdown or heartbeat timeout
  - 1008: missing token, or a send queue that stayed full (reason "slow consumer")
  - 4001: expired, invalid or revoked token, or unknown or inactive subscriber
  - 4003: not a member of the room, or membership revoked while connected

Inbound Frames:

Chat connections accept message, typing and read frames; notification
connections accept mark_read. Both accept ping and answer with pong.
Malformed or unknown frames are ignored, and frames beyond the per-connection
rate limit are dropped.

Ordering:

The bus invokes a room's handler sequentially and each send queue is FIFO,
so every connection sees a room's events in the order the bus delivered them
to this process. Events whose Exclude matches the connection's subscriber are
skipped (typing and presence are not echoed to their author).

See Also:

  - internal/eventbus: the transports feeding Rooms
  - internal/dispatch: the actions inbound frames trigger
  - internal/api: the HTTP routes that call ServeChat and ServeNotifications
*/
package websocket
