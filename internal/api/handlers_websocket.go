// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package api

import (
	"net/http"
)

// ChatWebSocket upgrades a connection to a chat room. The token travels in
// the token query parameter; authentication and membership failures are
// reported as close codes after the upgrade.
//
// @Summary Chat room WebSocket
// @Description Upgrade to a WebSocket joined to one chat room. Close codes: 1008 missing or malformed token, 4001 invalid token, 4003 not a member or membership revoked.
// @Tags WebSocket
// @Param room_id path int true "Room ID"
// @Param token query string true "JWT"
// @Success 101 "Switching Protocols"
// @Failure 400 {object} APIResponse
// @Router /ws/chat/{room_id} [get]
func (h *Handler) ChatWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathID(r, "room_id")
	if err != nil {
		writeDomainError(NewResponseWriter(w, r), err)
		return
	}
	h.hub.ServeChat(w, r, roomID)
}

// NotificationsWebSocket upgrades a connection to the caller's private
// notification stream.
//
// @Summary Notification WebSocket
// @Description Upgrade to a WebSocket subscribed to the caller's notification room. Accepts mark_read and ping frames.
// @Tags WebSocket
// @Param token query string true "JWT"
// @Success 101 "Switching Protocols"
// @Router /ws/notifications [get]
func (h *Handler) NotificationsWebSocket(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeNotifications(w, r)
}
