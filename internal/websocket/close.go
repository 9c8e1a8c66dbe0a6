// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package websocket

import (
	"errors"
	"net"

	"github.com/gorilla/websocket"
)

// Close codes sent to clients.
const (
	CloseNormal          = websocket.CloseNormalClosure     // 1000
	CloseGoingAway       = websocket.CloseGoingAway         // 1001
	ClosePolicyViolation = websocket.ClosePolicyViolation   // 1008
	CloseMessageTooBig   = websocket.CloseMessageTooBig     // 1009
	CloseInternalError   = websocket.CloseInternalServerErr // 1011

	// CloseAuthFailed is sent when the token is expired, invalid or revoked,
	// or names an unknown or inactive subscriber.
	CloseAuthFailed = 4001

	// CloseForbidden is sent when the subscriber may not join the room, or
	// loses its membership while connected.
	CloseForbidden = 4003
)

// Close reasons.
const (
	reasonMissingToken  = "missing token"
	reasonAuthFailed    = "authentication failed"
	reasonForbidden     = "forbidden"
	reasonRevoked       = "membership revoked"
	reasonSlowConsumer  = "slow consumer"
	reasonShutdown      = "server shutting down"
	reasonHeartbeat     = "heartbeat timeout"
	reasonClientClosed  = "client closed"
	reasonReadFailed    = "read failed"
	reasonWriteFailed   = "write failed"
	reasonJoinFailed    = "join failed"
	reasonFrameTooLarge = "frame too large"
)

// closeForReadError maps a read pump error to the close frame sent back.
func closeForReadError(err error) (int, string) {
	var ce *websocket.CloseError
	var ne net.Error
	switch {
	case errors.As(err, &ce):
		return CloseNormal, reasonClientClosed
	case errors.Is(err, websocket.ErrReadLimit):
		return CloseMessageTooBig, reasonFrameTooLarge
	case errors.As(err, &ne) && ne.Timeout():
		return CloseGoingAway, reasonHeartbeat
	default:
		return CloseGoingAway, reasonReadFailed
	}
}
