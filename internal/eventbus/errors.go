// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package eventbus

import "errors"

var (
	// ErrBusUnavailable is returned when the transport cannot accept a publish
	// or subscription, including while the circuit breaker is open.
	ErrBusUnavailable = errors.New("event bus unavailable")

	// ErrPayloadTooLarge is returned when an encoded event exceeds the limit.
	ErrPayloadTooLarge = errors.New("event payload too large")

	// ErrInvalidRoom is returned for room keys that are not kind:id.
	ErrInvalidRoom = errors.New("invalid room key")

	// ErrClosed is returned by a bus that has been closed.
	ErrClosed = errors.New("event bus closed")
)
