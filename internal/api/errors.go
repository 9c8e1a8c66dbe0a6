// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/switchboard/internal/database"
	"github.com/tomtom215/switchboard/internal/dispatch"
	"github.com/tomtom215/switchboard/internal/eventbus"
	"github.com/tomtom215/switchboard/internal/scheduler"
)

var (
	// ErrBodyTooLarge is returned when a request body exceeds maxBodyBytes.
	ErrBodyTooLarge = errors.New("request body too large")

	// ErrInvalidBody is returned when a request body is not valid JSON for its type.
	ErrInvalidBody = errors.New("invalid request body")
)

// writeDomainError maps errors from the store, dispatcher, scheduler and bus
// to an HTTP status and error code. Unknown errors are logged and reported as
// 500 without their text.
func writeDomainError(rw *ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBodyTooLarge), errors.Is(err, eventbus.ErrPayloadTooLarge):
		rw.Error(http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, err.Error())
	case errors.Is(err, ErrInvalidBody),
		errors.Is(err, dispatch.ErrInvalidInput),
		errors.Is(err, eventbus.ErrInvalidRoom),
		errors.Is(err, scheduler.ErrNoNextRun):
		rw.BadRequest(err.Error())
	case errors.Is(err, database.ErrNotFound):
		rw.NotFound(err.Error())
	case errors.Is(err, database.ErrNotMember):
		rw.Forbidden("not a member of this room")
	case errors.Is(err, database.ErrDuplicate):
		rw.Error(http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, eventbus.ErrBusUnavailable), errors.Is(err, eventbus.ErrClosed):
		rw.Error(http.StatusServiceUnavailable, ErrCodeBusUnavailable, "event bus unavailable")
	default:
		rw.DatabaseError(err)
	}
}
