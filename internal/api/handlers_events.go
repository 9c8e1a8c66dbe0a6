// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/switchboard/internal/logging"
)

// PublishEventRequest is the body of POST /api/v1/events.
type PublishEventRequest struct {
	Room    string          `json:"room" validate:"required,roomkey"`
	Kind    string          `json:"kind" validate:"required,eventkind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PublishEvent is the publish API used by other backend services. It sends
// a payload to a room key without storing anything; connected subscribers of
// that room receive {"type": kind, ...payload}.
//
// @Summary Publish an event to a room
// @Description Fans a payload out to every connection subscribed to the room, in every process. Nothing is stored.
// @Tags Events
// @Accept json
// @Produce json
// @Param request body PublishEventRequest true "Room key, event kind and payload object"
// @Success 202 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Failure 413 {object} APIResponse
// @Failure 503 {object} APIResponse
// @Security BearerAuth
// @Router /api/v1/events [post]
func (h *Handler) PublishEvent(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req PublishEventRequest
	if !decodeAndValidate(rw, w, r, &req) {
		return
	}

	var payload interface{}
	if len(req.Payload) > 0 && string(req.Payload) != "null" {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(req.Payload, &fields); err != nil {
			rw.ValidationError("payload must be a JSON object", map[string]interface{}{"field": "payload"})
			return
		}
		payload = req.Payload
	}

	if err := h.dispatcher.PublishToRoom(r.Context(), req.Room, req.Kind, payload); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).
			Str("room", sanitizeLogValue(req.Room)).
			Str("kind", sanitizeLogValue(req.Kind)).
			Msg("Publish API request failed")
		writeDomainError(rw, err)
		return
	}

	rw.Accepted(map[string]interface{}{
		"room":      req.Room,
		"kind":      req.Kind,
		"published": true,
	})
}
