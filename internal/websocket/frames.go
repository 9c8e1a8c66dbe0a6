// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package websocket

import "github.com/goccy/go-json"

// Inbound frame types.
const (
	frameMessage  = "message"
	frameTyping   = "typing"
	frameRead     = "read"
	frameMarkRead = "mark_read"
	framePing     = "ping"
)

var pongFrame = []byte(`{"type":"pong"}`)

// envelope carries the discriminator of an inbound frame.
type envelope struct {
	Type string `json:"type"`
}

type messageFrame struct {
	Content     string `json:"content" validate:"max=4000"`
	MessageType string `json:"message_type" validate:"omitempty,oneof=text image file"`
	ReplyTo     *int64 `json:"reply_to" validate:"omitempty,gt=0"`
}

type typingFrame struct {
	IsTyping bool `json:"is_typing"`
}

type readFrame struct {
	MessageID int64 `json:"message_id" validate:"required,gt=0"`
}

type markReadFrame struct {
	NotificationID int64 `json:"notification_id" validate:"required,gt=0"`
}

// markReadResult confirms a mark_read to the requesting connection only.
type markReadResult struct {
	Type           string `json:"type"`
	NotificationID int64  `json:"notification_id"`
	Changed        bool   `json:"changed"`
}

func decodeFrame(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
