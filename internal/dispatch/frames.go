// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package dispatch

import "time"

// Presence values carried by status frames.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// MessageFrame is the payload of a chat message event.
type MessageFrame struct {
	MessageID      int64     `json:"message_id"`
	RoomID         int64     `json:"room_id"`
	Content        string    `json:"content"`
	MessageType    string    `json:"message_type"`
	SenderID       int64     `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	SenderAvatar   string    `json:"sender_avatar"`
	ReplyTo        *int64    `json:"reply_to"`
	CreatedAt      time.Time `json:"created_at"`
}

// TypingFrame is the payload of a typing indicator.
type TypingFrame struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

// ReadFrame announces a read receipt.
type ReadFrame struct {
	MessageID int64     `json:"message_id"`
	UserID    int64     `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

// StatusFrame is a presence change.
type StatusFrame struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Status   string `json:"status"`
}

// NotificationFrame is pushed to a subscriber's notification room. Extra
// holds the kind-specific ids (post_id, request_id, room_id, ...) and is
// flattened into the frame.
type NotificationFrame struct {
	ID           int64          `json:"id"`
	Kind         string         `json:"kind"`
	Title        string         `json:"title"`
	Body         string         `json:"body,omitempty"`
	Sender       string         `json:"sender,omitempty"`
	SenderAvatar string         `json:"sender_avatar,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	Extra        map[string]any `json:"-"`
}

// fields returns the frame as a flat map with Extra merged in. Fixed fields win.
func (f NotificationFrame) fields() map[string]any {
	out := make(map[string]any, len(f.Extra)+7)
	for k, v := range f.Extra {
		out[k] = v
	}
	out["id"] = f.ID
	out["kind"] = f.Kind
	out["title"] = f.Title
	out["created_at"] = f.CreatedAt
	if f.Body != "" {
		out["body"] = f.Body
	}
	if f.Sender != "" {
		out["sender"] = f.Sender
	}
	if f.SenderAvatar != "" {
		out["sender_avatar"] = f.SenderAvatar
	}
	return out
}
