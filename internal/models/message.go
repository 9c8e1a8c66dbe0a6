// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package models

import "time"

// Message types
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeFile  = "file"
)

// Message is a persisted chat message.
type Message struct {
	ID          int64      `json:"id"`
	RoomID      int64      `json:"room_id"`
	SenderID    int64      `json:"sender_id"`
	Content     string     `json:"content"`
	MessageType string     `json:"message_type"`
	ReplyTo     *int64     `json:"reply_to,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// ReadReceipt records that a subscriber has read a message.
type ReadReceipt struct {
	MessageID    int64     `json:"message_id"`
	SubscriberID int64     `json:"subscriber_id"`
	ReadAt       time.Time `json:"read_at"`

	// Created is false when the receipt already existed.
	Created bool `json:"-"`
}
