// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package models

import "time"

// Room kinds
const (
	RoomKindGroup  = "group"
	RoomKindDirect = "direct"
)

// Member roles
const (
	MemberRoleOwner  = "owner"
	MemberRoleMember = "member"
)

// Room is a chat room.
type Room struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomMember is one subscriber's membership in a room.
type RoomMember struct {
	RoomID       int64      `json:"room_id"`
	SubscriberID int64      `json:"subscriber_id"`
	Role         string     `json:"role"`
	UnreadCount  int        `json:"unread_count"`
	LastReadAt   *time.Time `json:"last_read_at,omitempty"`
	JoinedAt     time.Time  `json:"joined_at"`
}
