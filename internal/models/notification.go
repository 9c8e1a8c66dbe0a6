// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Notification kinds
const (
	NotificationKindMessage        = "message"
	NotificationKindLike           = "like"
	NotificationKindComment        = "comment"
	NotificationKindFriendRequest  = "friend_request"
	NotificationKindFriendAccepted = "friend_accepted"
	NotificationKindFollow         = "follow"
	NotificationKindMention        = "mention"
	NotificationKindGroupInvite    = "group_invite"
	NotificationKindBroadcast      = "broadcast"
)

// Notification is a persisted notification for one recipient.
//
// DedupKey, when set, is unique per recipient; a second insert with the
// same key is a no-op.
type Notification struct {
	ID          int64           `json:"id"`
	RecipientID int64           `json:"recipient_id"`
	ActorID     *int64          `json:"actor_id,omitempty"`
	Kind        string          `json:"kind"`
	Title       string          `json:"title"`
	Body        string          `json:"body,omitempty"`
	Extra       json.RawMessage `json:"extra,omitempty"`
	DedupKey    string          `json:"-"`
	IsRead      bool            `json:"is_read"`
	CreatedAt   time.Time       `json:"created_at"`
	ReadAt      *time.Time      `json:"read_at,omitempty"`
}
