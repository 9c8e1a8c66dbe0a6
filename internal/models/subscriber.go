// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package models

import "time"

// Subscriber is an end user that can hold connections and receive notifications.
type Subscriber struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// ActorSummary is the subscriber excerpt embedded in outgoing frames.
type ActorSummary struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Summary returns the frame excerpt for s.
func (s *Subscriber) Summary() ActorSummary {
	return ActorSummary{ID: s.ID, Username: s.Username, AvatarURL: s.AvatarURL}
}
