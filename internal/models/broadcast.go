// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package models

import "time"

// Broadcast run statuses
const (
	BroadcastStatusSuccess = "success"
	BroadcastStatusFailed  = "failed"
)

// ScheduledBroadcast is a notification sent to every active subscriber on a cron schedule.
type ScheduledBroadcast struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	ActorID    int64      `json:"actor_id"`
	Title      string     `json:"title"`
	Body       string     `json:"body,omitempty"`
	CronExpr   string     `json:"cron_expr"`
	Timezone   string     `json:"timezone"`
	Enabled    bool       `json:"enabled"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
	RunCount   int64      `json:"run_count"`
	CreatedAt  time.Time  `json:"created_at"`
}
