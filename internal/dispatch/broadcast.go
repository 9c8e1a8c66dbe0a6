// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/switchboard/internal/metrics"
	"github.com/tomtom215/switchboard/internal/models"
)

// BroadcastInput is one run of a broadcast.
type BroadcastInput struct {
	BroadcastID int64
	ActorID     int64
	Title       string
	Body        string

	// RunAt identifies the run. Runs with the same RunAt share a
	// deduplication key and never notify a subscriber twice.
	RunAt time.Time
}

// BroadcastResult summarises one broadcast run.
type BroadcastResult struct {
	DedupKey   string `json:"dedup_key"`
	Created    int    `json:"created"`
	Pushed     int    `json:"pushed"`
	PushFailed int    `json:"push_failed"`
}

// BroadcastDedupKey returns the deduplication key of one broadcast run.
func BroadcastDedupKey(broadcastID int64, runAt time.Time) string {
	return fmt.Sprintf("broadcast:%d:%d", broadcastID, runAt.Unix())
}

// Broadcast notifies every active subscriber except the actor. Only
// subscribers that did not already receive this run are stored and pushed,
// so a retried or concurrent run produces no duplicates.
func (d *Dispatcher) Broadcast(ctx context.Context, in BroadcastInput) (BroadcastResult, error) {
	var res BroadcastResult
	in.Title = strings.TrimSpace(in.Title)
	if in.BroadcastID <= 0 || in.ActorID <= 0 || in.Title == "" || in.RunAt.IsZero() {
		return res, fmt.Errorf("%w: broadcast, actor, title and run time are required", ErrInvalidInput)
	}
	res.DedupKey = BroadcastDedupKey(in.BroadcastID, in.RunAt)

	actor, err := d.actor(ctx, in.ActorID)
	if err != nil {
		metrics.RecordDispatch(models.NotificationKindBroadcast, outcomePersistFailed)
		return res, fmt.Errorf("load actor %d: %w", in.ActorID, err)
	}

	extraFields := map[string]any{"broadcast_id": in.BroadcastID}
	extra, err := json.Marshal(extraFields)
	if err != nil {
		return res, fmt.Errorf("encode broadcast extra: %w", err)
	}

	actorID := in.ActorID
	created, err := d.store.CreateBroadcastNotifications(ctx, models.Notification{
		ActorID: &actorID,
		Kind:    models.NotificationKindBroadcast,
		Title:   in.Title,
		Body:    in.Body,
		Extra:   extra,
	}, res.DedupKey)
	if err != nil {
		metrics.RecordDispatch(models.NotificationKindBroadcast, outcomePersistFailed)
		return res, fmt.Errorf("store broadcast notifications: %w", err)
	}
	res.Created = len(created)

	for i := range created {
		var del Delivery
		d.pushNotification(ctx, &created[i], actor, extraFields, &del)
		if del.Pushed {
			res.Pushed++
		} else {
			res.PushFailed++
		}
	}

	d.logger.Info().
		Int64("broadcast_id", in.BroadcastID).
		Str("dedup_key", res.DedupKey).
		Int("created", res.Created).
		Int("push_failed", res.PushFailed).
		Msg("broadcast dispatched")
	return res, nil
}
