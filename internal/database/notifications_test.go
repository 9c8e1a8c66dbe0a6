// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/switchboard/internal/models"
)

func TestNotifications_CreateAndRead(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ids := createSubscribers(t, db, 2)
	actor, recipient := ids[0], ids[1]

	n := &models.Notification{
		RecipientID: recipient,
		ActorID:     &actor,
		Kind:        models.NotificationKindLike,
		Title:       "user1 liked your post",
		Extra:       []byte(`{"post_id":7}`),
	}
	created, err := db.CreateNotification(ctx, n)
	if err != nil || !created {
		t.Fatalf("CreateNotification = %v, %v", created, err)
	}
	if n.ID == 0 || n.CreatedAt.IsZero() {
		t.Fatalf("notification = %+v", n)
	}

	got, err := db.GetNotification(ctx, n.ID)
	if err != nil {
		t.Fatalf("GetNotification: %v", err)
	}
	if got.ActorID == nil || *got.ActorID != actor || string(got.Extra) != `{"post_id":7}` || got.IsRead {
		t.Errorf("GetNotification = %+v", got)
	}

	if _, err := db.CreateNotification(ctx, &models.Notification{RecipientID: 9999, Kind: "like", Title: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown recipient: err = %v", err)
	}

	count, err := db.CountUnreadNotifications(ctx, recipient)
	if err != nil || count != 1 {
		t.Fatalf("CountUnreadNotifications = %d, %v", count, err)
	}

	changed, err := db.MarkNotificationRead(ctx, recipient, n.ID)
	if err != nil || !changed {
		t.Fatalf("MarkNotificationRead = %v, %v", changed, err)
	}
	changed, err = db.MarkNotificationRead(ctx, recipient, n.ID)
	if err != nil || changed {
		t.Errorf("second MarkNotificationRead = %v, %v; want false, nil", changed, err)
	}
	if _, err := db.MarkNotificationRead(ctx, actor, n.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign MarkNotificationRead: err = %v, want ErrNotFound", err)
	}

	unread, err := db.ListNotifications(ctx, recipient, true, 10, 0)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(unread) != 0 {
		t.Errorf("unread = %+v, want none", unread)
	}
	all, _ := db.ListNotifications(ctx, recipient, false, 10, 0)
	if len(all) != 1 || !all[0].IsRead || all[0].ReadAt == nil {
		t.Errorf("all = %+v", all)
	}
}

func TestNotifications_Dedup(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ids := createSubscribers(t, db, 1)

	first := &models.Notification{RecipientID: ids[0], Kind: "follow", Title: "a", DedupKey: "follow:1"}
	created, err := db.CreateNotification(ctx, first)
	if err != nil || !created {
		t.Fatalf("first = %v, %v", created, err)
	}

	second := &models.Notification{RecipientID: ids[0], Kind: "follow", Title: "b", DedupKey: "follow:1"}
	created, err = db.CreateNotification(ctx, second)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if created {
		t.Error("duplicate dedup key created a row")
	}
	if second.ID != first.ID || second.Title != "a" {
		t.Errorf("second was not filled from the existing row: %+v", second)
	}

	// Notifications without a key never collide.
	for i := 0; i < 2; i++ {
		if ok, err := db.CreateNotification(ctx, &models.Notification{RecipientID: ids[0], Kind: "like", Title: "x"}); err != nil || !ok {
			t.Fatalf("keyless %d = %v, %v", i, ok, err)
		}
	}
	count, _ := db.CountUnreadNotifications(ctx, ids[0])
	if count != 3 {
		t.Errorf("unread = %d, want 3", count)
	}
}

func TestCreateBroadcastNotifications(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ids := createSubscribers(t, db, 5)
	actor := ids[0]
	if err := db.SetSubscriberActive(ctx, ids[4], false); err != nil {
		t.Fatalf("SetSubscriberActive: %v", err)
	}

	tmpl := models.Notification{ActorID: &actor, Kind: models.NotificationKindBroadcast, Title: "maintenance"}
	created, err := db.CreateBroadcastNotifications(ctx, tmpl, "broadcast:1:1700000000")
	if err != nil {
		t.Fatalf("CreateBroadcastNotifications: %v", err)
	}
	// Five subscribers, minus the actor, minus the inactive one.
	if len(created) != 3 {
		t.Fatalf("created %d rows, want 3", len(created))
	}
	for i, n := range created {
		if n.RecipientID != ids[i+1] || n.ID == 0 {
			t.Errorf("created[%d] = %+v", i, n)
		}
	}

	again, err := db.CreateBroadcastNotifications(ctx, tmpl, "broadcast:1:1700000000")
	if err != nil {
		t.Fatalf("re-run: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("re-run created %d rows, want 0", len(again))
	}

	next, err := db.CreateBroadcastNotifications(ctx, tmpl, "broadcast:1:1700003600")
	if err != nil || len(next) != 3 {
		t.Errorf("next trigger created %d rows, err %v; want 3", len(next), err)
	}
}

func TestCreateBroadcastNotifications_ConcurrentRuns(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ids := createSubscribers(t, db, 4)
	tmpl := models.Notification{ActorID: &ids[0], Kind: models.NotificationKindBroadcast, Title: "t"}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
		errs  []error
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := db.CreateBroadcastNotifications(ctx, tmpl, "broadcast:9:1")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			total += len(created)
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("concurrent runs failed: %v", errs)
	}
	if total != 3 {
		t.Errorf("concurrent runs created %d rows in total, want 3", total)
	}
}

func TestMarkAllAndCleanupNotifications(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ids := createSubscribers(t, db, 1)

	restore := nowUTC
	defer func() { nowUTC = restore }()

	old := restore().Add(-40 * 24 * time.Hour)
	nowUTC = func() time.Time { return old }
	for i := 0; i < 2; i++ {
		if _, err := db.CreateNotification(ctx, &models.Notification{RecipientID: ids[0], Kind: "like", Title: "old"}); err != nil {
			t.Fatalf("CreateNotification: %v", err)
		}
	}
	nowUTC = restore
	if _, err := db.CreateNotification(ctx, &models.Notification{RecipientID: ids[0], Kind: "like", Title: "new"}); err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}

	// Mark one old notification read; the other old one stays unread.
	list, _ := db.ListNotifications(ctx, ids[0], false, 10, 0)
	var oldID int64
	for _, n := range list {
		if n.Title == "old" {
			oldID = n.ID
			break
		}
	}
	if _, err := db.MarkNotificationRead(ctx, ids[0], oldID); err != nil {
		t.Fatalf("MarkNotificationRead: %v", err)
	}

	deleted, err := db.DeleteReadNotificationsBefore(ctx, nowUTC().Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteReadNotificationsBefore: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted %d, want 1 (unread kept regardless of age)", deleted)
	}

	changed, err := db.MarkAllNotificationsRead(ctx, ids[0])
	if err != nil || changed != 2 {
		t.Errorf("MarkAllNotificationsRead = %d, %v; want 2", changed, err)
	}
	count, _ := db.CountUnreadNotifications(ctx, ids[0])
	if count != 0 {
		t.Errorf("unread after mark-all = %d", count)
	}
}

func TestScheduledBroadcasts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ids := createSubscribers(t, db, 1)

	now := nowUTC()
	due := now.Add(-time.Minute)
	later := now.Add(time.Hour)

	b := &models.ScheduledBroadcast{Name: "weekly", ActorID: ids[0], Title: "hello", CronExpr: "0 9 * * 1", Enabled: true, NextRunAt: &due}
	if err := db.CreateScheduledBroadcast(ctx, b); err != nil {
		t.Fatalf("CreateScheduledBroadcast: %v", err)
	}
	if b.ID == 0 || b.Timezone != "UTC" {
		t.Fatalf("broadcast = %+v", b)
	}
	future := &models.ScheduledBroadcast{Name: "later", ActorID: ids[0], Title: "x", CronExpr: "0 * * * *", Enabled: true, NextRunAt: &later}
	if err := db.CreateScheduledBroadcast(ctx, future); err != nil {
		t.Fatalf("CreateScheduledBroadcast(future): %v", err)
	}
	disabled := &models.ScheduledBroadcast{Name: "off", ActorID: ids[0], Title: "x", CronExpr: "0 * * * *", Enabled: false, NextRunAt: &due}
	if err := db.CreateScheduledBroadcast(ctx, disabled); err != nil {
		t.Fatalf("CreateScheduledBroadcast(disabled): %v", err)
	}
	if err := db.CreateScheduledBroadcast(ctx, &models.ScheduledBroadcast{Name: "bad", ActorID: 9999, CronExpr: "* * * * *"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown actor: err = %v", err)
	}

	dueList, err := db.ListDueBroadcasts(ctx, now)
	if err != nil {
		t.Fatalf("ListDueBroadcasts: %v", err)
	}
	if len(dueList) != 1 || dueList[0].ID != b.ID {
		t.Fatalf("due = %+v, want only %d", dueList, b.ID)
	}

	if err := db.CompleteBroadcastRun(ctx, b.ID, now, models.BroadcastStatusSuccess, &later); err != nil {
		t.Fatalf("CompleteBroadcastRun: %v", err)
	}
	got, err := db.GetScheduledBroadcast(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetScheduledBroadcast: %v", err)
	}
	if got.RunCount != 1 || got.LastStatus != models.BroadcastStatusSuccess || got.LastRunAt == nil {
		t.Errorf("after run = %+v", got)
	}
	if got.NextRunAt == nil || !got.NextRunAt.Equal(later.Truncate(time.Microsecond)) {
		t.Errorf("next_run_at = %v, want %v", got.NextRunAt, later)
	}

	dueList, _ = db.ListDueBroadcasts(ctx, now)
	if len(dueList) != 0 {
		t.Errorf("still due after run: %+v", dueList)
	}

	if err := db.SetBroadcastEnabled(ctx, disabled.ID, true); err != nil {
		t.Fatalf("SetBroadcastEnabled: %v", err)
	}
	dueList, _ = db.ListDueBroadcasts(ctx, now)
	if len(dueList) != 1 || dueList[0].ID != disabled.ID {
		t.Errorf("due after enabling = %+v", dueList)
	}

	all, err := db.ListScheduledBroadcasts(ctx)
	if err != nil || len(all) != 3 {
		t.Errorf("ListScheduledBroadcasts = %d, %v", len(all), err)
	}
	if err := db.CompleteBroadcastRun(ctx, 9999, now, "success", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteBroadcastRun(unknown): err = %v", err)
	}
}
