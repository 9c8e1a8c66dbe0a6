// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/switchboard/internal/models"
)

const notificationColumns = `id, recipient_id, actor_id, kind, title, body, extra, dedup_key, is_read, created_at, read_at`

func scanNotification(row rowScanner) (*models.Notification, error) {
	var (
		n        models.Notification
		actorID  sql.NullInt64
		extra    string
		dedupKey sql.NullString
		readAt   sql.NullTime
	)
	if err := row.Scan(&n.ID, &n.RecipientID, &actorID, &n.Kind, &n.Title, &n.Body,
		&extra, &dedupKey, &n.IsRead, &n.CreatedAt, &readAt); err != nil {
		return nil, err
	}
	n.ActorID = int64Ptr(actorID)
	if extra != "" && extra != "{}" {
		n.Extra = []byte(extra)
	}
	n.DedupKey = dedupKey.String
	n.ReadAt = timePtr(readAt)
	n.CreatedAt = n.CreatedAt.UTC()
	return &n, nil
}

func extraText(n *models.Notification) string {
	if len(n.Extra) == 0 {
		return "{}"
	}
	return string(n.Extra)
}

// insertNotification writes one row unless a row with the same recipient
// and dedup key exists. It reports whether a row was written.
func insertNotification(ctx context.Context, tx *sql.Tx, n *models.Notification, now time.Time) (bool, error) {
	id, err := nextID(ctx, tx, "notifications_id_seq")
	if err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, actor_id, kind, title, body, extra, dedup_key, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, FALSE, ?)
		ON CONFLICT (recipient_id, dedup_key) DO NOTHING`,
		id, n.RecipientID, nullableInt64(n.ActorID), n.Kind, n.Title, n.Body,
		extraText(n), nullableString(n.DedupKey), now)
	if err != nil {
		return false, fmt.Errorf("failed to insert notification: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return false, nil
	}

	n.ID = id
	n.IsRead = false
	n.ReadAt = nil
	n.CreatedAt = now
	return true, nil
}

// CreateNotification stores a notification for an existing recipient. When
// DedupKey is set and a notification with that key already exists for the
// recipient, n is filled from the existing row and created is false.
func (db *DB) CreateNotification(ctx context.Context, n *models.Notification) (created bool, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("insert", "notifications", start, err) }()

	err = db.withTx(ctx, "create_notification", func(tx *sql.Tx) error {
		if err := requireSubscriber(ctx, tx, n.RecipientID); err != nil {
			return err
		}

		ok, err := insertNotification(ctx, tx, n, nowUTC())
		if err != nil {
			return err
		}
		created = ok
		if ok {
			return nil
		}

		existing, err := scanNotification(tx.QueryRowContext(ctx,
			`SELECT `+notificationColumns+` FROM notifications WHERE recipient_id = ? AND dedup_key = ?`,
			n.RecipientID, n.DedupKey))
		if err != nil {
			return fmt.Errorf("failed to load deduplicated notification: %w", err)
		}
		*n = *existing
		return nil
	})
	return created, err
}

// CreateNotifications stores one notification per element in a single
// transaction. Rows skipped by deduplication are left out of the result.
func (db *DB) CreateNotifications(ctx context.Context, batch []models.Notification) (created []models.Notification, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("insert", "notifications", start, err) }()

	if len(batch) == 0 {
		return nil, nil
	}

	err = db.withTx(ctx, "create_notifications", func(tx *sql.Tx) error {
		created = created[:0]
		now := nowUTC()
		for i := range batch {
			n := batch[i]
			ok, err := insertNotification(ctx, tx, &n, now)
			if err != nil {
				return err
			}
			if ok {
				created = append(created, n)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateBroadcastNotifications creates a copy of tmpl for every active
// subscriber except the actor, all sharing dedupKey. Subscribers that
// already hold a notification with that key are skipped, so repeating a
// broadcast run creates nothing. The newly created rows are returned in
// recipient order.
func (db *DB) CreateBroadcastNotifications(ctx context.Context, tmpl models.Notification, dedupKey string) (created []models.Notification, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("insert", "notifications", start, err) }()

	if dedupKey == "" {
		return nil, fmt.Errorf("broadcast dedup key is required")
	}

	var actor int64
	if tmpl.ActorID != nil {
		actor = *tmpl.ActorID
	}

	err = db.withTx(ctx, "create_broadcast_notifications", func(tx *sql.Tx) error {
		created = nil

		rows, err := tx.QueryContext(ctx, `
			SELECT s.id FROM subscribers s
			WHERE s.active AND s.id <> ?
			AND NOT EXISTS (
				SELECT 1 FROM notifications n
				WHERE n.recipient_id = s.id AND n.dedup_key = ?
			)
			ORDER BY s.id`,
			actor, dedupKey)
		if err != nil {
			return fmt.Errorf("failed to select broadcast recipients: %w", err)
		}
		recipients, err := scanIDs(rows)
		closeQuietly(rows)
		if err != nil {
			return err
		}

		now := nowUTC()
		for _, recipient := range recipients {
			n := tmpl
			n.RecipientID = recipient
			n.DedupKey = dedupKey
			ok, err := insertNotification(ctx, tx, &n, now)
			if err != nil {
				return err
			}
			if ok {
				created = append(created, n)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetNotification returns one notification by id.
func (db *DB) GetNotification(ctx context.Context, id int64) (*models.Notification, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	n, err := scanNotification(db.conn.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id))
	observe("select", "notifications", start, err)
	if err != nil {
		return nil, mapNoRows(err, "notification", id)
	}
	return n, nil
}

// ListNotifications returns a recipient's notifications, newest first.
func (db *DB) ListNotifications(ctx context.Context, recipientID int64, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = ?`
	if unreadOnly {
		query += ` AND NOT is_read`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, recipientID, limit, offset)
	if err != nil {
		observe("select", "notifications", start, err)
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			observe("select", "notifications", start, err)
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, *n)
	}
	err = rows.Err()
	observe("select", "notifications", start, err)
	return out, err
}

// CountUnreadNotifications returns the number of unread notifications for a recipient.
func (db *DB) CountUnreadNotifications(ctx context.Context, recipientID int64) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	var n int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND NOT is_read`, recipientID,
	).Scan(&n)
	observe("select", "notifications", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return n, nil
}

// MarkNotificationRead marks one of the recipient's notifications as read.
// It reports false when it was already read. A notification owned by
// another recipient is reported as not found.
func (db *DB) MarkNotificationRead(ctx context.Context, recipientID, id int64) (changed bool, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("update", "notifications", start, err) }()

	err = db.withTx(ctx, "mark_notification_read", func(tx *sql.Tx) error {
		var isRead bool
		err := tx.QueryRowContext(ctx,
			`SELECT is_read FROM notifications WHERE id = ? AND recipient_id = ?`, id, recipientID,
		).Scan(&isRead)
		if err != nil {
			return mapNoRows(err, "notification", id)
		}
		if isRead {
			changed = false
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE notifications SET is_read = TRUE, read_at = ? WHERE id = ?`, nowUTC(), id); err != nil {
			return fmt.Errorf("failed to mark notification read: %w", err)
		}
		changed = true
		return nil
	})
	return changed, err
}

// MarkAllNotificationsRead marks every unread notification of a recipient
// as read and returns how many changed.
func (db *DB) MarkAllNotificationsRead(ctx context.Context, recipientID int64) (n int64, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("update", "notifications", start, err) }()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE, read_at = ? WHERE recipient_id = ? AND NOT is_read`,
		nowUTC(), recipientID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return res.RowsAffected()
}

// DeleteReadNotificationsBefore removes read notifications created before
// cutoff. Unread notifications are kept regardless of age.
func (db *DB) DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (n int64, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("delete", "notifications", start, err) }()

	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM notifications WHERE is_read AND created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old notifications: %w", err)
	}
	return res.RowsAffected()
}
