// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/switchboard/internal/models"
)

const messageColumns = `id, room_id, sender_id, content, message_type, reply_to, created_at, deleted_at`

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		m         models.Message
		replyTo   sql.NullInt64
		deletedAt sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.MessageType, &replyTo, &m.CreatedAt, &deletedAt); err != nil {
		return nil, err
	}
	m.ReplyTo = int64Ptr(replyTo)
	m.DeletedAt = timePtr(deletedAt)
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

// CreateMessage stores a chat message and increments the unread counter of
// every other member in the same transaction. It returns the ids of those
// members. The sender must be a member of the room.
func (db *DB) CreateMessage(ctx context.Context, m *models.Message) (recipients []int64, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("insert", "messages", start, err) }()

	if m.MessageType == "" {
		m.MessageType = models.MessageTypeText
	}

	now := nowUTC()
	err = db.withTx(ctx, "create_message", func(tx *sql.Tx) error {
		recipients = nil

		member, err := isMemberTx(ctx, tx, m.RoomID, m.SenderID)
		if err != nil {
			return err
		}
		if !member {
			return fmt.Errorf("sender %d in room %d: %w", m.SenderID, m.RoomID, ErrNotMember)
		}

		if m.ReplyTo != nil {
			var n int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM messages WHERE id = ? AND room_id = ?`, *m.ReplyTo, m.RoomID,
			).Scan(&n); err != nil {
				return fmt.Errorf("failed to look up reply target: %w", err)
			}
			if n == 0 {
				return notFound("message", *m.ReplyTo)
			}
		}

		var id int64
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO messages (room_id, sender_id, content, message_type, reply_to, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING id`,
			m.RoomID, m.SenderID, m.Content, m.MessageType, nullableInt64(m.ReplyTo), now,
		).Scan(&id); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE room_members SET unread_count = unread_count + 1
			WHERE room_id = ? AND subscriber_id <> ?`,
			m.RoomID, m.SenderID); err != nil {
			return fmt.Errorf("failed to increment unread counters: %w", err)
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT subscriber_id FROM room_members
			WHERE room_id = ? AND subscriber_id <> ?
			ORDER BY subscriber_id`,
			m.RoomID, m.SenderID)
		if err != nil {
			return fmt.Errorf("failed to list recipients: %w", err)
		}
		defer rows.Close()
		if recipients, err = scanIDs(rows); err != nil {
			return err
		}

		m.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.CreatedAt = now
	return recipients, nil
}

// GetMessage returns one message by id, including soft-deleted ones.
func (db *DB) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	m, err := scanMessage(db.conn.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	observe("select", "messages", start, err)
	if err != nil {
		return nil, mapNoRows(err, "message", id)
	}
	return m, nil
}

// ListMessages returns the non-deleted messages of a room, newest first.
func (db *DB) ListMessages(ctx context.Context, roomID int64, limit, offset int) ([]models.Message, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE room_id = ? AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		roomID, limit, offset)
	if err != nil {
		observe("select", "messages", start, err)
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			observe("select", "messages", start, err)
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, *m)
	}
	err = rows.Err()
	observe("select", "messages", start, err)
	return out, err
}

// MarkMessageRead records a read receipt and resets the reader's unread
// counter for the room. Repeating it is harmless; the existing receipt is
// returned with Created false.
func (db *DB) MarkMessageRead(ctx context.Context, roomID, readerID, messageID int64) (receipt *models.ReadReceipt, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("insert", "message_reads", start, err) }()

	err = db.withTx(ctx, "mark_message_read", func(tx *sql.Tx) error {
		var msgRoom int64
		err := tx.QueryRowContext(ctx, `SELECT room_id FROM messages WHERE id = ?`, messageID).Scan(&msgRoom)
		if err != nil {
			return mapNoRows(err, "message", messageID)
		}
		if msgRoom != roomID {
			return notFound("message", messageID)
		}

		member, err := isMemberTx(ctx, tx, roomID, readerID)
		if err != nil {
			return err
		}
		if !member {
			return fmt.Errorf("reader %d in room %d: %w", readerID, roomID, ErrNotMember)
		}

		r := &models.ReadReceipt{MessageID: messageID, SubscriberID: readerID}
		var existing time.Time
		err = tx.QueryRowContext(ctx,
			`SELECT read_at FROM message_reads WHERE message_id = ? AND subscriber_id = ?`,
			messageID, readerID).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			r.ReadAt = nowUTC()
			r.Created = true
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO message_reads (message_id, subscriber_id, read_at) VALUES (?, ?, ?)`,
				messageID, readerID, r.ReadAt); err != nil {
				return fmt.Errorf("failed to insert read receipt: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to look up read receipt: %w", err)
		default:
			r.ReadAt = existing.UTC()
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE room_members SET unread_count = 0, last_read_at = ?
			WHERE room_id = ? AND subscriber_id = ?`,
			r.ReadAt, roomID, readerID); err != nil {
			return fmt.Errorf("failed to reset unread counter: %w", err)
		}

		receipt = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// SoftDeleteMessagesBefore marks messages created before cutoff as deleted
// and returns how many were affected.
func (db *DB) SoftDeleteMessagesBefore(ctx context.Context, cutoff time.Time) (n int64, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("update", "messages", start, err) }()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE messages SET deleted_at = ? WHERE deleted_at IS NULL AND created_at < ?`,
		nowUTC(), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to soft-delete messages: %w", err)
	}
	return res.RowsAffected()
}
