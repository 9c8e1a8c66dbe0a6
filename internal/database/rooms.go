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
	"strings"
	"time"

	"github.com/tomtom215/switchboard/internal/models"
)

// CreateRoom inserts a room with its creator as owner and memberIDs as
// members. Every referenced subscriber must exist.
func (db *DB) CreateRoom(ctx context.Context, room *models.Room, memberIDs []int64) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("insert", "rooms", start, err) }()

	name := strings.TrimSpace(room.Name)
	if name == "" {
		return fmt.Errorf("room name is required")
	}
	kind := room.Kind
	if kind == "" {
		kind = models.RoomKindGroup
	}

	now := nowUTC()
	err = db.withTx(ctx, "create_room", func(tx *sql.Tx) error {
		if err := requireSubscriber(ctx, tx, room.CreatedBy); err != nil {
			return err
		}

		var id int64
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO rooms (name, kind, created_by, created_at)
			VALUES (?, ?, ?, ?)
			RETURNING id`,
			name, kind, room.CreatedBy, now,
		).Scan(&id); err != nil {
			return fmt.Errorf("failed to insert room: %w", err)
		}

		if err := insertMember(ctx, tx, id, room.CreatedBy, models.MemberRoleOwner, now); err != nil {
			return err
		}
		seen := map[int64]bool{room.CreatedBy: true}
		for _, memberID := range memberIDs {
			if seen[memberID] {
				continue
			}
			seen[memberID] = true
			if err := requireSubscriber(ctx, tx, memberID); err != nil {
				return err
			}
			if err := insertMember(ctx, tx, id, memberID, models.MemberRoleMember, now); err != nil {
				return err
			}
		}

		room.ID = id
		return nil
	})
	if err != nil {
		return err
	}

	room.Name = name
	room.Kind = kind
	room.CreatedAt = now
	return nil
}

// GetRoom returns one room by id.
func (db *DB) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	var r models.Room
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, kind, created_by, created_at FROM rooms WHERE id = ?`, id,
	).Scan(&r.ID, &r.Name, &r.Kind, &r.CreatedBy, &r.CreatedAt)
	observe("select", "rooms", start, err)
	if err != nil {
		return nil, mapNoRows(err, "room", id)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

// AddMember adds a subscriber to a room. It reports false when the
// subscriber was already a member.
func (db *DB) AddMember(ctx context.Context, roomID, subscriberID int64, role string) (added bool, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("insert", "room_members", start, err) }()

	if role == "" {
		role = models.MemberRoleMember
	}

	err = db.withTx(ctx, "add_member", func(tx *sql.Tx) error {
		added = false
		if err := requireRoom(ctx, tx, roomID); err != nil {
			return err
		}
		if err := requireSubscriber(ctx, tx, subscriberID); err != nil {
			return err
		}
		member, err := isMemberTx(ctx, tx, roomID, subscriberID)
		if err != nil || member {
			return err
		}
		if err := insertMember(ctx, tx, roomID, subscriberID, role, nowUTC()); err != nil {
			return err
		}
		added = true
		return nil
	})
	return added, err
}

// RemoveMember removes a subscriber from a room. It reports false when the
// subscriber was not a member.
func (db *DB) RemoveMember(ctx context.Context, roomID, subscriberID int64) (removed bool, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("delete", "room_members", start, err) }()

	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM room_members WHERE room_id = ? AND subscriber_id = ?`, roomID, subscriberID)
	if err != nil {
		return false, fmt.Errorf("failed to remove member: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// IsMember reports whether the subscriber belongs to the room.
func (db *DB) IsMember(ctx context.Context, roomID, subscriberID int64) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM room_members WHERE room_id = ? AND subscriber_id = ?`,
		roomID, subscriberID).Scan(&n)
	observe("select", "room_members", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return n > 0, nil
}

// GetMember returns one membership row, including its unread counter.
func (db *DB) GetMember(ctx context.Context, roomID, subscriberID int64) (*models.RoomMember, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	m, err := scanMember(db.conn.QueryRowContext(ctx, `
		SELECT room_id, subscriber_id, role, unread_count, last_read_at, joined_at
		FROM room_members WHERE room_id = ? AND subscriber_id = ?`, roomID, subscriberID))
	observe("select", "room_members", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("member %d of room %d: %w", subscriberID, roomID, ErrNotFound)
	}
	return m, err
}

// ListMembers returns the members of a room in join order.
func (db *DB) ListMembers(ctx context.Context, roomID int64) ([]models.RoomMember, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT room_id, subscriber_id, role, unread_count, last_read_at, joined_at
		FROM room_members WHERE room_id = ?
		ORDER BY joined_at, subscriber_id`, roomID)
	if err != nil {
		observe("select", "room_members", start, err)
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []models.RoomMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			observe("select", "room_members", start, err)
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, *m)
	}
	err = rows.Err()
	observe("select", "room_members", start, err)
	return members, err
}

func scanMember(row rowScanner) (*models.RoomMember, error) {
	var (
		m        models.RoomMember
		lastRead sql.NullTime
	)
	if err := row.Scan(&m.RoomID, &m.SubscriberID, &m.Role, &m.UnreadCount, &lastRead, &m.JoinedAt); err != nil {
		return nil, err
	}
	m.LastReadAt = timePtr(lastRead)
	m.JoinedAt = m.JoinedAt.UTC()
	return &m, nil
}

func insertMember(ctx context.Context, tx *sql.Tx, roomID, subscriberID int64, role string, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO room_members (room_id, subscriber_id, role, unread_count, joined_at)
		VALUES (?, ?, ?, 0, ?)`,
		roomID, subscriberID, role, now)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("member %d of room %d: %w", subscriberID, roomID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

func isMemberTx(ctx context.Context, tx *sql.Tx, roomID, subscriberID int64) (bool, error) {
	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM room_members WHERE room_id = ? AND subscriber_id = ?`,
		roomID, subscriberID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return n > 0, nil
}

func requireRoom(ctx context.Context, tx *sql.Tx, id int64) error {
	return requireRow(ctx, tx, `SELECT COUNT(*) FROM rooms WHERE id = ?`, "room", id)
}

func requireSubscriber(ctx context.Context, tx *sql.Tx, id int64) error {
	return requireRow(ctx, tx, `SELECT COUNT(*) FROM subscribers WHERE id = ?`, "subscriber", id)
}

func requireRow(ctx context.Context, tx *sql.Tx, query, entity string, id int64) error {
	var n int
	if err := tx.QueryRowContext(ctx, query, id).Scan(&n); err != nil {
		return fmt.Errorf("failed to look up %s %d: %w", entity, id, err)
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}
