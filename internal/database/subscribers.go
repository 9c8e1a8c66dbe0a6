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

const subscriberColumns = `id, username, display_name, avatar_url, active, created_at`

func scanSubscriber(row rowScanner) (*models.Subscriber, error) {
	var s models.Subscriber
	if err := row.Scan(&s.ID, &s.Username, &s.DisplayName, &s.AvatarURL, &s.Active, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}

// CreateSubscriber inserts a subscriber and fills in its id and creation time.
// A taken username returns ErrDuplicate.
func (db *DB) CreateSubscriber(ctx context.Context, s *models.Subscriber) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("insert", "subscribers", start, err) }()

	username := strings.TrimSpace(s.Username)
	if username == "" {
		return fmt.Errorf("subscriber username is required")
	}

	now := nowUTC()
	err = db.conn.QueryRowContext(ctx, `
		INSERT INTO subscribers (username, display_name, avatar_url, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		username, s.DisplayName, s.AvatarURL, s.Active, now,
	).Scan(&s.ID)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("subscriber %q: %w", username, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert subscriber: %w", err)
	}
	s.Username = username
	s.CreatedAt = now
	return nil
}

// GetSubscriber returns one subscriber by id.
func (db *DB) GetSubscriber(ctx context.Context, id int64) (*models.Subscriber, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	s, err := scanSubscriber(db.conn.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE id = ?`, id))
	observe("select", "subscribers", start, err)
	if err != nil {
		return nil, mapNoRows(err, "subscriber", id)
	}
	return s, nil
}

// GetActorSummary returns the public fields used to decorate events.
func (db *DB) GetActorSummary(ctx context.Context, id int64) (models.ActorSummary, error) {
	s, err := db.GetSubscriber(ctx, id)
	if err != nil {
		return models.ActorSummary{}, err
	}
	return s.Summary(), nil
}

// IsActiveSubscriber reports whether the subscriber exists and is active.
// Unknown ids return false without error.
func (db *DB) IsActiveSubscriber(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	var active bool
	err := db.conn.QueryRowContext(ctx, `SELECT active FROM subscribers WHERE id = ?`, id).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		observe("select", "subscribers", start, nil)
		return false, nil
	}
	observe("select", "subscribers", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to check subscriber %d: %w", id, err)
	}
	return active, nil
}

// SetSubscriberActive activates or deactivates a subscriber.
func (db *DB) SetSubscriberActive(ctx context.Context, id int64, active bool) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("update", "subscribers", start, err) }()

	res, err := db.conn.ExecContext(ctx, `UPDATE subscribers SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update subscriber %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("subscriber", id)
	}
	return nil
}

// ListActiveSubscriberIDs returns the ids of all active subscribers in id order.
func (db *DB) ListActiveSubscriberIDs(ctx context.Context) ([]int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM subscribers WHERE active ORDER BY id`)
	if err != nil {
		observe("select", "subscribers", start, err)
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()

	ids, err := scanIDs(rows)
	observe("select", "subscribers", start, err)
	return ids, err
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
