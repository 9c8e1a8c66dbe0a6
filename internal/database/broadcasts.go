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

const broadcastColumns = `id, name, actor_id, title, body, cron_expr, timezone, enabled,
	next_run_at, last_run_at, last_status, run_count, created_at`

func scanBroadcast(row rowScanner) (*models.ScheduledBroadcast, error) {
	var (
		b         models.ScheduledBroadcast
		nextRunAt sql.NullTime
		lastRunAt sql.NullTime
	)
	if err := row.Scan(&b.ID, &b.Name, &b.ActorID, &b.Title, &b.Body, &b.CronExpr, &b.Timezone,
		&b.Enabled, &nextRunAt, &lastRunAt, &b.LastStatus, &b.RunCount, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.NextRunAt = timePtr(nextRunAt)
	b.LastRunAt = timePtr(lastRunAt)
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// CreateScheduledBroadcast stores a broadcast definition. The caller computes
// NextRunAt from the cron expression.
func (db *DB) CreateScheduledBroadcast(ctx context.Context, b *models.ScheduledBroadcast) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("insert", "scheduled_broadcasts", start, err) }()

	if b.Timezone == "" {
		b.Timezone = "UTC"
	}

	now := nowUTC()
	err = db.withTx(ctx, "create_scheduled_broadcast", func(tx *sql.Tx) error {
		if err := requireSubscriber(ctx, tx, b.ActorID); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `
			INSERT INTO scheduled_broadcasts
				(name, actor_id, title, body, cron_expr, timezone, enabled, next_run_at, last_status, run_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', 0, ?)
			RETURNING id`,
			b.Name, b.ActorID, b.Title, b.Body, b.CronExpr, b.Timezone, b.Enabled,
			nullableTime(b.NextRunAt), now,
		).Scan(&b.ID)
	})
	if err != nil {
		return fmt.Errorf("failed to insert scheduled broadcast: %w", err)
	}
	b.CreatedAt = now
	b.RunCount = 0
	b.LastStatus = ""
	return nil
}

// GetScheduledBroadcast returns one broadcast definition by id.
func (db *DB) GetScheduledBroadcast(ctx context.Context, id int64) (*models.ScheduledBroadcast, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	b, err := scanBroadcast(db.conn.QueryRowContext(ctx,
		`SELECT `+broadcastColumns+` FROM scheduled_broadcasts WHERE id = ?`, id))
	observe("select", "scheduled_broadcasts", start, err)
	if err != nil {
		return nil, mapNoRows(err, "scheduled broadcast", id)
	}
	return b, nil
}

// ListScheduledBroadcasts returns every broadcast definition in id order.
func (db *DB) ListScheduledBroadcasts(ctx context.Context) ([]models.ScheduledBroadcast, error) {
	return db.queryBroadcasts(ctx, `SELECT `+broadcastColumns+` FROM scheduled_broadcasts ORDER BY id`)
}

// ListDueBroadcasts returns enabled broadcasts whose next run is at or
// before now, earliest first.
func (db *DB) ListDueBroadcasts(ctx context.Context, now time.Time) ([]models.ScheduledBroadcast, error) {
	return db.queryBroadcasts(ctx, `
		SELECT `+broadcastColumns+` FROM scheduled_broadcasts
		WHERE enabled AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at, id`, now.UTC())
}

func (db *DB) queryBroadcasts(ctx context.Context, query string, args ...any) ([]models.ScheduledBroadcast, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		observe("select", "scheduled_broadcasts", start, err)
		return nil, fmt.Errorf("failed to query scheduled broadcasts: %w", err)
	}
	defer rows.Close()

	var out []models.ScheduledBroadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			observe("select", "scheduled_broadcasts", start, err)
			return nil, fmt.Errorf("failed to scan scheduled broadcast: %w", err)
		}
		out = append(out, *b)
	}
	err = rows.Err()
	observe("select", "scheduled_broadcasts", start, err)
	return out, err
}

// CompleteBroadcastRun records the outcome of one run and moves the
// schedule forward. A nil nextRunAt leaves the broadcast without a
// further run.
func (db *DB) CompleteBroadcastRun(ctx context.Context, id int64, ranAt time.Time, status string, nextRunAt *time.Time) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("update", "scheduled_broadcasts", start, err) }()

	err = db.withTx(ctx, "complete_broadcast_run", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE scheduled_broadcasts
			SET last_run_at = ?, last_status = ?, run_count = run_count + 1, next_run_at = ?
			WHERE id = ?`,
			ranAt.UTC(), status, nullableTime(nextRunAt), id)
		if err != nil {
			return fmt.Errorf("failed to update scheduled broadcast: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound("scheduled broadcast", id)
		}
		return nil
	})
	return err
}

// SetBroadcastEnabled enables or disables a broadcast definition.
func (db *DB) SetBroadcastEnabled(ctx context.Context, id int64, enabled bool) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("update", "scheduled_broadcasts", start, err) }()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE scheduled_broadcasts SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to update scheduled broadcast: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("scheduled broadcast", id)
	}
	return nil
}
