// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/switchboard/internal/logging"
)

// Migration represents a versioned database migration.
type Migration struct {
	Version     int       // Unique version number (monotonically increasing)
	Name        string    // Human-readable migration name
	Description string    // Description of what this migration does
	SQL         string    // One or more statements separated by semicolons
	AppliedAt   time.Time // When the migration was applied (populated on query)
}

// schemaMigrationsTable creates the migration tracking table
const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name VARCHAR NOT NULL,
	description VARCHAR,
	applied_at TIMESTAMP NOT NULL
);
`

// migrations returns all versioned migrations in order.
// Migrations MUST be append-only; never modify or remove one that has shipped.
func migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_subscribers", Description: "Subscribers and their active flag", SQL: schemaSubscribers},
		{Version: 2, Name: "create_rooms", Description: "Rooms and memberships with unread counters", SQL: schemaRooms},
		{Version: 3, Name: "create_messages", Description: "Chat messages and read receipts", SQL: schemaMessages},
		{Version: 4, Name: "create_notifications", Description: "Per-recipient notifications with dedup keys", SQL: schemaNotifications},
		{Version: 5, Name: "create_scheduled_broadcasts", Description: "Cron-scheduled broadcast definitions", SQL: schemaBroadcasts},
	}
}

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// runMigrations executes only migrations that haven't been applied yet.
func (db *DB) runMigrations() error {
	ctx, cancel := schemaContext()
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, schemaMigrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	newMigrations := 0
	for _, m := range migrations() {
		if applied[m.Version] {
			continue
		}

		for _, stmt := range splitStatements(m.SQL) {
			if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to execute migration v%d (%s): %w", m.Version, m.Name, err)
			}
		}

		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, description, applied_at) VALUES (?, ?, ?, ?)`,
			m.Version, m.Name, m.Description, nowUTC())
		if err != nil {
			return fmt.Errorf("failed to record migration v%d: %w", m.Version, err)
		}

		newMigrations++
	}

	if newMigrations > 0 {
		logging.Info().Int("count", newMigrations).Msg("Applied database migrations")
	}

	return nil
}

func (db *DB) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// splitStatements splits a migration body on semicolons. Migration SQL
// never contains semicolons inside literals.
func splitStatements(sqlText string) []string {
	parts := strings.Split(sqlText, ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

// GetCurrentSchemaVersion returns the highest applied migration version
func (db *DB) GetCurrentSchemaVersion(ctx context.Context) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var version int
	err := db.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// GetMigrationHistory returns all applied migrations in order
func (db *DB) GetMigrationHistory(ctx context.Context) ([]Migration, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT version, name, COALESCE(description, ''), applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query migration history: %w", err)
	}
	defer rows.Close()

	var history []Migration
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Version, &m.Name, &m.Description, &m.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		history = append(history, m)
	}
	return history, rows.Err()
}
