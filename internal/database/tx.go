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

	"github.com/tomtom215/switchboard/internal/logging"
)

// errCommitConstraint marks a unique violation detected at commit, which
// happens when a concurrent transaction committed the same key first.
var errCommitConstraint = errors.New("constraint violated at commit")

// withTx runs fn in a transaction and commits it. The transaction is retried
// when DuckDB reports a write-write conflict or a commit-time unique
// violation, so fn must be safe to re-run.
func (db *DB) withTx(ctx context.Context, name string, fn func(tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < db.maxTxAttempts; attempt++ {
		if attempt > 0 {
			delay := db.txRetryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			logging.Debug().Str("tx", name).Int("attempt", attempt+1).Msg("Retrying transaction after conflict")
		}

		lastErr = db.runTx(ctx, fn)
		if lastErr == nil || !(isTransactionConflict(lastErr) || errors.Is(lastErr, errCommitConstraint)) {
			return lastErr
		}
	}
	return fmt.Errorf("%s: gave up after %d attempts: %w", name, db.maxTxAttempts, lastErr)
}

func (db *DB) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("commit transaction: %w: %w", errCommitConstraint, err)
		}
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// nextID draws the next value from a sequence inside tx.
func nextID(ctx context.Context, tx *sql.Tx, sequence string) (int64, error) {
	var id int64
	if err := tx.QueryRowContext(ctx, "SELECT nextval('"+sequence+"')").Scan(&id); err != nil {
		return 0, fmt.Errorf("nextval %s: %w", sequence, err)
	}
	return id, nil
}

// nullableInt64 converts an optional id into a driver value.
func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// nullableString stores "" as NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
