// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package database

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Store errors
var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("database: not found")

	// ErrDuplicate is returned when a record with the same identity already exists.
	ErrDuplicate = errors.New("database: duplicate")

	// ErrNotMember is returned when a room operation names a subscriber
	// that does not belong to the room.
	ErrNotMember = errors.New("database: not a room member")
)

// notFound wraps ErrNotFound with the entity and id that were looked up.
func notFound(entity string, id int64) error {
	return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
}

// mapNoRows converts sql.ErrNoRows into ErrNotFound.
func mapNoRows(err error, entity string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(entity, id)
	}
	return err
}

// isTransactionConflict checks if an error is a DuckDB transaction conflict
func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Transaction conflict") ||
		strings.Contains(errStr, "Conflict on update") ||
		strings.Contains(errStr, "write-write conflict") ||
		strings.Contains(errStr, "cannot update a table that has been altered")
}

// isConstraintViolation checks if an error is a DuckDB unique or primary key violation.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Constraint Error") ||
		strings.Contains(errStr, "violates primary key constraint") ||
		strings.Contains(errStr, "violates unique constraint") ||
		strings.Contains(errStr, "Duplicate key")
}

// closeQuietly closes a resource and explicitly ignores any error
// Use this for cleanup operations in error paths where Close() errors are not actionable
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
