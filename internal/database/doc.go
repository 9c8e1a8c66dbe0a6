// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

/*
Package database is the durable store behind the fan-out core.

It holds subscribers, rooms and memberships, chat messages with read
receipts, notifications, and scheduled broadcasts in DuckDB, accessed through
database/sql with the duckdb-go driver.

Write Rules:

  - Ids come from sequences and are assigned before the caller publishes
    anything, so a published event always names a committed record.
  - Every multi-statement write runs in one transaction (see withTx), retried
    on DuckDB transaction conflicts.
  - Counters are incremented in SQL (unread_count = unread_count + 1).
  - Times are written from Go in UTC; no column relies on a SQL default clock.

Errors:

Lookups that find nothing return errors wrapping ErrNotFound. Inserts that
would violate a uniqueness rule the caller can act on wrap ErrDuplicate.

Schema:

The schema lives in schema.go and is applied as versioned migrations
recorded in schema_migrations. Migrations are append-only.
*/
package database
