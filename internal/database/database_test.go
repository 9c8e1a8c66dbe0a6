// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/switchboard/internal/config"
	"github.com/tomtom215/switchboard/internal/models"
)

// testDBSemaphore limits concurrent database creation to prevent resource exhaustion in CI.
// The semaphore is held for the whole test so only one test has an active
// DuckDB connection at any time.
var testDBSemaphore = make(chan struct{}, 1)

// testDBMutex serializes database creation.
var testDBMutex sync.Mutex

// setupTestDB creates a new in-memory test database with timeout protection.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	cfg := &config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "512MB",
	}

	type result struct {
		db  *DB
		err error
	}

	resultCh := make(chan result, 1)
	go func() {
		testDBMutex.Lock()
		db, err := New(cfg)
		testDBMutex.Unlock()
		resultCh <- result{db: db, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("Failed to create test database: %v", res.err)
		}
		t.Cleanup(func() {
			if err := res.db.Close(); err != nil {
				t.Errorf("Close: %v", err)
			}
		})
		return res.db
	case <-time.After(120 * time.Second):
		t.Fatalf("Timeout: database creation took longer than 120s (DuckDB may be under resource pressure)")
		return nil
	}
}

// createSubscribers inserts n active subscribers named user1..userN.
func createSubscribers(t *testing.T, db *DB, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 1; i <= n; i++ {
		s := &models.Subscriber{Username: fmt.Sprintf("user%d", i), Active: true}
		if err := db.CreateSubscriber(context.Background(), s); err != nil {
			t.Fatalf("CreateSubscriber(%d): %v", i, err)
		}
		ids = append(ids, s.ID)
	}
	return ids
}

func TestNew_AppliesMigrations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	version, err := db.GetCurrentSchemaVersion(ctx)
	if err != nil {
		t.Fatalf("GetCurrentSchemaVersion: %v", err)
	}
	if want := len(migrations()); version != want {
		t.Errorf("schema version = %d, want %d", version, want)
	}

	history, err := db.GetMigrationHistory(ctx)
	if err != nil {
		t.Fatalf("GetMigrationHistory: %v", err)
	}
	if len(history) != len(migrations()) {
		t.Fatalf("history has %d entries, want %d", len(history), len(migrations()))
	}
	for i, m := range history {
		if m.Version != i+1 {
			t.Errorf("history[%d].Version = %d", i, m.Version)
		}
		if m.AppliedAt.IsZero() {
			t.Errorf("history[%d].AppliedAt is zero", i)
		}
	}

	// Re-running is a no-op.
	if err := db.runMigrations(); err != nil {
		t.Fatalf("second runMigrations: %v", err)
	}
	if err := db.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestSplitStatements(t *testing.T) {
	t.Parallel()

	got := splitStatements("CREATE TABLE a (x INT);\n\n  CREATE INDEX i ON a (x);  ;")
	if len(got) != 2 {
		t.Fatalf("got %d statements: %q", len(got), got)
	}
	if got[1] != "CREATE INDEX i ON a (x)" {
		t.Errorf("got[1] = %q", got[1])
	}
}

func TestIsTransactionConflict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("TransactionContext Error: Failed to commit: write-write conflict"), true},
		{errors.New("Transaction conflict: cannot update"), true},
		{errors.New("Conflict on update of row"), true},
		{errors.New("syntax error"), false},
	}
	for _, tt := range tests {
		if got := isTransactionConflict(tt.err); got != tt.want {
			t.Errorf("isTransactionConflict(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestNowUTC_MicrosecondPrecision(t *testing.T) {
	for i := 0; i < 20; i++ {
		now := nowUTC()
		if now.Nanosecond()%int(time.Microsecond) != 0 {
			t.Fatalf("nowUTC() = %v has sub-microsecond precision", now)
		}
		if now.Location() != time.UTC {
			t.Fatalf("nowUTC() location = %v, want UTC", now.Location())
		}
	}
}
