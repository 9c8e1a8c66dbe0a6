// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package testinfra

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/switchboard/internal/config"
	"github.com/tomtom215/switchboard/internal/database"
	"github.com/tomtom215/switchboard/internal/models"
)

// dbSemaphore keeps one in-memory DuckDB open per test binary at a time.
var dbSemaphore = make(chan struct{}, 1)

var dbMutex sync.Mutex

// NewTestDB opens a migrated in-memory database that is closed when the
// test ends. Tests using it should not call t.Parallel.
func NewTestDB(t *testing.T) *database.DB {
	t.Helper()

	dbSemaphore <- struct{}{}
	t.Cleanup(func() { <-dbSemaphore })

	cfg := &config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB"}

	type result struct {
		db  *database.DB
		err error
	}
	ch := make(chan result, 1)
	go func() {
		dbMutex.Lock()
		defer dbMutex.Unlock()
		db, err := database.New(cfg)
		ch <- result{db: db, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			t.Fatalf("open test database: %v", res.err)
		}
		t.Cleanup(func() {
			if err := res.db.Close(); err != nil {
				t.Errorf("close test database: %v", err)
			}
		})
		return res.db
	case <-time.After(120 * time.Second):
		t.Fatal("timeout: test database creation took longer than 120s")
		return nil
	}
}

// CreateSubscribers inserts active subscribers with the given usernames and
// returns their ids in order.
func CreateSubscribers(t *testing.T, db *database.DB, usernames ...string) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(usernames))
	for _, name := range usernames {
		s := &models.Subscriber{Username: name, AvatarURL: fmt.Sprintf("https://cdn.example/%s.png", name), Active: true}
		if err := db.CreateSubscriber(context.Background(), s); err != nil {
			t.Fatalf("CreateSubscriber(%s): %v", name, err)
		}
		ids = append(ids, s.ID)
	}
	return ids
}

// CreateRoom creates a group room owned by owner with the given members.
func CreateRoom(t *testing.T, db *database.DB, owner int64, members ...int64) int64 {
	t.Helper()
	room := &models.Room{Name: "test room", Kind: models.RoomKindGroup, CreatedBy: owner}
	if err := db.CreateRoom(context.Background(), room, members); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	return room.ID
}
