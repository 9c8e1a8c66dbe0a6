// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

// Package testinfra provides shared test infrastructure.
//
// NewTestDB opens a migrated in-memory DuckDB for package tests that need the
// real store:
//
//	db := testinfra.NewTestDB(t)
//	ids := testinfra.CreateSubscribers(t, db, "alice", "bob")
//	room := testinfra.CreateRoom(t, db, ids[0], ids[1])
//
// The container helpers use testcontainers-go and are behind the
// integration build tag:
//
//	go test -tags integration ./internal/eventbus/...
//
// # Redis Container
//
//	func TestRedisBus(t *testing.T) {
//	    addr := testinfra.StartRedis(t) // skips without Docker
//	    bus, err := eventbus.NewRedisBus(ctx, eventbus.RedisConfig{Addr: addr})
//	    // ...
//	}
//
// # CI Considerations
//
// Container tests skip when Docker is unavailable. The first run pulls
// the Redis image.
package testinfra
