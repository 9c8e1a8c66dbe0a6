// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

//go:build integration

package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/switchboard/internal/testinfra"
)

func startRedis(t *testing.T) string {
	t.Helper()
	return testinfra.StartRedis(t)
}

func newTestRedisBus(t *testing.T, addr, origin string) *RedisBus {
	t.Helper()
	bus, err := NewRedisBus(context.Background(), RedisConfig{Addr: addr, ChannelPrefix: "test:", Origin: origin})
	if err != nil {
		t.Fatalf("NewRedisBus: %v", err)
	}
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestRedisBus_Integration(t *testing.T) {
	addr := startRedis(t)
	exerciseBus(t, newTestRedisBus(t, addr, "node-a"))
}

func TestRedisBus_SharedChannelRefCount(t *testing.T) {
	addr := startRedis(t)
	bus := newTestRedisBus(t, addr, "node-a")
	ctx := context.Background()

	first := newRecorder()
	second := newRecorder()
	subFirst, err := bus.Subscribe(ctx, ChatRoom(1), first.handle)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	subSecond, err := bus.Subscribe(ctx, ChatRoom(1), second.handle)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	publishUntilReceived(t, bus, first, ChatRoom(1))
	second.waitFor(t, 1, 2*time.Second)

	// Releasing one handler keeps the channel for the other.
	_ = subFirst.Unsubscribe()
	publishUntilReceived(t, bus, second, ChatRoom(1))
	_ = subSecond.Unsubscribe()

	bus.mu.Lock()
	remaining := len(bus.handlers)
	bus.mu.Unlock()
	if remaining != 0 {
		t.Errorf("%d channels still registered", remaining)
	}
}

func TestRedisBus_Unreachable(t *testing.T) {
	_, err := NewRedisBus(context.Background(), RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	if !errors.Is(err, ErrBusUnavailable) {
		t.Errorf("err = %v, want ErrBusUnavailable", err)
	}
}
