// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

//go:build integration

package testinfra

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
)

// RequireDocker skips t when no healthy container runtime is reachable.
func RequireDocker(t *testing.T) {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
}

// StartRedis starts a Redis container for t and returns its address. The
// container is terminated when t finishes.
func StartRedis(t *testing.T, opts ...RedisOption) string {
	t.Helper()
	RequireDocker(t)

	redis, err := NewRedisContainer(context.Background(), opts...)
	if redis != nil {
		testcontainers.CleanupContainer(t, redis.Container)
	}
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	return redis.Addr
}
