// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// mockService is a suture.Service whose failures the test controls.
type mockService struct {
	name       string
	startCount atomic.Int32
	stopCount  atomic.Int32
	failCount  atomic.Int32

	mu       sync.Mutex
	maxFails int32
	err      error
}

func newMockService(name string) *mockService {
	return &mockService{name: name}
}

func (m *mockService) Serve(ctx context.Context) error {
	m.startCount.Add(1)
	defer m.stopCount.Add(1)

	m.mu.Lock()
	err := m.err
	maxFails := m.maxFails
	m.mu.Unlock()

	if maxFails > 0 && m.failCount.Add(1) <= maxFails {
		return errors.New("simulated failure")
	}
	if err != nil {
		return err
	}

	<-ctx.Done()
	return ctx.Err()
}

// setError makes every Serve return err immediately.
func (m *mockService) setError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// setFailCount makes the first n calls to Serve fail.
func (m *mockService) setFailCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxFails = int32(n)
}

func (m *mockService) starts() int32 { return m.startCount.Load() }
func (m *mockService) stops() int32  { return m.stopCount.Load() }
func (m *mockService) String() string {
	return m.name
}
