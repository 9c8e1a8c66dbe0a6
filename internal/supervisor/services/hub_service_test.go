// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

var _ suture.Service = (*HubService)(nil)

type mockHub struct {
	runErr   error
	runCount atomic.Int32
}

func (m *mockHub) RunWithContext(ctx context.Context) error {
	m.runCount.Add(1)
	if m.runErr != nil {
		return m.runErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestHubService_Serve(t *testing.T) {
	t.Run("returns context error on cancellation", func(t *testing.T) {
		hub := &mockHub{}
		svc := NewHubService(hub)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(ctx) }()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Serve did not return after cancellation")
		}
		if hub.runCount.Load() != 1 {
			t.Errorf("RunWithContext called %d times", hub.runCount.Load())
		}
	})

	t.Run("propagates hub errors", func(t *testing.T) {
		want := errors.New("bus subscribe failed")
		svc := NewHubService(&mockHub{runErr: want})

		if err := svc.Serve(context.Background()); !errors.Is(err, want) {
			t.Errorf("expected %v, got %v", want, err)
		}
	})
}

func TestHubService_RestartedBySupervisor(t *testing.T) {
	hub := &mockHub{runErr: errors.New("crash")}
	svc := NewHubService(hub)
	if svc.String() != "connection-hub" {
		t.Errorf("String() = %q", svc.String())
	}

	sup := suture.New("test-sup", suture.Spec{
		FailureThreshold: 100,
		FailureBackoff:   10 * time.Millisecond,
		Timeout:          100 * time.Millisecond,
	})
	sup.Add(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for hub.runCount.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("hub was not restarted after a crash")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-errCh
}
