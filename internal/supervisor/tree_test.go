// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

var _ suture.Service = (*mockService)(nil)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewSupervisorTree_Defaults(t *testing.T) {
	tree, err := NewSupervisorTree(quietLogger(), TreeConfig{})
	if err != nil {
		t.Fatalf("NewSupervisorTree: %v", err)
	}
	if tree.Root() == nil {
		t.Fatal("root supervisor is nil")
	}
	if tree.config != DefaultTreeConfig() {
		t.Errorf("config = %+v, want defaults %+v", tree.config, DefaultTreeConfig())
	}

	tree, _ = NewSupervisorTree(quietLogger(), TreeConfig{FailureBackoff: time.Second})
	if tree.config.FailureBackoff != time.Second || tree.config.FailureThreshold != 5 {
		t.Errorf("partial config = %+v", tree.config)
	}
}

func TestSupervisorTree_StartsEveryLayer(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})

	sched := newMockService("scheduler")
	hub := newMockService("connection-hub")
	nats := newMockService("nats-embedded")
	httpSvc := newMockService("http-server")
	tree.AddDataService(sched)
	tree.AddMessagingService(hub)
	tree.AddMessagingService(nats)
	tree.AddAPIService(httpSvc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	all := []*mockService{sched, hub, nats, httpSvc}
	waitFor(t, func() bool {
		for _, s := range all {
			if s.starts() < 1 {
				return false
			}
		}
		return true
	}, "not every service started")

	cancel()
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		t.Errorf("tree error: %v", err)
	}

	for _, s := range all {
		if s.stops() != s.starts() {
			t.Errorf("%s: %d starts, %d stops", s, s.starts(), s.stops())
		}
	}
	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) != 0 {
		t.Errorf("unstopped services: %v", unstopped)
	}
}

func TestSupervisorTree_RestartsFailingService(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	flaky := newMockService("flaky-hub")
	flaky.setFailCount(2)
	stable := newMockService("http-server")
	tree.AddMessagingService(flaky)
	tree.AddAPIService(stable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = tree.Serve(ctx) }()

	waitFor(t, func() bool { return flaky.starts() >= 3 }, "flaky service was not restarted")
	if stable.starts() != 1 {
		t.Errorf("stable service started %d times, want 1", stable.starts())
	}
}

func TestSupervisorTree_DoNotRestart(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureBackoff:  10 * time.Millisecond,
		ShutdownTimeout: time.Second,
	})

	oneShot := newMockService("one-shot")
	oneShot.setError(suture.ErrDoNotRestart)
	tree.AddDataService(oneShot)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = tree.Serve(ctx) }()

	waitFor(t, func() bool { return oneShot.starts() >= 1 }, "service never started")
	time.Sleep(100 * time.Millisecond)
	if oneShot.starts() != 1 {
		t.Errorf("ErrDoNotRestart service started %d times", oneShot.starts())
	}
}

func TestNewSupervisorTree_NilLogger(t *testing.T) {
	if _, err := NewSupervisorTree(nil, TreeConfig{}); err == nil {
		t.Fatal("expected error for nil logger")
	}
}

func TestLayer_String(t *testing.T) {
	tests := []struct {
		layer Layer
		want  string
	}{
		{LayerData, "data-layer"},
		{LayerMessaging, "messaging-layer"},
		{LayerAPI, "api-layer"},
		{Layer(9), "layer(9)"},
	}
	for _, tt := range tests {
		if got := tt.layer.String(); got != tt.want {
			t.Errorf("Layer(%d).String() = %q, want %q", int(tt.layer), got, tt.want)
		}
	}
}

func TestSupervisorTree_Services(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{})
	tree.AddDataService(newMockService("scheduler"))
	tree.AddDataService(newMockService("revocation-gc"))
	tree.AddAPIService(newMockService("http-server"))

	got := tree.Services()
	if len(got["data-layer"]) != 2 || got["data-layer"][0] != "scheduler" || got["data-layer"][1] != "revocation-gc" {
		t.Errorf("data-layer = %v", got["data-layer"])
	}
	if len(got["api-layer"]) != 1 || got["api-layer"][0] != "http-server" {
		t.Errorf("api-layer = %v", got["api-layer"])
	}
	if _, ok := got["messaging-layer"]; ok {
		t.Errorf("messaging-layer should be empty, got %v", got["messaging-layer"])
	}

	got["data-layer"][0] = "mutated"
	if tree.Services()["data-layer"][0] != "scheduler" {
		t.Error("Services returned shared slice")
	}
}

func TestSupervisorTree_AddUnknownLayerPanics(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{})
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown layer")
		}
	}()
	tree.Add(Layer(42), newMockService("stray"))
}
