// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// Layer names one child supervisor of the tree.
type Layer int

const (
	// LayerData runs the scheduler and store maintenance.
	LayerData Layer = iota
	// LayerMessaging runs the connection hub and the embedded NATS server.
	LayerMessaging
	// LayerAPI runs the HTTP server.
	LayerAPI
)

func (l Layer) String() string {
	switch l {
	case LayerData:
		return "data-layer"
	case LayerMessaging:
		return "messaging-layer"
	case LayerAPI:
		return "api-layer"
	default:
		return fmt.Sprintf("layer(%d)", int(l))
	}
}

var layers = []Layer{LayerData, LayerMessaging, LayerAPI}

// TreeConfig tunes restart behaviour. Zero fields take DefaultTreeConfig values.
type TreeConfig struct {
	// FailureThreshold is how many failures a supervisor tolerates before
	// backing off.
	FailureThreshold float64

	// FailureDecay is the failure count half-life in seconds.
	FailureDecay float64

	// FailureBackoff is the pause once the threshold is crossed.
	FailureBackoff time.Duration

	// ShutdownTimeout bounds how long each service may take to stop.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig mirrors suture's defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

func (c TreeConfig) withDefaults() TreeConfig {
	d := DefaultTreeConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureDecay <= 0 {
		c.FailureDecay = d.FailureDecay
	}
	if c.FailureBackoff <= 0 {
		c.FailureBackoff = d.FailureBackoff
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

func (c TreeConfig) supervisorSpec() suture.Spec {
	return suture.Spec{
		FailureThreshold: c.FailureThreshold,
		FailureDecay:     c.FailureDecay,
		FailureBackoff:   c.FailureBackoff,
		Timeout:          c.ShutdownTimeout,
	}
}

// SupervisorTree is the root supervisor with one child per Layer. A layer
// stuck in backoff does not stop the others.
type SupervisorTree struct {
	root     *suture.Supervisor
	children map[Layer]*suture.Supervisor
	config   TreeConfig

	mu       sync.Mutex
	services map[Layer][]string
}

// NewSupervisorTree builds the tree. Supervisor events go to logger.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) (*SupervisorTree, error) {
	if logger == nil {
		return nil, fmt.Errorf("supervisor: logger is required")
	}
	config = config.withDefaults()

	hook := &sutureslog.Handler{Logger: logger}
	rootSpec := config.supervisorSpec()
	rootSpec.EventHook = hook.MustHook()

	t := &SupervisorTree{
		root:     suture.New("switchboard", rootSpec),
		children: make(map[Layer]*suture.Supervisor, len(layers)),
		config:   config,
		services: make(map[Layer][]string, len(layers)),
	}
	// Children pick up the root's event hook when added.
	for _, l := range layers {
		child := suture.New(l.String(), config.supervisorSpec())
		t.children[l] = child
		t.root.Add(child)
	}
	return t, nil
}

// Root returns the root supervisor.
func (t *SupervisorTree) Root() *suture.Supervisor {
	return t.root
}

// Add registers svc under layer.
func (t *SupervisorTree) Add(layer Layer, svc suture.Service) suture.ServiceToken {
	child, ok := t.children[layer]
	if !ok {
		panic(fmt.Sprintf("supervisor: unknown %s", layer))
	}
	t.mu.Lock()
	t.services[layer] = append(t.services[layer], fmt.Sprint(svc))
	t.mu.Unlock()
	return child.Add(svc)
}

// AddDataService adds svc to the data layer.
func (t *SupervisorTree) AddDataService(svc suture.Service) suture.ServiceToken {
	return t.Add(LayerData, svc)
}

// AddMessagingService adds svc to the messaging layer.
func (t *SupervisorTree) AddMessagingService(svc suture.Service) suture.ServiceToken {
	return t.Add(LayerMessaging, svc)
}

// AddAPIService adds svc to the API layer.
func (t *SupervisorTree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.Add(LayerAPI, svc)
}

// Services lists the names registered under each layer, keyed by layer name.
func (t *SupervisorTree) Services() map[string][]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string][]string, len(t.services))
	for l, names := range t.services {
		out[l.String()] = append([]string(nil), names...)
	}
	return out
}

// Serve blocks until ctx is cancelled.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground starts the tree in its own goroutine. The returned
// channel is closed once the tree has stopped.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services still running after their
// shutdown timeout expired.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
