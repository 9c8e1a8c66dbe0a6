// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/metrics"
)

// BreakerConfig tunes the publish circuit breaker.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval clears failure counts while closed. Zero never clears.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold uint32
}

func (c *BreakerConfig) applyDefaults() {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
}

// Resilient decorates a Bus with a publish circuit breaker and metrics.
type Resilient struct {
	inner     Bus
	transport string
	cb        *gobreaker.CircuitBreaker[interface{}]
}

// NewResilient wraps inner. transport labels metrics and names the breaker.
func NewResilient(inner Bus, transport string, cfg BreakerConfig) *Resilient {
	cfg.applyDefaults()
	name := "eventbus-" + transport

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// Refused events and cancelled callers say nothing about the transport.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrPayloadTooLarge) ||
				errors.Is(err, ErrInvalidRoom) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Event bus circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(gobreaker.StateClosed))

	return &Resilient{
		inner:     inner,
		transport: transport,
		cb:        gobreaker.NewCircuitBreaker[interface{}](settings),
	}
}

// stateToFloat maps breaker states to gauge values: closed 0, half-open 1, open 2.
func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Publish forwards to the wrapped bus unless the breaker is open.
func (r *Resilient) Publish(ctx context.Context, ev Event) error {
	start := time.Now()
	_, err := r.cb.Execute(func() (interface{}, error) {
		return nil, r.inner.Publish(ctx, ev)
	})

	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "rejected"
		err = fmt.Errorf("%w: %s circuit %s: %w", ErrBusUnavailable, r.transport, r.cb.State(), err)
	case errors.Is(err, ErrPayloadTooLarge):
		outcome = "too_large"
		metrics.BusPayloadRejected.WithLabelValues(r.transport).Inc()
	default:
		outcome = "failure"
	}
	metrics.RecordBusPublish(r.transport, outcome, time.Since(start))
	return err
}

// Subscribe forwards to the wrapped bus and counts active subscriptions
// and received events.
func (r *Resilient) Subscribe(ctx context.Context, room string, handler Handler) (Subscription, error) {
	received := metrics.BusReceived.WithLabelValues(r.transport)
	sub, err := r.inner.Subscribe(ctx, room, func(ctx context.Context, ev Event) {
		received.Inc()
		handler(ctx, ev)
	})
	if err != nil {
		return nil, err
	}

	gauge := metrics.BusSubscriptions.WithLabelValues(r.transport)
	gauge.Inc()
	return &countedSubscription{inner: sub, release: gauge.Dec}, nil
}

// State reports the breaker state for health checks.
func (r *Resilient) State() string {
	return r.cb.State().String()
}

// Transport returns the wrapped transport name.
func (r *Resilient) Transport() string {
	return r.transport
}

// Close closes the wrapped bus when it supports closing.
func (r *Resilient) Close() error {
	if c, ok := r.inner.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

type countedSubscription struct {
	inner   Subscription
	release func()
	once    sync.Once
}

func (s *countedSubscription) Unsubscribe() error {
	var err error
	first := false
	s.once.Do(func() {
		first = true
		s.release()
		err = s.inner.Unsubscribe()
	})
	if !first {
		return nil
	}
	return err
}
