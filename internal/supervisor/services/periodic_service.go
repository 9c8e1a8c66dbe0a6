// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/switchboard/internal/logging"
)

// Task is one run of a periodic job.
type Task func(ctx context.Context) error

// PeriodicConfig configures a PeriodicService.
type PeriodicConfig struct {
	// Interval between runs. Default: 1h
	Interval time.Duration

	// Timeout bounds a single run. Default: Interval
	Timeout time.Duration

	// RunOnStart runs the task once before the first tick.
	RunOnStart bool
}

// PeriodicService runs a task on a ticker. A failed run is logged and
// retried on the next tick; it never crashes the service.
type PeriodicService struct {
	name   string
	task   Task
	config PeriodicConfig
	logger zerolog.Logger
}

// NewPeriodicService creates a service named name that runs task.
func NewPeriodicService(name string, task Task, cfg PeriodicConfig) *PeriodicService {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	return &PeriodicService{
		name:   name,
		task:   task,
		config: cfg,
		logger: logging.WithComponent(name),
	}
}

// Serve implements suture.Service.
func (s *PeriodicService) Serve(ctx context.Context) error {
	s.logger.Debug().Dur("interval", s.config.Interval).Msg("periodic service starting")

	if s.config.RunOnStart {
		s.run(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *PeriodicService) run(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	if err := s.task(runCtx); err != nil {
		if ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("periodic task failed")
		}
		return
	}
	s.logger.Debug().Dur("duration", time.Since(start)).Msg("periodic task complete")
}

func (s *PeriodicService) String() string {
	return s.name
}
