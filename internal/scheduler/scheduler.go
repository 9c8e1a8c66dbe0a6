// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

// Package scheduler runs the timed work of Switchboard: scheduled broadcasts
// stored in the database and the retention jobs that trim old records.
//
// The scheduler wakes every CheckInterval, collects what is due, and runs it
// with at most MaxConcurrent executions in flight. Each execution gets its
// own ExecutionTimeout and is retried with exponential backoff up to
// MaxAttempts times.
//
// A broadcast run is identified by the next_run_at it was due at. The
// dispatcher derives its deduplication key from that time, so a run that is
// retried, or repeated after a crash before next_run_at moved, never
// notifies a subscriber twice. next_run_at only advances after a successful
// run; missed runs are not replayed, the schedule resumes from now.
//
// Scheduler implements suture.Service.
package scheduler

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/switchboard/internal/config"
	"github.com/tomtom215/switchboard/internal/dispatch"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/metrics"
	"github.com/tomtom215/switchboard/internal/models"
)

// Job names used in logs and metrics.
const (
	JobBroadcast            = "broadcast"
	JobCleanupNotifications = "cleanup-old-notifications"
	JobCleanupMessages      = "cleanup-old-messages"
)

// Store defines the database operations required by the scheduler.
type Store interface {
	ListDueBroadcasts(ctx context.Context, now time.Time) ([]models.ScheduledBroadcast, error)
	CompleteBroadcastRun(ctx context.Context, id int64, ranAt time.Time, status string, nextRunAt *time.Time) error
	DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	SoftDeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Broadcaster sends one broadcast run. *dispatch.Dispatcher implements it.
type Broadcaster interface {
	Broadcast(ctx context.Context, in dispatch.BroadcastInput) (dispatch.BroadcastResult, error)
}

// Config holds configuration for the scheduler.
type Config struct {
	// Enabled controls whether the scheduler does any work.
	Enabled bool

	// CheckInterval is how often due work is collected (default: 30s).
	CheckInterval time.Duration

	// MaxConcurrent bounds the executions in flight (default: 2).
	MaxConcurrent int

	// ExecutionTimeout bounds one execution including its retries (default: 5m).
	ExecutionTimeout time.Duration

	// MaxAttempts is the number of tries per execution (default: 3).
	MaxAttempts int

	// RetryBackoff is the delay before the second attempt; it doubles
	// after each failure, capped at maxBackoff (default: 1s).
	RetryBackoff time.Duration

	NotificationMaxAge      time.Duration
	MessageMaxAge           time.Duration
	NotificationCleanupCron string
	MessageCleanupCron      string
}

const maxBackoff = time.Minute

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:                 true,
		CheckInterval:           30 * time.Second,
		MaxConcurrent:           2,
		ExecutionTimeout:        5 * time.Minute,
		MaxAttempts:             3,
		RetryBackoff:            time.Second,
		NotificationMaxAge:      30 * 24 * time.Hour,
		MessageMaxAge:           365 * 24 * time.Hour,
		NotificationCleanupCron: "0 3 * * *",
		MessageCleanupCron:      "30 3 * * *",
	}
}

// ConfigFrom builds a Config from the application configuration.
func ConfigFrom(sc *config.SchedulerConfig, rc *config.RetentionConfig) Config {
	return Config{
		Enabled:                 sc.Enabled,
		CheckInterval:           sc.CheckInterval,
		MaxConcurrent:           sc.MaxConcurrent,
		ExecutionTimeout:        sc.ExecutionTimeout,
		MaxAttempts:             sc.MaxAttempts,
		RetryBackoff:            sc.RetryBackoff,
		NotificationMaxAge:      rc.NotificationMaxAge,
		MessageMaxAge:           rc.MessageMaxAge,
		NotificationCleanupCron: rc.NotificationCleanupCron,
		MessageCleanupCron:      rc.MessageCleanupCron,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.CheckInterval <= 0 {
		c.CheckInterval = d.CheckInterval
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.ExecutionTimeout <= 0 {
		c.ExecutionTimeout = d.ExecutionTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.NotificationMaxAge <= 0 {
		c.NotificationMaxAge = d.NotificationMaxAge
	}
	if c.MessageMaxAge <= 0 {
		c.MessageMaxAge = d.MessageMaxAge
	}
	if c.NotificationCleanupCron == "" {
		c.NotificationCleanupCron = d.NotificationCleanupCron
	}
	if c.MessageCleanupCron == "" {
		c.MessageCleanupCron = d.MessageCleanupCron
	}
}

// maintenanceJob is an in-process job on a cron schedule. Its next run is
// kept in memory and computed from the time the scheduler starts.
type maintenanceJob struct {
	name     string
	schedule *Schedule
	run      func(ctx context.Context, now time.Time) error
	next     time.Time
}

// Scheduler runs scheduled broadcasts and maintenance jobs.
type Scheduler struct {
	store       Store
	broadcaster Broadcaster
	config      Config
	logger      zerolog.Logger

	jobs []*maintenanceJob
	now  func() time.Time

	// sleep waits between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	running bool
}

// New creates a scheduler. It fails if a maintenance cron expression does
// not parse.
func New(store Store, broadcaster Broadcaster, cfg Config) (*Scheduler, error) {
	cfg.applyDefaults()

	s := &Scheduler{
		store:       store,
		broadcaster: broadcaster,
		config:      cfg,
		logger:      logging.WithComponent("scheduler"),
		now:         func() time.Time { return time.Now().UTC() },
		sleep:       sleepContext,
	}

	jobs := []struct {
		name string
		expr string
		run  func(ctx context.Context, now time.Time) error
	}{
		{JobCleanupNotifications, cfg.NotificationCleanupCron, s.cleanupNotifications},
		{JobCleanupMessages, cfg.MessageCleanupCron, s.cleanupMessages},
	}
	for _, j := range jobs {
		sched, err := ParseSchedule(j.expr)
		if err != nil {
			return nil, fmt.Errorf("%s schedule: %w", j.name, err)
		}
		s.jobs = append(s.jobs, &maintenanceJob{name: j.name, schedule: sched, run: j.run})
	}
	return s, nil
}

// String implements fmt.Stringer for suture logging.
func (s *Scheduler) String() string { return "scheduler" }

// Serve implements suture.Service. It runs until ctx is canceled.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if !s.config.Enabled {
		s.logger.Info().Msg("Scheduler disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	s.planJobs(s.now())
	s.logger.Info().
		Dur("check_interval", s.config.CheckInterval).
		Int("max_concurrent", s.config.MaxConcurrent).
		Int("max_attempts", s.config.MaxAttempts).
		Msg("Starting scheduler")

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	s.RunDue(ctx)
	for {
		select {
		case <-ticker.C:
			s.RunDue(ctx)
		case <-ctx.Done():
			s.logger.Info().Msg("Scheduler stopped")
			return ctx.Err()
		}
	}
}

// IsRunning reports whether Serve is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// planJobs sets each maintenance job's first run after now.
func (s *Scheduler) planJobs(now time.Time) {
	for _, j := range s.jobs {
		next, err := j.schedule.Next(now, time.UTC)
		if err != nil {
			s.logger.Error().Err(err).Str("job", j.name).Msg("Maintenance job will not run")
			j.next = time.Time{}
			continue
		}
		j.next = next
	}
}

// RunDue executes everything due at the current time and waits for it to
// finish.
func (s *Scheduler) RunDue(ctx context.Context) {
	now := s.now()

	var tasks []func(context.Context)
	for _, j := range s.jobs {
		if j.next.IsZero() || now.Before(j.next) {
			continue
		}
		if next, err := j.schedule.Next(now, time.UTC); err == nil {
			j.next = next
		} else {
			j.next = time.Time{}
		}
		tasks = append(tasks, func(ctx context.Context) { s.runJob(ctx, j, now) })
	}

	broadcasts, err := s.store.ListDueBroadcasts(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list due broadcasts")
	}
	for i := range broadcasts {
		b := broadcasts[i]
		tasks = append(tasks, func(ctx context.Context) { s.runBroadcast(ctx, &b, now) })
	}

	if len(tasks) == 0 {
		s.logger.Debug().Msg("Nothing due")
		return
	}

	sem := make(chan struct{}, s.config.MaxConcurrent)
	var wg sync.WaitGroup
	for _, task := range tasks {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}
		wg.Add(1)
		go func(task func(context.Context)) {
			defer wg.Done()
			defer func() { <-sem }()

			execCtx, cancel := context.WithTimeout(ctx, s.config.ExecutionTimeout)
			defer cancel()
			task(execCtx)
		}(task)
	}
	wg.Wait()
}

// runBroadcast executes one due broadcast and records the outcome.
func (s *Scheduler) runBroadcast(ctx context.Context, b *models.ScheduledBroadcast, now time.Time) {
	logger := s.logger.With().
		Int64("broadcast_id", b.ID).
		Str("broadcast_name", b.Name).
		Logger()

	runAt := *b.NextRunAt
	start := time.Now()
	var result dispatch.BroadcastResult
	err := s.retry(ctx, JobBroadcast, func(ctx context.Context) error {
		var err error
		result, err = s.broadcaster.Broadcast(ctx, dispatch.BroadcastInput{
			BroadcastID: b.ID,
			ActorID:     b.ActorID,
			Title:       b.Title,
			Body:        b.Body,
			RunAt:       runAt,
		})
		return err
	})
	metrics.RecordSchedulerRun(JobBroadcast, time.Since(start), err)

	status := models.BroadcastStatusSuccess
	next := b.NextRunAt
	if err != nil {
		status = models.BroadcastStatusFailed
		logger.Error().Err(err).Time("run_at", runAt).Msg("Broadcast failed; it will be retried on a later check")
	} else {
		computed, nerr := NextRun(b.CronExpr, now, b.Timezone)
		if nerr != nil {
			logger.Error().Err(nerr).Str("cron", b.CronExpr).Msg("Failed to calculate next run time; broadcast will not run again")
			next = nil
		} else {
			next = &computed
		}
		logger.Info().
			Str("dedup_key", result.DedupKey).
			Int("created", result.Created).
			Int("pushed", result.Pushed).
			Int("push_failed", result.PushFailed).
			Dur("duration", time.Since(start)).
			Msg("Broadcast executed")
	}

	// Recording the outcome must not be cut short by an exhausted
	// execution timeout.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.store.CompleteBroadcastRun(recordCtx, b.ID, now, status, next); err != nil {
		logger.Error().Err(err).Msg("Failed to record broadcast run")
	}
}

func (s *Scheduler) runJob(ctx context.Context, j *maintenanceJob, now time.Time) {
	start := time.Now()
	err := s.retry(ctx, j.name, func(ctx context.Context) error {
		return j.run(ctx, now)
	})
	metrics.RecordSchedulerRun(j.name, time.Since(start), err)
	if err != nil {
		s.logger.Error().Err(err).Str("job", j.name).Msg("Maintenance job failed")
	}
}

func (s *Scheduler) cleanupNotifications(ctx context.Context, now time.Time) error {
	n, err := s.store.DeleteReadNotificationsBefore(ctx, now.Add(-s.config.NotificationMaxAge))
	if err != nil {
		return err
	}
	s.logger.Info().Int64("deleted", n).Msg("Deleted old read notifications")
	return nil
}

func (s *Scheduler) cleanupMessages(ctx context.Context, now time.Time) error {
	n, err := s.store.SoftDeleteMessagesBefore(ctx, now.Add(-s.config.MessageMaxAge))
	if err != nil {
		return err
	}
	s.logger.Info().Int64("deleted", n).Msg("Soft-deleted old messages")
	return nil
}

// retry runs fn up to MaxAttempts times with exponential backoff between
// attempts. It stops early when ctx is done.
func (s *Scheduler) retry(ctx context.Context, job string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < s.config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == s.config.MaxAttempts-1 {
			break
		}
		delay := s.backoff(attempt)
		s.logger.Warn().Err(err).
			Str("job", job).
			Int("attempt", attempt+1).
			Int("max_attempts", s.config.MaxAttempts).
			Dur("delay", delay).
			Msg("Retry attempt")
		if serr := s.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return fmt.Errorf("%s: max retry attempts reached: %w", job, err)
}

// backoff returns RetryBackoff * 2^attempt, capped at maxBackoff.
func (s *Scheduler) backoff(attempt int) time.Duration {
	if attempt > 30 {
		return maxBackoff
	}
	d := time.Duration(float64(s.config.RetryBackoff) * math.Pow(2, float64(attempt)))
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
