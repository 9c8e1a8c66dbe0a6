// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package config

import (
	"fmt"
	"strings"
)

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateDatabase,
		c.validateSecurity,
		c.validateBus,
		c.validateWebSocket,
		c.validateScheduler,
		c.validateRetention,
		c.validateLogging,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.Server.Timeout)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must be >= 0, got %d", c.Database.Threads)
	}
	return nil
}

// validateSecurity requires a signing secret long enough for HS256.
func (c *Config) validateSecurity() error {
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.Security.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.Security.TokenTTL)
	}
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs < 1 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1, got %d", c.Security.RateLimitReqs)
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.Security.RateLimitWindow)
		}
	}
	if c.IsProduction() && c.hasWildcardCORS() {
		return fmt.Errorf("CORS_ORIGINS=* is not allowed in production; set explicit origins")
	}
	return nil
}

func (c *Config) validateBus() error {
	switch c.Bus.Driver {
	case BusDriverMemory:
	case BusDriverNATS:
		if !c.Bus.NATS.Embedded && c.Bus.NATS.URL == "" {
			return fmt.Errorf("NATS_URL is required when BUS_DRIVER=nats and NATS_EMBEDDED=false")
		}
		if c.Bus.NATS.SubjectPrefix == "" || strings.ContainsAny(c.Bus.NATS.SubjectPrefix, " *>") {
			return fmt.Errorf("NATS_SUBJECT_PREFIX must be a non-empty subject token, got %q", c.Bus.NATS.SubjectPrefix)
		}
	case BusDriverRedis:
		if c.Bus.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required when BUS_DRIVER=redis")
		}
		if c.Bus.Redis.PoolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be at least 1, got %d", c.Bus.Redis.PoolSize)
		}
	default:
		return fmt.Errorf("BUS_DRIVER must be one of memory, nats, redis; got %q", c.Bus.Driver)
	}

	if c.Bus.MaxPayloadBytes < 1024 {
		return fmt.Errorf("BUS_MAX_PAYLOAD_BYTES must be at least 1024, got %d", c.Bus.MaxPayloadBytes)
	}
	if c.Bus.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("BUS_BREAKER_THRESHOLD must be at least 1, got %d", c.Bus.Breaker.FailureThreshold)
	}
	return nil
}

func (c *Config) validateWebSocket() error {
	ws := c.WebSocket
	if ws.WriteWait <= 0 || ws.PongWait <= 0 {
		return fmt.Errorf("WS_WRITE_WAIT and WS_PONG_WAIT must be positive")
	}
	if ws.PingPeriod() <= 0 {
		return fmt.Errorf("WS_PONG_WAIT too small to derive a ping period: %s", ws.PongWait)
	}
	if ws.MaxMessageSize < 512 {
		return fmt.Errorf("WS_MAX_MESSAGE_SIZE must be at least 512, got %d", ws.MaxMessageSize)
	}
	if ws.SendBuffer < 1 {
		return fmt.Errorf("WS_SEND_BUFFER must be at least 1, got %d", ws.SendBuffer)
	}
	if ws.InboundRate <= 0 || ws.InboundBurst < 1 {
		return fmt.Errorf("WS_INBOUND_RATE must be positive and WS_INBOUND_BURST at least 1")
	}
	if ws.MembershipRecheck < 0 {
		return fmt.Errorf("WS_MEMBERSHIP_RECHECK must not be negative, got %s", ws.MembershipRecheck)
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if !c.Scheduler.Enabled {
		return nil
	}
	if c.Scheduler.CheckInterval <= 0 {
		return fmt.Errorf("SCHEDULER_CHECK_INTERVAL must be positive, got %s", c.Scheduler.CheckInterval)
	}
	if c.Scheduler.MaxConcurrent < 1 {
		return fmt.Errorf("SCHEDULER_MAX_CONCURRENT must be at least 1, got %d", c.Scheduler.MaxConcurrent)
	}
	if c.Scheduler.MaxAttempts < 1 {
		return fmt.Errorf("SCHEDULER_MAX_ATTEMPTS must be at least 1, got %d", c.Scheduler.MaxAttempts)
	}
	return nil
}

func (c *Config) validateRetention() error {
	if c.Retention.NotificationMaxAge <= 0 || c.Retention.MessageMaxAge <= 0 {
		return fmt.Errorf("retention max ages must be positive")
	}
	for name, expr := range map[string]string{
		"RETENTION_NOTIFICATION_CRON": c.Retention.NotificationCleanupCron,
		"RETENTION_MESSAGE_CRON":      c.Retention.MessageCleanupCron,
	} {
		if len(strings.Fields(expr)) != 5 {
			return fmt.Errorf("%s must be a 5-field cron expression, got %q", name, expr)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
