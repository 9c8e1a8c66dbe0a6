// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

// Package config loads and validates Switchboard configuration.
//
// Configuration is layered with Koanf v2 (highest priority wins):
//   - Environment variables (explicit mapping table in koanf.go)
//   - Config file (config.yaml, or the path in CONFIG_PATH)
//   - Built-in defaults
package config

import (
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
	Bus       BusConfig       `koanf:"bus"`
	WebSocket WebSocketConfig `koanf:"websocket"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Retention RetentionConfig `koanf:"retention"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// DatabaseConfig holds DuckDB settings for the durable store.
type DatabaseConfig struct {
	// Path is the database file. ":memory:" opens an in-memory database.
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	// Threads limits DuckDB worker threads. 0 lets DuckDB decide.
	Threads int `koanf:"threads"`
}

// SecurityConfig holds credential validation and HTTP protection settings.
type SecurityConfig struct {
	JWTSecret         string        `koanf:"jwt_secret"`
	TokenTTL          time.Duration `koanf:"token_ttl"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`

	// RevocationPath is the BadgerDB directory for revoked token ids.
	// Empty keeps the revocation list in memory.
	RevocationPath string `koanf:"revocation_path"`

	// PolicyPath is a Casbin CSV policy replacing the embedded one.
	PolicyPath string `koanf:"policy_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Bus drivers.
const (
	BusDriverMemory = "memory"
	BusDriverNATS   = "nats"
	BusDriverRedis  = "redis"
)

// BusConfig selects and tunes the cross-process event bus.
type BusConfig struct {
	// Driver is one of memory, nats, redis.
	Driver string `koanf:"driver"`

	// MaxPayloadBytes bounds the encoded size of a single event.
	MaxPayloadBytes int `koanf:"max_payload_bytes"`

	Breaker BreakerConfig `koanf:"breaker"`
	NATS    NATSConfig    `koanf:"nats"`
	Redis   RedisConfig   `koanf:"redis"`
}

// BreakerConfig tunes the publish circuit breaker.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32 `koanf:"max_requests"`
	// Interval is the cyclic period of the closed state for clearing counts.
	Interval time.Duration `koanf:"interval"`
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration `koanf:"timeout"`
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32 `koanf:"failure_threshold"`
}

// NATSConfig holds core NATS settings for the nats bus driver.
type NATSConfig struct {
	URL string `koanf:"url"`

	// Embedded starts an in-process nats-server and connects to it.
	Embedded     bool   `koanf:"embedded"`
	EmbeddedHost string `koanf:"embedded_host"`
	EmbeddedPort int    `koanf:"embedded_port"`

	SubjectPrefix string        `koanf:"subject_prefix"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
	CloseTimeout  time.Duration `koanf:"close_timeout"`
}

// RedisConfig holds go-redis settings for the redis bus driver.
type RedisConfig struct {
	Addr          string        `koanf:"addr"`
	Password      string        `koanf:"password"`
	DB            int           `koanf:"db"`
	PoolSize      int           `koanf:"pool_size"`
	MinIdleConns  int           `koanf:"min_idle_conns"`
	DialTimeout   time.Duration `koanf:"dial_timeout"`
	ReadTimeout   time.Duration `koanf:"read_timeout"`
	WriteTimeout  time.Duration `koanf:"write_timeout"`
	ChannelPrefix string        `koanf:"channel_prefix"`
}

// WebSocketConfig tunes per-connection behaviour.
type WebSocketConfig struct {
	WriteWait        time.Duration `koanf:"write_wait"`
	PongWait         time.Duration `koanf:"pong_wait"`
	MaxMessageSize   int64         `koanf:"max_message_size"`
	SendBuffer       int           `koanf:"send_buffer"`
	InboundRate      float64       `koanf:"inbound_rate"`
	InboundBurst     int           `koanf:"inbound_burst"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`

	// MembershipRecheck is how often joined chat connections are checked
	// against the store, catching evictions published while the bus was
	// down. Zero disables the sweep.
	MembershipRecheck time.Duration `koanf:"membership_recheck"`

	// NotifyMembers creates a message notification for every other room
	// member when a chat message is sent.
	NotifyMembers bool `koanf:"notify_members"`
}

// PingPeriod returns the heartbeat interval, kept below PongWait.
func (w WebSocketConfig) PingPeriod() time.Duration {
	return (w.PongWait * 9) / 10
}

// SchedulerConfig tunes the scheduled broadcast and maintenance runner.
type SchedulerConfig struct {
	Enabled          bool          `koanf:"enabled"`
	CheckInterval    time.Duration `koanf:"check_interval"`
	MaxConcurrent    int           `koanf:"max_concurrent"`
	ExecutionTimeout time.Duration `koanf:"execution_timeout"`
	MaxAttempts      int           `koanf:"max_attempts"`
	RetryBackoff     time.Duration `koanf:"retry_backoff"`
}

// RetentionConfig holds cleanup policy for durable records.
type RetentionConfig struct {
	NotificationMaxAge      time.Duration `koanf:"notification_max_age"`
	MessageMaxAge           time.Duration `koanf:"message_max_age"`
	NotificationCleanupCron string        `koanf:"notification_cleanup_cron"`
	MessageCleanupCron      string        `koanf:"message_cleanup_cron"`
}

// Load reads configuration from defaults, an optional config file and
// environment variables. See LoadWithKoanf.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

// hasWildcardCORS reports whether CORS allows any origin.
func (c *Config) hasWildcardCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}
