// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/switchboard/config.yaml",
	"/etc/switchboard/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config populated with defaults. Defaults are loaded
// first and then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			Host:        "0.0.0.0",
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Database: DatabaseConfig{
			Path:      "/data/switchboard.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Security: SecurityConfig{
			JWTSecret:         "",
			TokenTTL:          time.Hour,
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
			RevocationPath:    "",
			PolicyPath:        "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Bus: BusConfig{
			Driver:          BusDriverMemory,
			MaxPayloadBytes: 64 << 10, // 64KiB
			Breaker: BreakerConfig{
				MaxRequests:      1,
				Interval:         time.Minute,
				Timeout:          10 * time.Second,
				FailureThreshold: 5,
			},
			NATS: NATSConfig{
				URL:           "nats://127.0.0.1:4222",
				Embedded:      true,
				EmbeddedHost:  "127.0.0.1",
				EmbeddedPort:  4222,
				SubjectPrefix: "switchboard",
				MaxReconnects: -1, // reconnect forever
				ReconnectWait: 2 * time.Second,
				CloseTimeout:  10 * time.Second,
			},
			Redis: RedisConfig{
				Addr:          "127.0.0.1:6379",
				DB:            0,
				PoolSize:      20,
				MinIdleConns:  2,
				DialTimeout:   5 * time.Second,
				ReadTimeout:   3 * time.Second,
				WriteTimeout:  3 * time.Second,
				ChannelPrefix: "switchboard",
			},
		},
		WebSocket: WebSocketConfig{
			WriteWait:         10 * time.Second,
			PongWait:          60 * time.Second,
			MaxMessageSize:    8 << 10, // 8KiB
			SendBuffer:        256,
			InboundRate:       10,
			InboundBurst:      20,
			HandshakeTimeout:  10 * time.Second,
			MembershipRecheck: 30 * time.Second,
			NotifyMembers:     true,
		},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			CheckInterval:    30 * time.Second,
			MaxConcurrent:    2,
			ExecutionTimeout: 5 * time.Minute,
			MaxAttempts:      3,
			RetryBackoff:     2 * time.Second,
		},
		Retention: RetentionConfig{
			NotificationMaxAge:      30 * 24 * time.Hour,
			MessageMaxAge:           365 * 24 * time.Hour,
			NotificationCleanupCron: "0 3 * * *",
			MessageCleanupCron:      "30 3 * * *",
		},
	}
}

// LoadWithKoanf loads configuration with layered sources:
//  1. Defaults from defaultConfig
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
//
// The result is validated before it is returned.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are parsed as comma-separated lists when they arrive as strings.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated env values into slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to koanf paths.
// Unmapped variables are ignored so unrelated environment does not leak in.
var envMappings = map[string]string{
	// Server
	"http_port":    "server.port",
	"http_host":    "server.host",
	"http_timeout": "server.timeout",
	"environment":  "server.environment",

	// Database
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	// Security
	"jwt_secret":          "security.jwt_secret",
	"token_ttl":           "security.token_ttl",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",
	"revocation_path":     "security.revocation_path",
	"authz_policy_path":   "security.policy_path",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Bus
	"bus_driver":            "bus.driver",
	"bus_max_payload_bytes": "bus.max_payload_bytes",
	"bus_breaker_threshold": "bus.breaker.failure_threshold",
	"bus_breaker_timeout":   "bus.breaker.timeout",
	"nats_url":              "bus.nats.url",
	"nats_embedded":         "bus.nats.embedded",
	"nats_embedded_host":    "bus.nats.embedded_host",
	"nats_embedded_port":    "bus.nats.embedded_port",
	"nats_subject_prefix":   "bus.nats.subject_prefix",
	"nats_max_reconnects":   "bus.nats.max_reconnects",
	"nats_reconnect_wait":   "bus.nats.reconnect_wait",
	"redis_addr":            "bus.redis.addr",
	"redis_password":        "bus.redis.password",
	"redis_db":              "bus.redis.db",
	"redis_pool_size":       "bus.redis.pool_size",
	"redis_channel_prefix":  "bus.redis.channel_prefix",

	// WebSocket
	"ws_write_wait":         "websocket.write_wait",
	"ws_pong_wait":          "websocket.pong_wait",
	"ws_max_message_size":   "websocket.max_message_size",
	"ws_send_buffer":        "websocket.send_buffer",
	"ws_inbound_rate":       "websocket.inbound_rate",
	"ws_inbound_burst":      "websocket.inbound_burst",
	"ws_handshake_timeout":  "websocket.handshake_timeout",
	"ws_notify_members":     "websocket.notify_members",
	"ws_membership_recheck": "websocket.membership_recheck",

	// Scheduler
	"scheduler_enabled":           "scheduler.enabled",
	"scheduler_check_interval":    "scheduler.check_interval",
	"scheduler_max_concurrent":    "scheduler.max_concurrent",
	"scheduler_execution_timeout": "scheduler.execution_timeout",
	"scheduler_max_attempts":      "scheduler.max_attempts",
	"scheduler_retry_backoff":     "scheduler.retry_backoff",

	// Retention
	"retention_notification_max_age": "retention.notification_max_age",
	"retention_message_max_age":      "retention.message_max_age",
	"retention_notification_cron":    "retention.notification_cleanup_cron",
	"retention_message_cron":         "retention.message_cleanup_cron",
}

// envTransformFunc maps an environment variable name to a koanf path.
// It returns "" for variables that are not part of the configuration.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - BUS_DRIVER -> bus.driver
//   - NATS_URL -> bus.nats.url
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
