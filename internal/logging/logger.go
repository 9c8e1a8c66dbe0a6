// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

// Package logging provides the process-wide zerolog logger for Switchboard.
//
// Every component logs through this package so that connection handlers, bus
// transports, the supervisor tree and HTTP middleware share one output stream
// and one level. JSON output is intended for production, console output for
// development.
//
// Usage:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("room", room).Msg("room subscribed")
//	logging.Ctx(ctx).Warn().Err(err).Msg("publish failed")
//
// Always terminate event chains with Msg or Send; an unterminated chain is
// never written.
package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error, fatal, panic, disabled.
	Level string

	// Format is json or console.
	Format string

	// Caller adds file:line to every entry.
	Caller bool

	Timestamp bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns JSON at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    "json",
		Timestamp: true,
		Output:    os.Stderr,
	}
}

// current holds the process logger. Entries are built from a copy, so a
// concurrent Init never races with an event chain in flight.
var current atomic.Pointer[zerolog.Logger]

//nolint:gochecknoinits // logging must work before Init is called
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "time"
	zerolog.MessageFieldName = "message"
	Init(DefaultConfig())
}

// Init replaces the process logger. Later calls reconfigure it.
func Init(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(out).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	l := ctx.Logger()
	current.Store(&l)
}

// parseLevel accepts zerolog level names plus "warning". Anything else is info.
func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		return zerolog.WarnLevel
	}
	if level == "" {
		return zerolog.InfoLevel
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// Logger returns a copy of the process logger.
func Logger() zerolog.Logger {
	return *current.Load()
}

// SetLogger replaces the process logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func SetLogger(l zerolog.Logger) {
	current.Store(&l)
}

// With starts a child logger context.
func With() zerolog.Context {
	return current.Load().With()
}

// WithComponent returns a child logger tagged with a component name.
//
//	busLog := logging.WithComponent("eventbus")
//	busLog.Info().Str("room", room).Msg("subscribed")
func WithComponent(component string) zerolog.Logger {
	return current.Load().With().Str("component", component).Logger()
}

func Trace() *zerolog.Event { return current.Load().Trace() }
func Debug() *zerolog.Event { return current.Load().Debug() }
func Info() *zerolog.Event  { return current.Load().Info() }
func Warn() *zerolog.Event  { return current.Load().Warn() }
func Error() *zerolog.Event { return current.Load().Error() }

// Fatal logs and then calls os.Exit(1).
func Fatal() *zerolog.Event { return current.Load().Fatal() }

// Err starts an error-level entry carrying err. A nil err logs at info.
func Err(err error) *zerolog.Event { return current.Load().Err(err) }

// GetLevel returns the global minimum level.
func GetLevel() zerolog.Level {
	return zerolog.GlobalLevel()
}

// SetLevelString changes the global minimum level.
func SetLevelString(level string) {
	zerolog.SetGlobalLevel(parseLevel(level))
}

// NewTestLogger creates a JSON logger that writes to w.
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
