// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey int

const (
	correlationIDKey contextKey = iota
	requestIDKey
	connectionIDKey
	loggerKey
)

// GenerateCorrelationID returns the first 8 characters of a random UUID.
func GenerateCorrelationID() string {
	return uuid.NewString()[:8]
}

// ContextWithCorrelationID tags ctx with a correlation id.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextWithNewCorrelationID tags ctx with a fresh correlation id.
func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	return ContextWithCorrelationID(ctx, GenerateCorrelationID())
}

// CorrelationIDFromContext returns the correlation id, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// ContextWithRequestID tags ctx with the HTTP request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ContextWithConnectionID tags ctx with a WebSocket connection id.
func ContextWithConnectionID(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, connectionIDKey, id)
}

// ConnectionIDFromContext returns the connection id stored in ctx.
func ConnectionIDFromContext(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(connectionIDKey).(uint64)
	return id, ok
}

// ContextWithLogger makes Ctx build on logger instead of the global one.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func ContextWithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext returns the logger stored in ctx, or the global logger.
func LoggerFromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return logger
	}
	return Logger()
}

// Ctx returns a logger carrying the correlation, request and connection ids
// found in ctx.
//
//	logging.Ctx(ctx).Info().Str("room", room).Msg("joined")
func Ctx(ctx context.Context) *zerolog.Logger {
	base := LoggerFromContext(ctx)
	fields := base.With()

	if id := CorrelationIDFromContext(ctx); id != "" {
		fields = fields.Str("correlation_id", id)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = fields.Str("request_id", id)
	}
	if id, ok := ConnectionIDFromContext(ctx); ok {
		fields = fields.Uint64("connection_id", id)
	}

	l := fields.Logger()
	return &l
}
