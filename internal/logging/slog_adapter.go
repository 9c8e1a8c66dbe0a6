// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// SlogHandler is a slog.Handler writing through zerolog, for libraries that
// take a *slog.Logger (sutureslog). Attributes from WithAttrs are rendered
// onto the logger once; groups become dotted key prefixes.
type SlogHandler struct {
	logger zerolog.Logger
	prefix string
}

// NewSlogHandler wraps the global logger.
func NewSlogHandler() *SlogHandler {
	return &SlogHandler{logger: Logger()}
}

// NewSlogHandlerWithLogger wraps a specific zerolog logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSlogHandlerWithLogger(logger zerolog.Logger) *SlogHandler {
	return &SlogHandler{logger: logger}
}

// NewSlogLogger returns an slog.Logger over the global logger.
//
//	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), cfg)
func NewSlogLogger() *slog.Logger {
	return slog.New(NewSlogHandler())
}

// Enabled implements slog.Handler.
func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	l := slogToZerologLevel(level)
	return l >= h.logger.GetLevel() && l >= zerolog.GlobalLevel()
}

// Handle implements slog.Handler.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler interface
func (h *SlogHandler) Handle(_ context.Context, record slog.Record) error {
	event := h.logger.WithLevel(slogToZerologLevel(record.Level))
	record.Attrs(func(attr slog.Attr) bool {
		writeAttr(event, h.prefix, attr)
		return true
	})
	event.Msg(record.Message)
	return nil
}

// WithAttrs implements slog.Handler.
func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	fields := map[string]interface{}{}
	for _, attr := range attrs {
		collectAttr(fields, h.prefix, attr)
	}
	return &SlogHandler{logger: h.logger.With().Fields(fields).Logger(), prefix: h.prefix}
}

// WithGroup implements slog.Handler.
func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &SlogHandler{logger: h.logger, prefix: h.prefix + name + "."}
}

// writeAttr adds attr to event under prefix. Nested groups extend the prefix.
func writeAttr(event *zerolog.Event, prefix string, attr slog.Attr) {
	v := attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}
	key := prefix + attr.Key

	switch v.Kind() {
	case slog.KindGroup:
		inner := prefix
		if attr.Key != "" {
			inner = key + "."
		}
		for _, ga := range v.Group() {
			writeAttr(event, inner, ga)
		}
	case slog.KindString:
		event.Str(key, v.String())
	case slog.KindInt64:
		event.Int64(key, v.Int64())
	case slog.KindUint64:
		event.Uint64(key, v.Uint64())
	case slog.KindFloat64:
		event.Float64(key, v.Float64())
	case slog.KindBool:
		event.Bool(key, v.Bool())
	case slog.KindDuration:
		event.Dur(key, v.Duration())
	case slog.KindTime:
		event.Time(key, v.Time())
	default:
		if err, ok := v.Any().(error); ok {
			event.AnErr(key, err)
			return
		}
		event.Interface(key, v.Any())
	}
}

// collectAttr flattens attr into fields the way writeAttr names them.
func collectAttr(fields map[string]interface{}, prefix string, attr slog.Attr) {
	v := attr.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		inner := prefix
		if attr.Key != "" {
			inner = prefix + attr.Key + "."
		}
		for _, ga := range v.Group() {
			collectAttr(fields, inner, ga)
		}
		return
	}
	if attr.Key == "" {
		return
	}
	fields[prefix+attr.Key] = v.Any()
}

// slogToZerologLevel maps slog levels onto zerolog's, rounding down.
func slogToZerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level < slog.LevelDebug:
		return zerolog.TraceLevel
	case level < slog.LevelInfo:
		return zerolog.DebugLevel
	case level < slog.LevelWarn:
		return zerolog.InfoLevel
	case level < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
