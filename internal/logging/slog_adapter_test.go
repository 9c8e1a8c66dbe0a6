// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSlogHandler_Handle(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	slogger := slog.New(NewSlogHandlerWithLogger(zerolog.New(&buf)))

	slogger.Warn("service restarted", "service", "websocket-hub", "attempt", 2, "backoff", time.Second)

	output := buf.String()
	for _, want := range []string{`"level":"warn"`, `"service":"websocket-hub"`, `"attempt":2`, "service restarted"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output: %s", want, output)
		}
	}
}

func TestSlogHandler_Enabled(t *testing.T) {
	t.Parallel()

	handler := NewSlogHandlerWithLogger(zerolog.New(&bytes.Buffer{}).Level(zerolog.WarnLevel))

	if handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled for a warn level logger")
	}
	if !handler.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled for a warn level logger")
	}
}

func TestSlogHandler_WithGroupAndAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := NewSlogHandlerWithLogger(zerolog.New(&buf))
	slogger := slog.New(base.WithAttrs([]slog.Attr{slog.String("tree", "root")}).WithGroup("supervisor"))

	slogger.Info("event", "name", "api")

	output := buf.String()
	// Attributes added before the group stay outside it.
	if !strings.Contains(output, `"tree":"root"`) || strings.Contains(output, `"supervisor.tree"`) {
		t.Errorf("expected ungrouped pre-configured attr, got: %s", output)
	}
	if !strings.Contains(output, `"supervisor.name":"api"`) {
		t.Errorf("expected grouped record attr, got: %s", output)
	}
}

func TestAddAttr_NestedGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	slogger := slog.New(NewSlogHandlerWithLogger(zerolog.New(&buf)))

	slogger.Info("nested", slog.Group("outer", slog.Group("inner", slog.Bool("ok", true))))

	if !strings.Contains(buf.String(), `"outer.inner.ok":true`) {
		t.Errorf("expected nested group key, got: %s", buf.String())
	}
}

func TestSlogHandler_ErrorAttr(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	slog.New(NewSlogHandlerWithLogger(zerolog.New(&buf))).Error("service failed", "err", errTest)

	if !strings.Contains(buf.String(), `"err":"boom"`) {
		t.Errorf("expected error rendered as its message, got: %s", buf.String())
	}
}

func TestSlogToZerologLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   slog.Level
		want zerolog.Level
	}{
		{slog.LevelDebug - 4, zerolog.TraceLevel},
		{slog.LevelDebug, zerolog.DebugLevel},
		{slog.LevelInfo, zerolog.InfoLevel},
		{slog.LevelWarn, zerolog.WarnLevel},
		{slog.LevelError, zerolog.ErrorLevel},
		{slog.LevelError + 4, zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		if got := slogToZerologLevel(tt.in); got != tt.want {
			t.Errorf("slogToZerologLevel(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
