// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

func TestWatermillAdapter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	adapter := NewWatermillAdapterWithLogger(zerolog.New(&buf))

	adapter.With(watermill.LogFields{"topic": "chat:1"}).Error("publish failed", errors.New("nats: connection closed"), watermill.LogFields{"attempt": 1})

	output := buf.String()
	for _, want := range []string{`"level":"error"`, `"topic":"chat:1"`, `"attempt":1`, "nats: connection closed", "publish failed"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output: %s", want, output)
		}
	}
}

func TestWatermillAdapter_InfoKeepsFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	adapter := NewWatermillAdapterWithLogger(zerolog.New(&buf))

	adapter.Info("subscribed", watermill.LogFields{"subject": "switchboard.chat:1"})

	if !strings.Contains(buf.String(), `"subject":"switchboard.chat:1"`) {
		t.Errorf("expected subject field, got: %s", buf.String())
	}
}
