// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package eventbus

import (
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tomtom215/switchboard/internal/logging"
)

// MemoryConfig configures the in-process transport.
type MemoryConfig struct {
	// OutputBuffer is the per-subscription channel buffer.
	OutputBuffer    int64
	MaxPayloadBytes int
	Origin          string
}

// MemoryBus is a single-process Bus on watermill's gochannel. Each publish
// blocks until every subscriber of the room has handled the event.
type MemoryBus struct {
	*watermillBus
}

// NewMemoryBus creates an in-process bus.
func NewMemoryBus(cfg MemoryConfig) *MemoryBus {
	logger := logging.NewWatermillAdapter("eventbus.memory")

	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            cfg.OutputBuffer,
		Persistent:                     false,
		BlockPublishUntilSubscriberAck: true,
	}, logger)

	return &MemoryBus{
		watermillBus: newWatermillBus("memory", ch, ch, NewCodec(cfg.MaxPayloadBytes), cfg.Origin, nil, logger),
	}
}
