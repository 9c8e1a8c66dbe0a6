// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package eventbus

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/switchboard/internal/logging"
)

// NATSConfig configures the core NATS transport.
type NATSConfig struct {
	URL string

	// SubjectPrefix is prepended to room keys to form subjects.
	SubjectPrefix string

	MaxReconnects  int
	ReconnectWait  time.Duration
	CloseTimeout   time.Duration
	AckWaitTimeout time.Duration

	MaxPayloadBytes int
	Origin          string
}

func (c *NATSConfig) applyDefaults() {
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "switchboard"
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 10 * time.Second
	}
	if c.AckWaitTimeout <= 0 {
		c.AckWaitTimeout = 30 * time.Second
	}
}

// NATSBus fans events out over core NATS. Every process subscribed to a
// room receives each event; there is no queue group and no JetStream
// persistence.
type NATSBus struct {
	*watermillBus
}

// natsOptions returns the connection options shared by publisher and
// subscriber. Reconnect buffering is disabled so a publish during an
// outage fails instead of being replayed later out of order.
func natsOptions(cfg *NATSConfig, role string, logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.Name("switchboard-" + role),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.ReconnectBufSize(-1),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, watermill.LogFields{"role": role})
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"role": role,
				"url":  nc.ConnectedUrl(),
			})
		}),
		natsgo.ErrorHandler(func(nc *natsgo.Conn, sub *natsgo.Subscription, err error) {
			fields := watermill.LogFields{"role": role}
			if sub != nil {
				fields["subject"] = sub.Subject
			}
			logger.Error("NATS error", err, fields)
		}),
	}
}

// NewNATSBus connects a publisher and a subscriber to cfg.URL.
func NewNATSBus(cfg NATSConfig) (*NATSBus, error) {
	cfg.applyDefaults()
	logger := logging.NewWatermillAdapter("eventbus.nats")

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOptions(&cfg, "publisher", logger),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: create NATS publisher: %w", ErrBusUnavailable, err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: "",
		SubscribersCount: 1,
		AckWaitTimeout:   cfg.AckWaitTimeout,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOptions(&cfg, "subscriber", logger),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("%w: create NATS subscriber: %w", ErrBusUnavailable, err)
	}

	prefix := cfg.SubjectPrefix
	subject := func(room string) string { return prefix + "." + room }

	return &NATSBus{
		watermillBus: newWatermillBus("nats", pub, sub, NewCodec(cfg.MaxPayloadBytes), cfg.Origin, subject, logger),
	}, nil
}
