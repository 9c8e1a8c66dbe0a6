// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/tomtom215/switchboard/internal/metrics"
)

// NewOrigin returns an identifier for this process, used to tag published
// events.
func NewOrigin() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "switchboard"
	}
	return host + "-" + uuid.NewString()[:8]
}

// watermillBus adapts a watermill publisher and subscriber pair to Bus.
// The memory and NATS transports are built on it.
type watermillBus struct {
	transport string
	pub       message.Publisher
	sub       message.Subscriber
	codec     Codec
	origin    string
	topic     func(room string) string
	logger    watermill.LoggerAdapter

	// lifetime is cancelled by Close and ends every subscription loop.
	lifetime context.Context
	cancel   context.CancelFunc
	loops    sync.WaitGroup

	closed    atomic.Bool
	closeOnce sync.Once
	closeWait time.Duration
}

func newWatermillBus(transport string, pub message.Publisher, sub message.Subscriber, codec Codec, origin string, topic func(string) string, logger watermill.LoggerAdapter) *watermillBus {
	if origin == "" {
		origin = NewOrigin()
	}
	if topic == nil {
		topic = func(room string) string { return room }
	}
	lifetime, cancel := context.WithCancel(context.Background())
	return &watermillBus{
		transport: transport,
		pub:       pub,
		sub:       sub,
		codec:     codec,
		origin:    origin,
		topic:     topic,
		logger:    logger,
		lifetime:  lifetime,
		cancel:    cancel,
		closeWait: 5 * time.Second,
	}
}

// stamp fills the fields a publisher may leave empty.
func stamp(ev Event, origin string) Event {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Origin == "" {
		ev.Origin = origin
	}
	if ev.PublishedAt.IsZero() {
		ev.PublishedAt = time.Now().UTC()
	}
	return ev
}

// Publish encodes ev and hands it to the transport.
func (b *watermillBus) Publish(ctx context.Context, ev Event) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ev = stamp(ev, b.origin)
	data, err := b.codec.Encode(ev)
	if err != nil {
		return err
	}

	msg := message.NewMessage(ev.ID, data)
	msg.SetContext(ctx)
	if err := b.pub.Publish(b.topic(ev.Room), msg); err != nil {
		return fmt.Errorf("%w: %s publish to %s: %w", ErrBusUnavailable, b.transport, ev.Room, err)
	}
	return nil
}

// Subscribe starts delivering events for room to handler. The subscription
// ends on Unsubscribe, when ctx is cancelled, or when the bus is closed.
func (b *watermillBus) Subscribe(ctx context.Context, room string, handler Handler) (Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	if _, _, err := ParseRoomKey(room); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.New("eventbus: nil handler")
	}

	subCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(b.lifetime, cancel)

	messages, err := b.sub.Subscribe(subCtx, b.topic(room))
	if err != nil {
		stop()
		cancel()
		return nil, fmt.Errorf("%w: %s subscribe to %s: %w", ErrBusUnavailable, b.transport, room, err)
	}

	s := &watermillSubscription{cancel: cancel, stop: stop}
	b.loops.Add(1)
	go func() {
		defer b.loops.Done()
		b.consume(subCtx, room, messages, handler)
	}()
	return s, nil
}

// consume runs handler for each message in order. Every message is acked
// so transports that wait for acknowledgement move on.
func (b *watermillBus) consume(ctx context.Context, room string, messages <-chan *message.Message, handler Handler) {
	for msg := range messages {
		if ctx.Err() == nil {
			ev, err := b.codec.Decode(msg.Payload)
			if err != nil {
				metrics.BusDecodeErrors.WithLabelValues(b.transport).Inc()
				b.logger.Debug("Dropping undecodable event", watermill.LogFields{
					"room":  room,
					"error": err.Error(),
				})
			} else {
				handler(ctx, ev)
			}
		}
		msg.Ack()
	}
}

// Close ends every subscription and closes the transport.
func (b *watermillBus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.cancel()

		done := make(chan struct{})
		go func() {
			b.loops.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(b.closeWait):
			b.logger.Info("Subscription loops still running at close", watermill.LogFields{"transport": b.transport})
		}

		if subErr := b.sub.Close(); subErr != nil {
			err = subErr
		}
		if any(b.pub) != any(b.sub) {
			if pubErr := b.pub.Close(); pubErr != nil && err == nil {
				err = pubErr
			}
		}
	})
	return err
}

type watermillSubscription struct {
	cancel context.CancelFunc
	stop   func() bool
	once   sync.Once
}

// Unsubscribe ends the subscription. It does not wait for an in-flight
// handler call, so it is safe to call from inside one.
func (s *watermillSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.stop()
		s.cancel()
	})
	return nil
}
