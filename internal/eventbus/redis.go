// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/metrics"
)

// RedisConfig configures the Redis pub/sub transport.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// ChannelPrefix is prepended to room keys to form channel names.
	ChannelPrefix string

	// ChannelSize buffers messages between the connection and dispatch.
	ChannelSize int

	MaxPayloadBytes int
	Origin          string
}

func (c *RedisConfig) applyDefaults() {
	if c.ChannelPrefix == "" {
		c.ChannelPrefix = "switchboard:"
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 32
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.ChannelSize <= 0 {
		c.ChannelSize = 1024
	}
	if c.Origin == "" {
		c.Origin = NewOrigin()
	}
}

type redisHandler struct {
	ctx     context.Context
	handler Handler
}

// RedisBus fans events out with Redis PUBLISH and SUBSCRIBE. One PubSub
// connection carries every room this process subscribes to, and a single
// reader goroutine dispatches messages in arrival order.
type RedisBus struct {
	rdb    *redis.Client
	pubsub *redis.PubSub
	codec  Codec
	cfg    RedisConfig

	mu       sync.Mutex
	handlers map[string]map[uint64]redisHandler
	nextID   uint64

	lifetime context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewRedisBus connects to Redis and starts the reader goroutine.
func NewRedisBus(ctx context.Context, cfg RedisConfig) (*RedisBus, error) {
	cfg.applyDefaults()

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		PoolTimeout:  time.Second,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   1,
	})

	pingCtx, cancelPing := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancelPing()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: redis ping %s: %w", ErrBusUnavailable, cfg.Addr, err)
	}

	lifetime, cancel := context.WithCancel(context.Background())
	b := &RedisBus{
		rdb:      rdb,
		pubsub:   rdb.Subscribe(lifetime),
		codec:    NewCodec(cfg.MaxPayloadBytes),
		cfg:      cfg,
		handlers: make(map[string]map[uint64]redisHandler),
		lifetime: lifetime,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go b.readLoop(b.pubsub.Channel(redis.WithChannelSize(cfg.ChannelSize)))

	logging.Info().Str("addr", cfg.Addr).Msg("Redis event bus connected")
	return b, nil
}

func (b *RedisBus) channel(room string) string {
	return b.cfg.ChannelPrefix + room
}

// Publish encodes ev and sends it with PUBLISH.
func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	if b.closed.Load() {
		return ErrClosed
	}

	ev = stamp(ev, b.cfg.Origin)
	data, err := b.codec.Encode(ev)
	if err != nil {
		return err
	}

	if err := b.rdb.Publish(ctx, b.channel(ev.Room), data).Err(); err != nil {
		return fmt.Errorf("%w: redis publish to %s: %w", ErrBusUnavailable, ev.Room, err)
	}
	return nil
}

// Subscribe adds handler for room. The Redis channel is subscribed when the
// first handler for it arrives.
func (b *RedisBus) Subscribe(ctx context.Context, room string, handler Handler) (Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	if _, _, err := ParseRoomKey(room); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.New("eventbus: nil handler")
	}

	channel := b.channel(room)
	subCtx, cancel := context.WithCancel(ctx)

	b.mu.Lock()
	set, ok := b.handlers[channel]
	if !ok {
		if err := b.pubsub.Subscribe(ctx, channel); err != nil {
			b.mu.Unlock()
			cancel()
			return nil, fmt.Errorf("%w: redis subscribe to %s: %w", ErrBusUnavailable, room, err)
		}
		set = make(map[uint64]redisHandler)
		b.handlers[channel] = set
	}
	b.nextID++
	id := b.nextID
	set[id] = redisHandler{ctx: subCtx, handler: handler}
	b.mu.Unlock()

	s := &redisSubscription{bus: b, channel: channel, id: id, cancel: cancel}
	context.AfterFunc(subCtx, func() { _ = s.Unsubscribe() })
	return s, nil
}

func (b *RedisBus) remove(channel string, id uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.handlers[channel]
	if !ok {
		return nil
	}
	delete(set, id)
	if len(set) > 0 {
		return nil
	}
	delete(b.handlers, channel)

	if b.closed.Load() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.WriteTimeout)
	defer cancel()
	if err := b.pubsub.Unsubscribe(ctx, channel); err != nil {
		return fmt.Errorf("redis unsubscribe %s: %w", channel, err)
	}
	return nil
}

func (b *RedisBus) readLoop(messages <-chan *redis.Message) {
	defer close(b.done)
	for msg := range messages {
		b.dispatch(msg.Channel, msg.Payload)
	}
}

func (b *RedisBus) dispatch(channel, payload string) {
	b.mu.Lock()
	set := b.handlers[channel]
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	targets := make([]redisHandler, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, set[id])
	}
	b.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	ev, err := b.codec.Decode([]byte(payload))
	if err != nil {
		metrics.BusDecodeErrors.WithLabelValues("redis").Inc()
		logging.Debug().Err(err).Str("channel", channel).Msg("Dropping undecodable event")
		return
	}
	for _, t := range targets {
		if t.ctx.Err() != nil {
			continue
		}
		t.handler(t.ctx, ev)
	}
}

// Ping checks the Redis connection.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Close unsubscribes everything and closes both connections.
func (b *RedisBus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.cancel()

		if psErr := b.pubsub.Close(); psErr != nil {
			err = psErr
		}
		select {
		case <-b.done:
		case <-time.After(5 * time.Second):
			logging.Warn().Msg("Redis reader did not stop within timeout")
		}
		if cErr := b.rdb.Close(); cErr != nil && err == nil {
			err = cErr
		}
	})
	return err
}

type redisSubscription struct {
	bus     *RedisBus
	channel string
	id      uint64
	cancel  context.CancelFunc
	once    sync.Once
	err     error
}

// Unsubscribe removes the handler. It is safe to call more than once.
func (s *redisSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		s.err = s.bus.remove(s.channel, s.id)
	})
	return s.err
}
