// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package eventbus

import (
	"context"
	"fmt"

	"github.com/tomtom215/switchboard/internal/config"
)

// Transport is the result of Open: the decorated bus and, for the nats
// driver with embedded set, the in-process server it connects to.
type Transport struct {
	Bus      *Resilient
	Embedded *EmbeddedServer
}

// Open builds the transport selected by cfg.Driver and wraps it in Resilient.
func Open(ctx context.Context, cfg *config.BusConfig, origin string) (*Transport, error) {
	breaker := BreakerConfig{
		MaxRequests:      cfg.Breaker.MaxRequests,
		Interval:         cfg.Breaker.Interval,
		Timeout:          cfg.Breaker.Timeout,
		FailureThreshold: cfg.Breaker.FailureThreshold,
	}

	switch cfg.Driver {
	case "", config.BusDriverMemory:
		bus := NewMemoryBus(MemoryConfig{MaxPayloadBytes: cfg.MaxPayloadBytes, Origin: origin})
		return &Transport{Bus: NewResilient(bus, config.BusDriverMemory, breaker)}, nil

	case config.BusDriverNATS:
		t := &Transport{}
		url := cfg.NATS.URL
		if cfg.NATS.Embedded {
			srv, err := NewEmbeddedServer(EmbeddedServerConfig{
				Host:            cfg.NATS.EmbeddedHost,
				Port:            cfg.NATS.EmbeddedPort,
				MaxPayloadBytes: int32(cfg.MaxPayloadBytes * 2),
			})
			if err != nil {
				return nil, fmt.Errorf("start embedded NATS: %w", err)
			}
			t.Embedded = srv
			url = srv.ClientURL()
		}
		bus, err := NewNATSBus(NATSConfig{
			URL:             url,
			SubjectPrefix:   cfg.NATS.SubjectPrefix,
			MaxReconnects:   cfg.NATS.MaxReconnects,
			ReconnectWait:   cfg.NATS.ReconnectWait,
			CloseTimeout:    cfg.NATS.CloseTimeout,
			MaxPayloadBytes: cfg.MaxPayloadBytes,
			Origin:          origin,
		})
		if err != nil {
			if t.Embedded != nil {
				_ = t.Embedded.Shutdown(ctx)
			}
			return nil, err
		}
		t.Bus = NewResilient(bus, config.BusDriverNATS, breaker)
		return t, nil

	case config.BusDriverRedis:
		bus, err := NewRedisBus(ctx, RedisConfig{
			Addr:            cfg.Redis.Addr,
			Password:        cfg.Redis.Password,
			DB:              cfg.Redis.DB,
			PoolSize:        cfg.Redis.PoolSize,
			MinIdleConns:    cfg.Redis.MinIdleConns,
			DialTimeout:     cfg.Redis.DialTimeout,
			ReadTimeout:     cfg.Redis.ReadTimeout,
			WriteTimeout:    cfg.Redis.WriteTimeout,
			ChannelPrefix:   cfg.Redis.ChannelPrefix,
			MaxPayloadBytes: cfg.MaxPayloadBytes,
			Origin:          origin,
		})
		if err != nil {
			return nil, err
		}
		return &Transport{Bus: NewResilient(bus, config.BusDriverRedis, breaker)}, nil

	default:
		return nil, fmt.Errorf("unknown bus driver %q", cfg.Driver)
	}
}
