// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

// Package eventbus defines the cross-process publish/subscribe contract used
// to fan events out to rooms, and its transports.
//
// A Bus has exactly two operations. Publish hands one Event to the transport
// and returns when the transport has accepted or refused it; it never waits
// for delivery. Subscribe registers a Handler for one room key and returns a
// Subscription that is released with Unsubscribe or by cancelling the
// subscribe context.
//
// Transports:
//
//   - memory: watermill gochannel, single process
//   - nats:   watermill-nats over core NATS, optionally an embedded server
//   - redis:  go-redis PUBLISH/SUBSCRIBE over one multiplexed connection
//
// All transports share the envelope codec in codec.go and refuse events
// whose encoded size exceeds the configured limit with ErrPayloadTooLarge.
// A room with no subscribers drops the event without error. Delivery is
// at-most-once; durable records are the source of truth.
//
// Handlers for one Subscription are invoked sequentially in publish order.
// A Handler must not block and must not synchronously publish to the room it
// is subscribed to; the memory transport blocks each publish until every
// subscriber has processed it.
//
// Resilient wraps any Bus with a circuit breaker and Prometheus metrics.
package eventbus
