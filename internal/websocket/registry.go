// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package websocket

import (
	"context"
	"errors"
	"iter"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tomtom215/switchboard/internal/eventbus"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/metrics"
)

// notifySubscription is the shared bus subscription on one subscriber's
// notification room.
type notifySubscription struct {
	sub  eventbus.Subscription
	refs int
}

// Registry indexes the open connections of this process by subscriber.
//
// Connections opened on the notifications endpoint receive the events of
// their subscriber's notification room without joining it: the registry
// holds one subscription per subscriber and pushes to every notification
// connection of that subscriber.
type Registry struct {
	rooms *Rooms
	bus   eventbus.Bus

	mu           sync.RWMutex
	bySubscriber map[int64]map[uint64]*Client
	total        int

	notifyMu   sync.Mutex
	notifySubs map[int64]*notifySubscription

	logger zerolog.Logger
}

// NewRegistry creates an empty registry. Unregister removes connections
// from rooms.
func NewRegistry(rooms *Rooms, bus eventbus.Bus) *Registry {
	return &Registry{
		rooms:        rooms,
		bus:          bus,
		bySubscriber: make(map[int64]map[uint64]*Client),
		notifySubs:   make(map[int64]*notifySubscription),
		logger:       logging.WithComponent("websocket-registry"),
	}
}

// Register stores c. A subscriber may hold any number of connections.
// Registration never fails; a notification subscription that cannot be
// acquired is logged and the connection stays open without pushes.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	conns, ok := r.bySubscriber[c.subscriberID]
	if !ok {
		conns = make(map[uint64]*Client)
		r.bySubscriber[c.subscriberID] = conns
	}
	if _, dup := conns[c.id]; !dup {
		conns[c.id] = c
		r.total++
	}
	total := r.total
	r.mu.Unlock()

	metrics.WSConnections.Set(float64(total))

	if c.endpoint == EndpointNotifications {
		r.acquireNotifications(c)
	}
}

// Unregister removes c from every room and from the registry. It returns
// false if c was not registered, which makes repeated calls harmless.
func (r *Registry) Unregister(c *Client) bool {
	r.mu.Lock()
	conns, ok := r.bySubscriber[c.subscriberID]
	if ok {
		_, ok = conns[c.id]
	}
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(conns, c.id)
	if len(conns) == 0 {
		delete(r.bySubscriber, c.subscriberID)
	}
	r.total--
	total := r.total
	r.mu.Unlock()

	metrics.WSConnections.Set(float64(total))

	r.rooms.LeaveAll(c)
	if c.endpoint == EndpointNotifications {
		r.releaseNotifications(c)
	}
	return true
}

// ConnectionsFor yields the open connections of a subscriber in id order.
// The set is captured when iteration starts.
func (r *Registry) ConnectionsFor(subscriberID int64) iter.Seq[*Client] {
	return func(yield func(*Client) bool) {
		for _, c := range r.snapshot(subscriberID) {
			if !yield(c) {
				return
			}
		}
	}
}

func (r *Registry) snapshot(subscriberID int64) []*Client {
	r.mu.RLock()
	conns := r.bySubscriber[subscriberID]
	out := make([]*Client, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].id < out[j].id
	})
	return out
}

// All returns every registered connection in id order.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	out := make([]*Client, 0, r.total)
	for _, conns := range r.bySubscriber {
		for _, c := range conns {
			out = append(out, c)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].id < out[j].id
	})
	return out
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

// SubscriberCount returns the number of subscribers with at least one connection.
func (r *Registry) SubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySubscriber)
}

// acquireNotifications takes a reference on c's notification subscription.
// notifyRef on the client records whether it holds one.
func (r *Registry) acquireNotifications(c *Client) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	subscriberID := c.subscriberID
	if ns, ok := r.notifySubs[subscriberID]; ok {
		ns.refs++
		c.notifyRef = true
		return
	}

	room := eventbus.NotificationRoom(subscriberID)
	sub, err := r.bus.Subscribe(context.Background(), room, func(_ context.Context, ev eventbus.Event) {
		r.pushNotification(subscriberID, ev)
	})
	if err != nil {
		r.logger.Warn().Err(err).Int64("subscriber_id", subscriberID).Msg("notification subscription failed; pushes disabled for connection")
		return
	}
	r.notifySubs[subscriberID] = &notifySubscription{sub: sub, refs: 1}
	c.notifyRef = true
}

func (r *Registry) releaseNotifications(c *Client) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	if !c.notifyRef {
		return
	}
	c.notifyRef = false
	subscriberID := c.subscriberID
	ns, ok := r.notifySubs[subscriberID]
	if !ok {
		return
	}
	ns.refs--
	if ns.refs > 0 {
		return
	}
	delete(r.notifySubs, subscriberID)
	if err := ns.sub.Unsubscribe(); err != nil && !errors.Is(err, eventbus.ErrClosed) {
		r.logger.Warn().Err(err).Int64("subscriber_id", subscriberID).Msg("notification unsubscribe failed")
	}
}

// pushNotification writes a notification event to the subscriber's
// notification connections.
func (r *Registry) pushNotification(subscriberID int64, ev eventbus.Event) {
	if ev.Kind == eventbus.KindEvict {
		return
	}
	frame, err := ev.Frame()
	if err != nil {
		metrics.WSErrors.WithLabelValues("frame_encode").Inc()
		return
	}
	for c := range r.ConnectionsFor(subscriberID) {
		if c.endpoint != EndpointNotifications {
			continue
		}
		if err := c.enqueue(frame); err != nil {
			metrics.WSSlowConsumerEvictions.Inc()
			c.closeAsync(ClosePolicyViolation, reasonSlowConsumer)
		}
	}
}

// notificationSubscriptions returns how many subscribers have a live
// notification subscription.
func (r *Registry) notificationSubscriptions() int {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	return len(r.notifySubs)
}
