// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package websocket

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tomtom215/switchboard/internal/eventbus"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/metrics"
)

// roomEntry is the local state of one room: its members and the bus
// subscription they share.
type roomEntry struct {
	key     string
	members map[uint64]*Client
	sub     eventbus.Subscription
}

// Rooms is the process-local room group. It holds one bus subscription per
// room with at least one local member and fans received events out to the
// members' send queues.
type Rooms struct {
	bus eventbus.Bus

	// joinMu serialises subscription changes so that the subscription count
	// of a room always matches whether it has local members.
	joinMu sync.Mutex

	mu    sync.RWMutex
	rooms map[string]*roomEntry

	logger zerolog.Logger
}

// NewRooms creates an empty room group on bus.
func NewRooms(bus eventbus.Bus) *Rooms {
	return &Rooms{
		bus:    bus,
		rooms:  make(map[string]*roomEntry),
		logger: logging.WithComponent("websocket-rooms"),
	}
}

// Join adds c to room. The caller has already checked that the subscriber
// may join. The first local member subscribes the room on the bus; if that
// fails, Join returns the error and c is not a member. Joining twice is a
// no-op.
func (r *Rooms) Join(ctx context.Context, room string, c *Client) error {
	kind, _, err := eventbus.ParseRoomKey(room)
	if err != nil {
		return err
	}

	r.joinMu.Lock()
	defer r.joinMu.Unlock()

	// Checked under joinMu: teardown leaves all rooms under the same lock.
	if c.State() != StateAuthenticated {
		return errClientClosing
	}

	r.mu.Lock()
	if e, ok := r.rooms[room]; ok {
		_, already := e.members[c.id]
		e.members[c.id] = c
		r.mu.Unlock()
		c.addRoom(room)
		if !already {
			metrics.WSRoomJoins.WithLabelValues(kind).Inc()
		}
		return nil
	}
	r.mu.Unlock()

	e := &roomEntry{key: room, members: make(map[uint64]*Client)}
	// The subscription is shared by later members and must outlive the
	// request that created it.
	sub, err := r.bus.Subscribe(context.WithoutCancel(ctx), room, func(_ context.Context, ev eventbus.Event) {
		r.deliver(e, ev)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", room, err)
	}
	e.sub = sub
	e.members[c.id] = c

	r.mu.Lock()
	r.rooms[room] = e
	active := len(r.rooms)
	r.mu.Unlock()

	c.addRoom(room)
	metrics.WSRoomJoins.WithLabelValues(kind).Inc()
	metrics.WSRoomsActive.Set(float64(active))
	r.logger.Debug().Str("room", room).Msg("room subscribed")
	return nil
}

// Leave removes c from room. The last local member releases the bus
// subscription and the room entry.
func (r *Rooms) Leave(room string, c *Client) {
	r.joinMu.Lock()
	defer r.joinMu.Unlock()
	r.leaveLocked(room, c)
}

// LeaveAll removes c from every room it joined.
func (r *Rooms) LeaveAll(c *Client) {
	r.joinMu.Lock()
	defer r.joinMu.Unlock()
	for _, room := range c.Rooms() {
		r.leaveLocked(room, c)
	}
}

// leaveLocked requires joinMu.
func (r *Rooms) leaveLocked(room string, c *Client) {
	c.removeRoom(room)

	r.mu.Lock()
	e, ok := r.rooms[room]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(e.members, c.id)
	if len(e.members) > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.rooms, room)
	active := len(r.rooms)
	r.mu.Unlock()

	metrics.WSRoomsActive.Set(float64(active))
	if err := e.sub.Unsubscribe(); err != nil && !errors.Is(err, eventbus.ErrClosed) {
		r.logger.Warn().Err(err).Str("room", room).Msg("room unsubscribe failed")
	}
	r.logger.Debug().Str("room", room).Msg("room released")
}

// LocalDispatch delivers ev to the local members of its room.
func (r *Rooms) LocalDispatch(ev eventbus.Event) {
	r.mu.RLock()
	e, ok := r.rooms[ev.Room]
	r.mu.RUnlock()
	if ok {
		r.deliver(e, ev)
	}
}

// deliver fans ev out to e's members. It never blocks: a member whose queue
// is full is torn down as a slow consumer.
func (r *Rooms) deliver(e *roomEntry, ev eventbus.Event) {
	if ev.Kind == eventbus.KindEvict {
		r.evict(e, ev.Target)
		return
	}

	frame, err := ev.Frame()
	if err != nil {
		metrics.WSErrors.WithLabelValues("frame_encode").Inc()
		r.logger.Warn().Err(err).Str("room", ev.Room).Str("kind", ev.Kind).Msg("dropping event with unusable payload")
		return
	}

	for _, c := range r.snapshot(e) {
		if ev.Exclude != 0 && c.subscriberID == ev.Exclude {
			continue
		}
		if err := c.enqueue(frame); err != nil {
			metrics.WSSlowConsumerEvictions.Inc()
			r.logger.Warn().
				Uint64("client_id", c.id).
				Int64("subscriber_id", c.subscriberID).
				Str("room", ev.Room).
				Msg("send queue full, closing slow consumer")
			c.closeAsync(ClosePolicyViolation, reasonSlowConsumer)
		}
	}
}

// Evict closes subscriberID's local connections in room with 4003 and
// returns how many it closed.
func (r *Rooms) Evict(room string, subscriberID int64) int {
	r.mu.RLock()
	e, ok := r.rooms[room]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	return r.evict(e, subscriberID)
}

func (r *Rooms) evict(e *roomEntry, subscriberID int64) int {
	n := 0
	for _, c := range r.snapshot(e) {
		if c.subscriberID != subscriberID || c.State() != StateAuthenticated {
			continue
		}
		r.logger.Info().
			Uint64("client_id", c.id).
			Int64("subscriber_id", c.subscriberID).
			Str("room", e.key).
			Msg("evicting connection after membership revocation")
		c.closeAsync(CloseForbidden, reasonRevoked)
		n++
	}
	return n
}

// snapshot returns e's members sorted by connection id.
func (r *Rooms) snapshot(e *roomEntry) []*Client {
	r.mu.RLock()
	members := make([]*Client, 0, len(e.members))
	for _, c := range e.members {
		members = append(members, c)
	}
	r.mu.RUnlock()

	sort.Slice(members, func(i, j int) bool {
		return members[i].id < members[j].id
	})
	return members
}

// Members returns the local members of room sorted by connection id.
func (r *Rooms) Members(room string) []*Client {
	r.mu.RLock()
	e, ok := r.rooms[room]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return r.snapshot(e)
}

// ActiveRooms returns how many rooms have local members.
func (r *Rooms) ActiveRooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
