// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package websocket

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tomtom215/switchboard/internal/auth"
	"github.com/tomtom215/switchboard/internal/dispatch"
	"github.com/tomtom215/switchboard/internal/eventbus"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/models"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was canceled.
	// This is the normal graceful shutdown path (e.g., SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Authenticator validates the token presented on connect.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

// MembershipChecker decides whether a subscriber may join a chat room.
type MembershipChecker interface {
	IsMember(ctx context.Context, roomID, subscriberID int64) (bool, error)
}

// Actions executes the domain actions triggered by inbound frames.
// *dispatch.Dispatcher implements it.
type Actions interface {
	SendChatMessage(ctx context.Context, in dispatch.ChatMessageInput) (*models.Message, dispatch.Delivery, error)
	MarkMessageRead(ctx context.Context, roomID, readerID, messageID int64) (*models.ReadReceipt, dispatch.Delivery, error)
	MarkNotificationRead(ctx context.Context, recipientID, notificationID int64) (bool, error)
	PublishPresence(ctx context.Context, roomID, subscriberID int64, username, status string) error
	PublishTyping(ctx context.Context, roomID, subscriberID int64, username string, isTyping bool) error
}

// HubConfig configures a Hub.
type HubConfig struct {
	Settings         Settings
	HandshakeTimeout time.Duration

	// AllowedOrigins lists the accepted Origin headers. "*" accepts any
	// origin, including none.
	AllowedOrigins []string

	// MembershipRecheck is the interval of the chat membership sweep run
	// by RunWithContext. Zero disables it.
	MembershipRecheck time.Duration
}

// Hub owns the connections of this process: it upgrades and authenticates
// them, joins them to rooms, and closes them all on shutdown.
type Hub struct {
	registry *Registry
	rooms    *Rooms

	authn   Authenticator
	members MembershipChecker
	actions Actions

	settings       Settings
	upgrader       websocket.Upgrader
	allowedOrigins []string
	recheck        time.Duration

	shuttingDown atomic.Bool
	active       sync.WaitGroup

	logger zerolog.Logger
}

// NewHub creates a Hub whose rooms are fed by bus.
func NewHub(bus eventbus.Bus, authn Authenticator, members MembershipChecker, actions Actions, cfg HubConfig) *Hub {
	cfg.Settings.applyDefaults()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}

	rooms := NewRooms(bus)
	h := &Hub{
		registry:       NewRegistry(rooms, bus),
		rooms:          rooms,
		authn:          authn,
		members:        members,
		actions:        actions,
		settings:       cfg.Settings,
		allowedOrigins: cfg.AllowedOrigins,
		recheck:        cfg.MembershipRecheck,
		logger:         logging.WithComponent("websocket-hub"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	return h
}

// Registry returns the connection registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Rooms returns the room group.
func (h *Hub) Rooms() *Rooms { return h.rooms }

// GetClientCount returns the number of registered connections.
func (h *Hub) GetClientCount() int { return h.registry.Count() }

// RunWithContext blocks until ctx is canceled, then closes every connection
// with 1001 going away and returns ctx.Err(). New connections are refused
// from that point on.
//
// While running, chat connections are checked against the store every
// MembershipRecheck.
func (h *Hub) RunWithContext(ctx context.Context) error {
	h.shuttingDown.Store(false)

	var tick <-chan time.Time
	if h.recheck > 0 {
		ticker := time.NewTicker(h.recheck)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case <-tick:
			h.RecheckMemberships(ctx)
		}
	}
}

// EvictLocal closes subscriberID's connections joined to the chat room and
// returns how many it closed.
func (h *Hub) EvictLocal(roomID, subscriberID int64) int {
	return h.rooms.Evict(eventbus.ChatRoom(roomID), subscriberID)
}

// RecheckMemberships closes every chat connection whose subscriber is no
// longer a member of the joined room and returns how many it closed. A
// failed lookup keeps the connection.
func (h *Hub) RecheckMemberships(ctx context.Context) int {
	type key struct{ room, subscriber int64 }
	checked := make(map[key]bool)
	evicted := 0

	for _, c := range h.registry.All() {
		if c.endpoint != EndpointChat || c.State() != StateAuthenticated {
			continue
		}
		for _, room := range c.Rooms() {
			kind, roomID, err := eventbus.ParseRoomKey(room)
			if err != nil || kind != eventbus.RoomKindChat {
				continue
			}
			k := key{roomID, c.subscriberID}
			member, seen := checked[k]
			if !seen {
				member, err = h.members.IsMember(ctx, roomID, c.subscriberID)
				if err != nil {
					h.logger.Warn().Err(err).Int64("room_id", roomID).Msg("membership recheck failed")
					continue
				}
				checked[k] = member
			}
			if !member {
				evicted += h.rooms.Evict(room, c.subscriberID)
			}
		}
	}

	if evicted > 0 {
		h.logger.Info().Int("connections", evicted).Msg("evicted connections without membership")
	}
	return evicted
}

// logGracefulShutdown closes all clients and logs the shutdown. ctx.Err() is
// not logged as an error because cancellation is the expected path.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	h.shuttingDown.Store(true)
	clientCount := h.registry.Count()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// closeAllClients closes every registered connection in id order and waits
// for their handlers to return.
func (h *Hub) closeAllClients() {
	var wg sync.WaitGroup
	for _, c := range h.registry.All() {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			c.Close(CloseGoingAway, reasonShutdown)
		}(c)
	}
	wg.Wait()

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(h.settings.WriteWait):
		h.logger.Warn().Msg("timed out waiting for websocket handlers to exit")
	}
}

// checkOrigin validates the Origin header of an upgrade request.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" {
			return true
		}
		if origin != "" && allowed == origin {
			return true
		}
	}
	if origin == "" {
		h.logger.Warn().Msg("WebSocket connection rejected: missing Origin header")
	} else {
		h.logger.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	}
	return false
}

// sanitizeLogValue strips control characters and bounds length.
func sanitizeLogValue(s string) string {
	const maxLen = 200
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			continue
		}
		out = append(out, r)
		if len(out) == maxLen {
			break
		}
	}
	return string(out)
}
