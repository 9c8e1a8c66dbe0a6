// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package websocket

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/switchboard/internal/config"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/metrics"
)

// State is the lifecycle position of a connection.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateAuthenticated
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Endpoint is the kind of socket a client opened.
type Endpoint string

const (
	EndpointChat          Endpoint = "chat"
	EndpointNotifications Endpoint = "notifications"
)

var (
	// errSlowConsumer is returned by enqueue when the send queue is full.
	errSlowConsumer = errors.New("websocket: send queue full")

	errClientClosing = errors.New("websocket: connection is closing")
)

// Settings are the per-connection limits and timers.
type Settings struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	SendBuffer     int
	InboundRate    float64
	InboundBurst   int
}

// SettingsFromConfig converts the websocket configuration section.
func SettingsFromConfig(cfg *config.WebSocketConfig) Settings {
	return Settings{
		WriteWait:      cfg.WriteWait,
		PongWait:       cfg.PongWait,
		MaxMessageSize: cfg.MaxMessageSize,
		SendBuffer:     cfg.SendBuffer,
		InboundRate:    cfg.InboundRate,
		InboundBurst:   cfg.InboundBurst,
	}
}

func (s *Settings) applyDefaults() {
	if s.WriteWait <= 0 {
		s.WriteWait = 10 * time.Second
	}
	if s.PongWait <= 0 {
		s.PongWait = 60 * time.Second
	}
	if s.MaxMessageSize <= 0 {
		s.MaxMessageSize = 8 * 1024
	}
	if s.SendBuffer <= 0 {
		s.SendBuffer = 256
	}
	if s.InboundRate <= 0 {
		s.InboundRate = 10
	}
	if s.InboundBurst <= 0 {
		s.InboundBurst = 20
	}
}

// pingPeriod must be shorter than PongWait.
func (s Settings) pingPeriod() time.Duration {
	return (s.PongWait * 9) / 10
}

// clientIDCounter generates unique, monotonically increasing IDs for clients.
// Room fan-out iterates members in id order.
var clientIDCounter atomic.Uint64

// Client is one authenticated WebSocket connection.
type Client struct {
	id           uint64
	subscriberID int64
	username     string
	endpoint     Endpoint
	createdAt    time.Time

	conn     *websocket.Conn
	send     chan []byte
	settings Settings
	limiter  *rate.Limiter
	state    atomic.Int32

	mu          sync.Mutex
	rooms       map[string]struct{}
	closeCode   int
	closeReason string

	closeOnce sync.Once
	done      chan struct{}

	// notifyRef is guarded by the registry's notifyMu.
	notifyRef bool

	// onClose runs once, before the close frame is written.
	onClose func(*Client)
}

// NewClient wraps an upgraded connection in the Connecting state. conn may
// be nil for clients that never touch the network.
func NewClient(conn *websocket.Conn, endpoint Endpoint, settings Settings) *Client {
	settings.applyDefaults()
	return &Client{
		id:        clientIDCounter.Add(1),
		endpoint:  endpoint,
		createdAt: time.Now(),
		conn:      conn,
		send:      make(chan []byte, settings.SendBuffer),
		settings:  settings,
		limiter:   rate.NewLimiter(rate.Limit(settings.InboundRate), settings.InboundBurst),
		rooms:     make(map[string]struct{}),
		done:      make(chan struct{}),
	}
}

// authenticated binds the connection to a subscriber. It must run before the
// client is shared with other goroutines.
func (c *Client) authenticated(subscriberID int64, username string) bool {
	c.subscriberID = subscriberID
	c.username = username
	return c.state.CompareAndSwap(int32(StateAuthenticating), int32(StateAuthenticated))
}

// ID returns the client's unique identifier.
func (c *Client) ID() uint64 { return c.id }

// SubscriberID returns the authenticated subscriber.
func (c *Client) SubscriberID() int64 { return c.subscriberID }

// Username returns the authenticated subscriber's username.
func (c *Client) Username() string { return c.username }

// Endpoint returns the endpoint the connection was opened on.
func (c *Client) Endpoint() Endpoint { return c.endpoint }

// CreatedAt returns when the connection was accepted.
func (c *Client) CreatedAt() time.Time { return c.createdAt }

// State returns the current lifecycle state.
func (c *Client) State() State { return State(c.state.Load()) }

// Done is closed once the connection has been torn down.
func (c *Client) Done() <-chan struct{} { return c.done }

// CloseCode returns the close code the connection was closed with, or 0.
func (c *Client) CloseCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

// Rooms returns the joined room keys in sorted order.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	out := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		out = append(out, room)
	}
	c.mu.Unlock()
	sort.Strings(out)
	return out
}

func (c *Client) addRoom(room string) {
	c.mu.Lock()
	c.rooms[room] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) removeRoom(room string) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

// enqueue queues a frame without blocking. Frames for a connection that is
// closing are dropped.
func (c *Client) enqueue(frame []byte) error {
	if c.State() != StateAuthenticated {
		return nil
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errSlowConsumer
	}
}

// Close tears the connection down with the given close code. Only the first
// call has any effect; later calls block until teardown has finished.
func (c *Client) Close(code int, reason string) {
	c.beginClose(code, reason)
	c.closeOnce.Do(c.finish)
}

// closeAsync stops delivery immediately and tears the connection down on
// another goroutine. It is used from bus callbacks, which must not block.
func (c *Client) closeAsync(code int, reason string) {
	if c.beginClose(code, reason) {
		go c.Close(code, reason)
	}
}

// beginClose records the close code and moves to Closing. It reports
// whether this call was the first.
func (c *Client) beginClose(code int, reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeCode != 0 {
		return false
	}
	c.closeCode = code
	c.closeReason = reason
	c.state.Store(int32(StateClosing))
	return true
}

func (c *Client) finish() {
	if c.onClose != nil {
		c.onClose(c)
	}

	c.mu.Lock()
	code, reason := c.closeCode, c.closeReason
	c.mu.Unlock()

	if c.conn != nil {
		msg := websocket.FormatCloseMessage(code, reason)
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.settings.WriteWait)); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			logging.Debug().Err(err).Uint64("client_id", c.id).Msg("close frame not written")
		}
	}
	close(c.done)
	if c.conn != nil {
		_ = c.conn.Close() // Explicitly ignore error - best-effort cleanup
	}
	c.state.Store(int32(StateClosed))

	logging.Debug().
		Uint64("client_id", c.id).
		Int64("subscriber_id", c.subscriberID).
		Int("code", code).
		Str("reason", reason).
		Msg("websocket connection closed")
}

// readPump reads frames until the connection fails, passing each frame that
// passes the inbound rate limit to handle.
func (c *Client) readPump(handle func(data []byte)) {
	c.conn.SetReadLimit(c.settings.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		c.Close(CloseInternalError, reasonReadFailed)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Debug().Err(err).Uint64("client_id", c.id).Msg("unexpected websocket close error")
			}
			code, reason := closeForReadError(err)
			c.Close(code, reason)
			return
		}
		if c.State() != StateAuthenticated {
			continue
		}
		if !c.limiter.Allow() {
			metrics.WSErrors.WithLabelValues("rate_limited").Inc()
			continue
		}
		handle(data)
	}
}

// writePump writes queued frames and keepalive pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.settings.pingPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case frame := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait)); err != nil {
				c.closeAsync(CloseGoingAway, reasonWriteFailed)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				metrics.WSErrors.WithLabelValues("write").Inc()
				c.closeAsync(CloseGoingAway, reasonWriteFailed)
				return
			}
			metrics.WSMessagesSent.Inc()

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait)); err != nil {
				c.closeAsync(CloseGoingAway, reasonWriteFailed)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeAsync(CloseGoingAway, reasonHeartbeat)
				return
			}
		}
	}
}
