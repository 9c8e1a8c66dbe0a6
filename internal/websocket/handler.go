// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package websocket

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/switchboard/internal/auth"
	"github.com/tomtom215/switchboard/internal/database"
	"github.com/tomtom215/switchboard/internal/dispatch"
	"github.com/tomtom215/switchboard/internal/eventbus"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/metrics"
	"github.com/tomtom215/switchboard/internal/models"
	"github.com/tomtom215/switchboard/internal/validation"
)

// ServeChat upgrades a request on /ws/chat/{room_id}. The caller has parsed
// roomID from the path.
func (h *Hub) ServeChat(w http.ResponseWriter, r *http.Request, roomID int64) {
	h.serve(w, r, EndpointChat, roomID)
}

// ServeNotifications upgrades a request on /ws/notifications.
func (h *Hub) ServeNotifications(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, EndpointNotifications, 0)
}

// serve runs one connection from upgrade to close. It returns when the
// connection is closed.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request, endpoint Endpoint, roomID int64) {
	if h.shuttingDown.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		metrics.RecordWSConnection(string(endpoint), "error")
		h.logger.Debug().Err(err).Msg("WebSocket upgrade error")
		return
	}

	h.active.Add(1)
	defer h.active.Done()

	c := NewClient(conn, endpoint, h.settings)
	c.state.Store(int32(StateAuthenticating))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	ctx = logging.ContextWithLogger(ctx, h.logger)
	ctx = logging.ContextWithConnectionID(ctx, c.id)

	claims, err := h.authenticate(ctx, r)
	if err != nil {
		code, reason, outcome := CloseAuthFailed, reasonAuthFailed, "auth_failed"
		if auth.IsPolicyViolation(err) {
			code, reason, outcome = ClosePolicyViolation, reasonMissingToken, "unauthenticated"
		}
		metrics.RecordWSConnection(string(endpoint), outcome)
		logging.Ctx(ctx).Debug().Str("outcome", auth.Outcome(err)).Msg("websocket authentication failed")
		c.Close(code, reason)
		return
	}

	c.authenticated(claims.SubscriberID, claims.Username)
	c.onClose = h.cleanup
	h.registry.Register(c)
	go c.writePump()

	if h.shuttingDown.Load() {
		c.Close(CloseGoingAway, reasonShutdown)
		return
	}

	if endpoint == EndpointChat {
		if !h.joinChat(ctx, c, roomID) {
			return
		}
	}

	metrics.RecordWSConnection(string(endpoint), "accepted")
	logging.Ctx(ctx).Debug().
		Int64("subscriber_id", c.subscriberID).
		Str("endpoint", string(endpoint)).
		Int("total_clients", h.registry.Count()).
		Msg("websocket client connected")

	c.readPump(func(data []byte) {
		h.handleFrame(ctx, c, roomID, data)
	})
}

// authenticate validates the token query parameter.
func (h *Hub) authenticate(ctx context.Context, r *http.Request) (*auth.Claims, error) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		return nil, auth.ErrMissingToken
	}
	claims, err := h.authn.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if claims.SubscriberID <= 0 {
		return nil, auth.ErrSubscriberInactive
	}
	return claims, nil
}

// joinChat checks membership and joins the chat room. On failure the
// connection is closed and false is returned.
func (h *Hub) joinChat(ctx context.Context, c *Client, roomID int64) bool {
	member, err := h.members.IsMember(ctx, roomID, c.subscriberID)
	if err != nil {
		metrics.RecordWSConnection(string(EndpointChat), "error")
		logging.Ctx(ctx).Error().Err(err).Int64("room_id", roomID).Msg("membership check failed")
		c.Close(CloseInternalError, reasonJoinFailed)
		return false
	}
	if !member {
		metrics.RecordWSConnection(string(EndpointChat), "forbidden")
		c.Close(CloseForbidden, reasonForbidden)
		return false
	}

	room := eventbus.ChatRoom(roomID)
	if err := h.rooms.Join(ctx, room, c); err != nil {
		if errors.Is(err, errClientClosing) {
			return false
		}
		metrics.RecordWSConnection(string(EndpointChat), "error")
		logging.Ctx(ctx).Error().Err(err).Int64("room_id", roomID).Msg("room join failed")
		c.Close(CloseInternalError, reasonJoinFailed)
		return false
	}

	// An evict published between the first check and the bus subscription
	// was never seen by this process, so membership is checked again.
	member, err = h.members.IsMember(ctx, roomID, c.subscriberID)
	if err != nil || !member {
		h.rooms.Leave(room, c)
		code, reason, outcome := CloseForbidden, reasonRevoked, "forbidden"
		if err != nil {
			code, reason, outcome = CloseInternalError, reasonJoinFailed, "error"
			logging.Ctx(ctx).Error().Err(err).Int64("room_id", roomID).Msg("membership recheck failed")
		}
		metrics.RecordWSConnection(string(EndpointChat), outcome)
		c.Close(code, reason)
		return false
	}

	if err := h.actions.PublishPresence(ctx, roomID, c.subscriberID, c.username, dispatch.StatusOnline); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("room_id", roomID).Msg("online status not published")
	}
	return true
}

// cleanup runs once per connection, before its socket closes.
func (h *Hub) cleanup(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), h.settings.WriteWait)
	defer cancel()

	for _, room := range c.Rooms() {
		kind, roomID, err := eventbus.ParseRoomKey(room)
		if err != nil || kind != eventbus.RoomKindChat {
			continue
		}
		if err := h.actions.PublishPresence(ctx, roomID, c.subscriberID, c.username, dispatch.StatusOffline); err != nil {
			h.logger.Debug().Err(err).Str("room", room).Msg("offline status not published")
		}
	}
	h.rooms.LeaveAll(c)
	h.registry.Unregister(c)
}

// handleFrame dispatches one inbound frame by type. Malformed and unknown
// frames are ignored.
func (h *Hub) handleFrame(ctx context.Context, c *Client, roomID int64, data []byte) {
	var env envelope
	if err := decodeFrame(data, &env); err != nil {
		metrics.RecordWSInbound("malformed")
		logging.Ctx(ctx).Debug().Err(err).Msg("ignoring malformed frame")
		return
	}

	switch {
	case env.Type == framePing:
		metrics.RecordWSInbound(framePing)
		_ = c.enqueue(pongFrame)
	case c.endpoint == EndpointChat && env.Type == frameMessage:
		metrics.RecordWSInbound(frameMessage)
		h.onMessage(ctx, c, roomID, data)
	case c.endpoint == EndpointChat && env.Type == frameTyping:
		metrics.RecordWSInbound(frameTyping)
		h.onTyping(ctx, c, roomID, data)
	case c.endpoint == EndpointChat && env.Type == frameRead:
		metrics.RecordWSInbound(frameRead)
		h.onRead(ctx, c, roomID, data)
	case c.endpoint == EndpointNotifications && env.Type == frameMarkRead:
		metrics.RecordWSInbound(frameMarkRead)
		h.onMarkRead(ctx, c, data)
	default:
		metrics.RecordWSInbound("unknown")
		logging.Ctx(ctx).Debug().Str("type", sanitizeLogValue(env.Type)).Msg("ignoring unknown frame type")
	}
}

func (h *Hub) onMessage(ctx context.Context, c *Client, roomID int64, data []byte) {
	var f messageFrame
	if err := decodeFrame(data, &f); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("ignoring malformed message frame")
		return
	}
	// Attachments may be sent without a caption.
	if strings.TrimSpace(f.Content) == "" && (f.MessageType == "" || f.MessageType == models.MessageTypeText) {
		return
	}
	if verr := validation.ValidateStruct(&f); verr != nil {
		logging.Ctx(ctx).Debug().Err(verr).Msg("ignoring invalid message frame")
		return
	}

	_, del, err := h.actions.SendChatMessage(ctx, dispatch.ChatMessageInput{
		RoomID:      roomID,
		SenderID:    c.subscriberID,
		Content:     f.Content,
		MessageType: f.MessageType,
		ReplyTo:     f.ReplyTo,
	})
	if err != nil {
		if errors.Is(err, database.ErrNotMember) {
			logging.Ctx(ctx).Info().Int64("room_id", roomID).Int64("subscriber_id", c.subscriberID).Msg("message from a subscriber no longer in the room")
			return
		}
		logging.Ctx(ctx).Warn().Err(err).Int64("room_id", roomID).Msg("chat message not stored")
		return
	}
	if del.PushErr != nil {
		logging.Ctx(ctx).Warn().Err(del.PushErr).Int64("message_id", del.RecordID).Msg("chat message stored but not broadcast")
	}
}

func (h *Hub) onTyping(ctx context.Context, c *Client, roomID int64, data []byte) {
	var f typingFrame
	if err := decodeFrame(data, &f); err != nil {
		return
	}
	if err := h.actions.PublishTyping(ctx, roomID, c.subscriberID, c.username, f.IsTyping); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Int64("room_id", roomID).Msg("typing indicator not published")
	}
}

func (h *Hub) onRead(ctx context.Context, c *Client, roomID int64, data []byte) {
	var f readFrame
	if err := decodeFrame(data, &f); err != nil {
		return
	}
	if verr := validation.ValidateStruct(&f); verr != nil {
		return
	}
	if _, _, err := h.actions.MarkMessageRead(ctx, roomID, c.subscriberID, f.MessageID); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Int64("message_id", f.MessageID).Msg("read receipt not stored")
	}
}

func (h *Hub) onMarkRead(ctx context.Context, c *Client, data []byte) {
	var f markReadFrame
	if err := decodeFrame(data, &f); err != nil {
		return
	}
	if verr := validation.ValidateStruct(&f); verr != nil {
		return
	}
	changed, err := h.actions.MarkNotificationRead(ctx, c.subscriberID, f.NotificationID)
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Int64("notification_id", f.NotificationID).Msg("notification not marked read")
		return
	}
	reply, err := json.Marshal(markReadResult{Type: "notification_read", NotificationID: f.NotificationID, Changed: changed})
	if err != nil {
		return
	}
	if err := c.enqueue(reply); err != nil {
		c.closeAsync(ClosePolicyViolation, reasonSlowConsumer)
	}
}
