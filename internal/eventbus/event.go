// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package eventbus

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Room key prefixes.
const (
	RoomKindChat          = "chat"
	RoomKindNotifications = "notifications"
)

// Event kinds written to client sockets.
const (
	KindMessage      = "message"
	KindTyping       = "typing"
	KindRead         = "read"
	KindStatus       = "status"
	KindNotification = "notification"
)

// KindEvict is a control event. It is never written to a socket; the room
// group closes the connections of Event.Target instead.
const KindEvict = "evict"

// Event is one room-addressed payload. Treat it as immutable once built.
type Event struct {
	ID   string `json:"id"`
	Room string `json:"room"`
	Kind string `json:"kind"`

	// Payload is a JSON object with the kind-specific fields.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Exclude suppresses delivery to connections of this subscriber.
	Exclude int64 `json:"exclude,omitempty"`

	// Target names the subscriber a control event applies to.
	Target int64 `json:"target,omitempty"`

	// Origin identifies the publishing process.
	Origin string `json:"origin,omitempty"`

	PublishedAt time.Time `json:"published_at"`
}

// Handler receives events for one subscription.
type Handler func(ctx context.Context, ev Event)

// Subscription is a registered handler for one room.
type Subscription interface {
	Unsubscribe() error
}

// Bus is the publish/subscribe contract between event producers and the
// processes holding connections.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, room string, handler Handler) (Subscription, error)
}

// NewEvent builds an event with a fresh id. A nil payload is sent as an
// empty object.
func NewEvent(room, kind string, payload any) (Event, error) {
	var raw json.RawMessage
	switch p := payload.(type) {
	case nil:
		raw = json.RawMessage(`{}`)
	case json.RawMessage:
		raw = p
	case []byte:
		raw = json.RawMessage(p)
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return Event{}, fmt.Errorf("encode %s payload: %w", kind, err)
		}
		raw = b
	}

	return Event{
		ID:          uuid.NewString(),
		Room:        room,
		Kind:        kind,
		Payload:     raw,
		PublishedAt: time.Now().UTC(),
	}, nil
}

// ChatRoom returns the room key for a chat room.
func ChatRoom(roomID int64) string {
	return RoomKindChat + ":" + strconv.FormatInt(roomID, 10)
}

// NotificationRoom returns the private notification room of a subscriber.
func NotificationRoom(subscriberID int64) string {
	return RoomKindNotifications + ":" + strconv.FormatInt(subscriberID, 10)
}

// ParseRoomKey splits a room key into its kind and positive numeric target.
func ParseRoomKey(room string) (kind string, target int64, err error) {
	kind, rest, ok := strings.Cut(room, ":")
	if !ok || (kind != RoomKindChat && kind != RoomKindNotifications) {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidRoom, room)
	}
	target, err = strconv.ParseInt(rest, 10, 64)
	if err != nil || target <= 0 || strconv.FormatInt(target, 10) != rest {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidRoom, room)
	}
	return kind, target, nil
}

// Frame renders the event as the JSON object written to client sockets:
// the payload fields with a "type" discriminator set to the event kind.
// Payloads that are not JSON objects are placed under "data".
func (e Event) Frame() ([]byte, error) {
	kind, err := json.Marshal(e.Kind)
	if err != nil {
		return nil, err
	}

	body := trimSpaceBytes(e.Payload)
	if len(body) == 0 || string(body) == "null" {
		body = []byte(`{}`)
	}

	if len(body) < 2 || body[0] != '{' || body[len(body)-1] != '}' {
		out := make([]byte, 0, len(body)+len(kind)+18)
		out = append(out, `{"type":`...)
		out = append(out, kind...)
		out = append(out, `,"data":`...)
		out = append(out, body...)
		out = append(out, '}')
		return out, nil
	}

	inner := trimSpaceBytes(body[1 : len(body)-1])
	out := make([]byte, 0, len(body)+len(kind)+10)
	out = append(out, `{"type":`...)
	out = append(out, kind...)
	if len(inner) > 0 {
		out = append(out, ',')
		out = append(out, inner...)
	}
	out = append(out, '}')
	return out, nil
}

func trimSpaceBytes(b []byte) []byte {
	for len(b) > 0 && isSpace(b[0]) {
		b = b[1:]
	}
	for len(b) > 0 && isSpace(b[len(b)-1]) {
		b = b[:len(b)-1]
	}
	return b
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
