// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package eventbus

import (
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestParseRoomKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		room       string
		wantKind   string
		wantTarget int64
		wantErr    bool
	}{
		{"chat:12", RoomKindChat, 12, false},
		{"notifications:7", RoomKindNotifications, 7, false},
		{ChatRoom(42), RoomKindChat, 42, false},
		{NotificationRoom(3), RoomKindNotifications, 3, false},
		{"chat:0", "", 0, true},
		{"chat:-1", "", 0, true},
		{"chat:012", "", 0, true},
		{"chat:", "", 0, true},
		{"chat", "", 0, true},
		{"presence:1", "", 0, true},
		{"chat:1x", "", 0, true},
		{"", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.room, func(t *testing.T) {
			kind, target, err := ParseRoomKey(tt.room)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRoom) {
					t.Fatalf("ParseRoomKey(%q) err = %v, want ErrInvalidRoom", tt.room, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRoomKey(%q): %v", tt.room, err)
			}
			if kind != tt.wantKind || target != tt.wantTarget {
				t.Errorf("ParseRoomKey(%q) = %q, %d", tt.room, kind, target)
			}
		})
	}
}

func TestEventFrame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		kind    string
		payload string
		want    string
	}{
		{"object", KindMessage, `{"content":"hi","message_id":1}`, `{"type":"message","content":"hi","message_id":1}`},
		{"padded object", KindTyping, " { \"is_typing\":true } ", `{"type":"typing","is_typing":true}`},
		{"empty object", KindStatus, `{}`, `{"type":"status"}`},
		{"empty payload", KindStatus, ``, `{"type":"status"}`},
		{"null", KindStatus, `null`, `{"type":"status"}`},
		{"array", KindNotification, `[1,2]`, `{"type":"notification","data":[1,2]}`},
		{"string", KindNotification, `"x"`, `{"type":"notification","data":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev := Event{Kind: tt.kind, Payload: json.RawMessage(tt.payload)}
			got, err := ev.Frame()
			if err != nil {
				t.Fatalf("Frame: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Frame = %s, want %s", got, tt.want)
			}
			if !json.Valid(got) {
				t.Errorf("Frame produced invalid JSON: %s", got)
			}
		})
	}
}

func TestNewEvent(t *testing.T) {
	t.Parallel()

	ev, err := NewEvent(ChatRoom(1), KindTyping, map[string]any{"is_typing": true})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if ev.ID == "" || ev.PublishedAt.IsZero() {
		t.Errorf("event not stamped: %+v", ev)
	}
	if string(ev.Payload) != `{"is_typing":true}` {
		t.Errorf("payload = %s", ev.Payload)
	}

	empty, err := NewEvent(ChatRoom(1), KindStatus, nil)
	if err != nil || string(empty.Payload) != `{}` {
		t.Errorf("nil payload = %s, %v", empty.Payload, err)
	}

	if _, err := NewEvent(ChatRoom(1), KindStatus, make(chan int)); err == nil {
		t.Error("expected an error for an unencodable payload")
	}
}

func TestCodec(t *testing.T) {
	t.Parallel()

	codec := NewCodec(256)
	ev, _ := NewEvent(ChatRoom(5), KindMessage, map[string]string{"content": "hello"})
	ev.Exclude = 9

	data, err := codec.Encode(ev)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.ID != ev.ID || got.Room != ev.Room || got.Exclude != 9 || string(got.Payload) != string(ev.Payload) {
		t.Errorf("decoded %+v, want %+v", got, ev)
	}

	big, _ := NewEvent(ChatRoom(5), KindMessage, map[string]string{"content": strings.Repeat("x", 300)})
	if _, err := codec.Encode(big); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("oversized Encode err = %v, want ErrPayloadTooLarge", err)
	}

	bad := ev
	bad.Room = "lobby"
	if _, err := codec.Encode(bad); !errors.Is(err, ErrInvalidRoom) {
		t.Errorf("invalid room err = %v", err)
	}

	invalid := ev
	invalid.Payload = json.RawMessage(`{"a":`)
	if _, err := codec.Encode(invalid); err == nil {
		t.Error("expected error for invalid payload JSON")
	}

	if _, err := codec.Decode([]byte(`{"id":"x"}`)); err == nil {
		t.Error("expected error decoding an envelope without room")
	}

	if NewCodec(0).MaxBytes() != DefaultMaxPayloadBytes {
		t.Error("zero limit should select the default")
	}
}
