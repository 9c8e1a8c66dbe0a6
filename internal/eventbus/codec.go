// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package eventbus

import (
	"fmt"

	"github.com/goccy/go-json"
)

// DefaultMaxPayloadBytes bounds an encoded envelope when no limit is configured.
const DefaultMaxPayloadBytes = 64 * 1024

// Codec encodes events into the wire envelope shared by every transport.
type Codec struct {
	maxBytes int
}

// NewCodec returns a codec that refuses envelopes larger than maxBytes.
// Zero or negative selects DefaultMaxPayloadBytes.
func NewCodec(maxBytes int) Codec {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPayloadBytes
	}
	return Codec{maxBytes: maxBytes}
}

// MaxBytes returns the envelope limit.
func (c Codec) MaxBytes() int {
	return c.maxBytes
}

// Encode validates ev and returns its envelope. Oversized events are
// refused, never truncated.
func (c Codec) Encode(ev Event) ([]byte, error) {
	if _, _, err := ParseRoomKey(ev.Room); err != nil {
		return nil, err
	}
	if ev.Kind == "" {
		return nil, fmt.Errorf("event %s: kind is required", ev.ID)
	}
	if len(ev.Payload) > 0 && !json.Valid(ev.Payload) {
		return nil, fmt.Errorf("event %s: payload is not valid JSON", ev.ID)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	if len(data) > c.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(data), c.maxBytes)
	}
	return data, nil
}

// Decode parses an envelope produced by Encode.
func (c Codec) Decode(data []byte) (Event, error) {
	if len(data) > c.maxBytes {
		return Event{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(data), c.maxBytes)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Room == "" || ev.Kind == "" {
		return Event{}, fmt.Errorf("decode event: missing room or kind")
	}
	return ev, nil
}
