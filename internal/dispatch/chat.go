// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/tomtom215/switchboard/internal/eventbus"
	"github.com/tomtom215/switchboard/internal/metrics"
	"github.com/tomtom215/switchboard/internal/models"
)

const (
	// MaxContentLength is the longest chat message accepted, in characters.
	MaxContentLength = 4000

	// notificationBodyLength is how much of a message is quoted in member notifications.
	notificationBodyLength = 100

	// evictPublishAttempts bounds the evict publish retries of RevokeMembership.
	evictPublishAttempts = 3
)

// ChatMessageInput is a new chat message.
type ChatMessageInput struct {
	RoomID      int64
	SenderID    int64
	Content     string
	MessageType string
	ReplyTo     *int64
}

func (in *ChatMessageInput) validate() error {
	if in.RoomID <= 0 || in.SenderID <= 0 {
		return fmt.Errorf("%w: room and sender are required", ErrInvalidInput)
	}
	if in.MessageType == "" {
		in.MessageType = models.MessageTypeText
	}
	switch in.MessageType {
	case models.MessageTypeText, models.MessageTypeImage, models.MessageTypeFile:
	default:
		return fmt.Errorf("%w: unknown message type %q", ErrInvalidInput, in.MessageType)
	}
	in.Content = strings.TrimSpace(in.Content)
	if in.Content == "" && in.MessageType == models.MessageTypeText {
		return fmt.Errorf("%w: empty message", ErrInvalidInput)
	}
	if utf8.RuneCountInString(in.Content) > MaxContentLength {
		return fmt.Errorf("%w: message longer than %d characters", ErrInvalidInput, MaxContentLength)
	}
	if in.ReplyTo != nil && *in.ReplyTo <= 0 {
		in.ReplyTo = nil
	}
	return nil
}

// SendChatMessage stores a message, bumps the unread counters of the other
// members, and publishes it to the chat room. The sender must be a member.
func (d *Dispatcher) SendChatMessage(ctx context.Context, in ChatMessageInput) (*models.Message, Delivery, error) {
	var del Delivery
	if err := in.validate(); err != nil {
		return nil, del, err
	}

	sender, err := d.actor(ctx, in.SenderID)
	if err != nil {
		metrics.RecordDispatch(eventbus.KindMessage, outcomePersistFailed)
		return nil, del, fmt.Errorf("load sender %d: %w", in.SenderID, err)
	}

	msg := &models.Message{
		RoomID:      in.RoomID,
		SenderID:    in.SenderID,
		Content:     in.Content,
		MessageType: in.MessageType,
		ReplyTo:     in.ReplyTo,
	}
	recipients, err := d.store.CreateMessage(ctx, msg)
	if err != nil {
		metrics.RecordDispatch(eventbus.KindMessage, outcomePersistFailed)
		return nil, del, fmt.Errorf("store message: %w", err)
	}
	del.RecordID = msg.ID

	d.publishPayload(ctx, eventbus.KindMessage, eventbus.ChatRoom(in.RoomID), eventbus.KindMessage, MessageFrame{
		MessageID:      msg.ID,
		RoomID:         msg.RoomID,
		Content:        msg.Content,
		MessageType:    msg.MessageType,
		SenderID:       sender.ID,
		SenderUsername: sender.Username,
		SenderAvatar:   sender.AvatarURL,
		ReplyTo:        msg.ReplyTo,
		CreatedAt:      msg.CreatedAt,
	}, 0, &del)

	if d.opts.NotifyMembers && len(recipients) > 0 {
		d.notifyMembers(ctx, msg, sender, recipients)
	}
	return msg, del, nil
}

// notifyMembers creates a message notification for each recipient. Failures
// are logged; the chat message itself has already been delivered.
func (d *Dispatcher) notifyMembers(ctx context.Context, msg *models.Message, sender models.ActorSummary, recipients []int64) {
	extra, err := json.Marshal(map[string]int64{"room_id": msg.RoomID, "message_id": msg.ID})
	if err != nil {
		d.logger.Error().Err(err).Msg("encode member notification extra")
		return
	}

	actorID := sender.ID
	body := truncateRunes(msg.Content, notificationBodyLength)
	batch := make([]models.Notification, 0, len(recipients))
	for _, id := range recipients {
		batch = append(batch, models.Notification{
			RecipientID: id,
			ActorID:     &actorID,
			Kind:        models.NotificationKindMessage,
			Title:       "New message from " + sender.Username,
			Body:        body,
			Extra:       extra,
			DedupKey:    fmt.Sprintf("message:%d", msg.ID),
		})
	}

	created, err := d.store.CreateNotifications(ctx, batch)
	if err != nil {
		metrics.RecordDispatch(models.NotificationKindMessage, outcomePersistFailed)
		d.logger.Warn().Err(err).Int64("message_id", msg.ID).Msg("member notifications not stored")
		return
	}
	for i := range created {
		var del Delivery
		d.pushNotification(ctx, &created[i], sender, map[string]any{"room_id": msg.RoomID, "message_id": msg.ID}, &del)
	}
}

// MarkMessageRead records that reader has read messageID, resets the reader's
// unread counter and announces the receipt to the room. Repeating a receipt
// changes nothing and publishes nothing.
func (d *Dispatcher) MarkMessageRead(ctx context.Context, roomID, readerID, messageID int64) (*models.ReadReceipt, Delivery, error) {
	var del Delivery
	if roomID <= 0 || readerID <= 0 || messageID <= 0 {
		return nil, del, fmt.Errorf("%w: room, reader and message are required", ErrInvalidInput)
	}

	receipt, err := d.store.MarkMessageRead(ctx, roomID, readerID, messageID)
	if err != nil {
		metrics.RecordDispatch(eventbus.KindRead, outcomePersistFailed)
		return nil, del, fmt.Errorf("store read receipt: %w", err)
	}
	del.RecordID = receipt.MessageID
	if !receipt.Created {
		metrics.RecordDispatch(eventbus.KindRead, outcomeDuplicate)
		return receipt, del, nil
	}

	d.publishPayload(ctx, eventbus.KindRead, eventbus.ChatRoom(roomID), eventbus.KindRead, ReadFrame{
		MessageID: receipt.MessageID,
		UserID:    receipt.SubscriberID,
		ReadAt:    receipt.ReadAt,
	}, 0, &del)
	return receipt, del, nil
}

// PublishPresence announces that a subscriber came online or went offline
// in a chat room. The subscriber's own connections do not receive it.
func (d *Dispatcher) PublishPresence(ctx context.Context, roomID, subscriberID int64, username, status string) error {
	var del Delivery
	d.publishPayload(ctx, eventbus.KindStatus, eventbus.ChatRoom(roomID), eventbus.KindStatus, StatusFrame{
		UserID:   subscriberID,
		Username: username,
		Status:   status,
	}, subscriberID, &del)
	return del.PushErr
}

// PublishTyping relays a typing indicator. Nothing is stored.
func (d *Dispatcher) PublishTyping(ctx context.Context, roomID, subscriberID int64, username string, isTyping bool) error {
	var del Delivery
	d.publishPayload(ctx, eventbus.KindTyping, eventbus.ChatRoom(roomID), eventbus.KindTyping, TypingFrame{
		UserID:   subscriberID,
		Username: username,
		IsTyping: isTyping,
	}, subscriberID, &del)
	return del.PushErr
}

// GrantMembership adds a subscriber to a room. It reports false when the
// subscriber was already a member.
func (d *Dispatcher) GrantMembership(ctx context.Context, roomID, subscriberID int64, role string) (bool, error) {
	if roomID <= 0 || subscriberID <= 0 {
		return false, fmt.Errorf("%w: room and subscriber are required", ErrInvalidInput)
	}
	if role == "" {
		role = models.MemberRoleMember
	}
	added, err := d.store.AddMember(ctx, roomID, subscriberID, role)
	if err != nil {
		return false, fmt.Errorf("add member: %w", err)
	}
	return added, nil
}

// RevokeMembership removes a subscriber from a room and evicts every
// connection of that subscriber joined to the room. Local connections are
// closed directly; other processes are told through an evict event, which
// is retried before the failure is reported in the Delivery.
func (d *Dispatcher) RevokeMembership(ctx context.Context, roomID, subscriberID int64) (bool, Delivery, error) {
	var del Delivery
	if roomID <= 0 || subscriberID <= 0 {
		return false, del, fmt.Errorf("%w: room and subscriber are required", ErrInvalidInput)
	}
	removed, err := d.store.RemoveMember(ctx, roomID, subscriberID)
	if err != nil {
		return false, del, fmt.Errorf("remove member: %w", err)
	}
	if !removed {
		return false, del, nil
	}

	if e := d.evictor; e != nil {
		if n := e.EvictLocal(roomID, subscriberID); n > 0 {
			d.logger.Info().
				Int64("room_id", roomID).
				Int64("subscriber_id", subscriberID).
				Int("connections", n).
				Msg("evicted local connections")
		}
	}

	ev, err := eventbus.NewEvent(eventbus.ChatRoom(roomID), eventbus.KindEvict, nil)
	if err != nil {
		del.PushErr = err
		return true, del, nil
	}
	ev.Target = subscriberID
	d.publishEvict(ctx, ev, &del)
	return true, del, nil
}

// publishEvict publishes ev, retrying with a linear backoff.
func (d *Dispatcher) publishEvict(ctx context.Context, ev eventbus.Event, del *Delivery) {
	for attempt := 1; ; attempt++ {
		del.PushErr = nil
		d.publish(ctx, eventbus.KindEvict, ev, del)
		if del.Pushed || attempt >= evictPublishAttempts {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * d.opts.EvictRetryBackoff):
		}
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
