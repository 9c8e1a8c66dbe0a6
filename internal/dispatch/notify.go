// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package dispatch

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/switchboard/internal/eventbus"
	"github.com/tomtom215/switchboard/internal/metrics"
	"github.com/tomtom215/switchboard/internal/models"
)

// Action is a domain event that notifies one recipient. The concrete types
// below are the only implementations.
type Action interface {
	// Kind is the notification kind stored and pushed.
	Kind() string

	// Parties returns the acting and the notified subscriber.
	Parties() (actor, recipient int64)

	render(actor models.ActorSummary) rendered
}

type rendered struct {
	title    string
	body     string
	extra    map[string]any
	dedupKey string
}

// Like is a reaction to a post.
type Like struct {
	ActorID     int64
	RecipientID int64
	PostID      int64
}

func (Like) Kind() string              { return models.NotificationKindLike }
func (a Like) Parties() (int64, int64) { return a.ActorID, a.RecipientID }
func (a Like) render(actor models.ActorSummary) rendered {
	return rendered{
		title:    actor.Username + " liked your post",
		extra:    map[string]any{"post_id": a.PostID},
		dedupKey: fmt.Sprintf("like:%d:%d", a.PostID, a.ActorID),
	}
}

// Comment is a comment on a post.
type Comment struct {
	ActorID     int64
	RecipientID int64
	PostID      int64
	CommentID   int64
}

func (Comment) Kind() string              { return models.NotificationKindComment }
func (a Comment) Parties() (int64, int64) { return a.ActorID, a.RecipientID }
func (a Comment) render(actor models.ActorSummary) rendered {
	return rendered{
		title:    actor.Username + " commented on your post",
		extra:    map[string]any{"post_id": a.PostID, "comment_id": a.CommentID},
		dedupKey: fmt.Sprintf("comment:%d", a.CommentID),
	}
}

// FriendRequest is a pending friend request.
type FriendRequest struct {
	ActorID     int64
	RecipientID int64
	RequestID   int64
}

func (FriendRequest) Kind() string              { return models.NotificationKindFriendRequest }
func (a FriendRequest) Parties() (int64, int64) { return a.ActorID, a.RecipientID }
func (a FriendRequest) render(actor models.ActorSummary) rendered {
	return rendered{
		title:    actor.Username + " sent you a friend request",
		extra:    map[string]any{"request_id": a.RequestID},
		dedupKey: fmt.Sprintf("friend_request:%d", a.RequestID),
	}
}

// FriendAccepted tells the requester their request was accepted.
type FriendAccepted struct {
	ActorID     int64
	RecipientID int64
	RequestID   int64
}

func (FriendAccepted) Kind() string              { return models.NotificationKindFriendAccepted }
func (a FriendAccepted) Parties() (int64, int64) { return a.ActorID, a.RecipientID }
func (a FriendAccepted) render(actor models.ActorSummary) rendered {
	return rendered{
		title:    actor.Username + " accepted your friend request",
		extra:    map[string]any{"request_id": a.RequestID},
		dedupKey: fmt.Sprintf("friend_accepted:%d", a.RequestID),
	}
}

// Follow is a new follower. Follows are not deduplicated.
type Follow struct {
	ActorID     int64
	RecipientID int64
}

func (Follow) Kind() string              { return models.NotificationKindFollow }
func (a Follow) Parties() (int64, int64) { return a.ActorID, a.RecipientID }
func (a Follow) render(actor models.ActorSummary) rendered {
	return rendered{title: actor.Username + " started following you"}
}

// Mention names the recipient in a post or comment.
type Mention struct {
	ActorID     int64
	RecipientID int64
	PostID      int64
	CommentID   int64
}

func (Mention) Kind() string              { return models.NotificationKindMention }
func (a Mention) Parties() (int64, int64) { return a.ActorID, a.RecipientID }
func (a Mention) render(actor models.ActorSummary) rendered {
	extra := map[string]any{"post_id": a.PostID}
	if a.CommentID > 0 {
		extra["comment_id"] = a.CommentID
	}
	return rendered{
		title:    actor.Username + " mentioned you",
		extra:    extra,
		dedupKey: fmt.Sprintf("mention:%d:%d", a.PostID, a.CommentID),
	}
}

// GroupInvite invites the recipient to a chat room.
type GroupInvite struct {
	ActorID     int64
	RecipientID int64
	RoomID      int64
	RoomName    string
}

func (GroupInvite) Kind() string              { return models.NotificationKindGroupInvite }
func (a GroupInvite) Parties() (int64, int64) { return a.ActorID, a.RecipientID }
func (a GroupInvite) render(actor models.ActorSummary) rendered {
	title := actor.Username + " invited you to a group"
	if a.RoomName != "" {
		title = actor.Username + " invited you to " + a.RoomName
	}
	return rendered{
		title:    title,
		extra:    map[string]any{"room_id": a.RoomID},
		dedupKey: fmt.Sprintf("group_invite:%d", a.RoomID),
	}
}

// ActionFields is the wire form of an action, as posted by other services.
type ActionFields struct {
	Kind        string `json:"kind" validate:"required,oneof=like comment friend_request friend_accepted follow mention group_invite"`
	ActorID     int64  `json:"actor_id" validate:"required,gt=0"`
	RecipientID int64  `json:"recipient_id" validate:"required,gt=0"`
	PostID      int64  `json:"post_id,omitempty" validate:"gte=0"`
	CommentID   int64  `json:"comment_id,omitempty" validate:"gte=0"`
	RequestID   int64  `json:"request_id,omitempty" validate:"gte=0"`
	RoomID      int64  `json:"room_id,omitempty" validate:"gte=0"`
	RoomName    string `json:"room_name,omitempty" validate:"max=255"`
}

// ParseAction converts wire fields into an Action.
func ParseAction(f ActionFields) (Action, error) {
	switch f.Kind {
	case models.NotificationKindLike:
		return Like{ActorID: f.ActorID, RecipientID: f.RecipientID, PostID: f.PostID}, nil
	case models.NotificationKindComment:
		return Comment{ActorID: f.ActorID, RecipientID: f.RecipientID, PostID: f.PostID, CommentID: f.CommentID}, nil
	case models.NotificationKindFriendRequest:
		return FriendRequest{ActorID: f.ActorID, RecipientID: f.RecipientID, RequestID: f.RequestID}, nil
	case models.NotificationKindFriendAccepted:
		return FriendAccepted{ActorID: f.ActorID, RecipientID: f.RecipientID, RequestID: f.RequestID}, nil
	case models.NotificationKindFollow:
		return Follow{ActorID: f.ActorID, RecipientID: f.RecipientID}, nil
	case models.NotificationKindMention:
		return Mention{ActorID: f.ActorID, RecipientID: f.RecipientID, PostID: f.PostID, CommentID: f.CommentID}, nil
	case models.NotificationKindGroupInvite:
		return GroupInvite{ActorID: f.ActorID, RecipientID: f.RecipientID, RoomID: f.RoomID, RoomName: f.RoomName}, nil
	default:
		return nil, fmt.Errorf("%w: unknown action kind %q", ErrInvalidInput, f.Kind)
	}
}

// Notify stores a notification for the action's recipient and pushes it to
// the recipient's notification room. An actor notifying themselves is
// suppressed: nothing is stored or published. A repeated action with the
// same deduplication key returns the existing notification without a push.
func (d *Dispatcher) Notify(ctx context.Context, a Action) (*models.Notification, Delivery, error) {
	var del Delivery
	kind := a.Kind()
	actorID, recipientID := a.Parties()
	if actorID <= 0 || recipientID <= 0 {
		return nil, del, fmt.Errorf("%w: actor and recipient are required", ErrInvalidInput)
	}
	if actorID == recipientID {
		del.Suppressed = true
		metrics.RecordDispatch(kind, outcomeSuppressed)
		return nil, del, nil
	}

	actor, err := d.actor(ctx, actorID)
	if err != nil {
		metrics.RecordDispatch(kind, outcomePersistFailed)
		return nil, del, fmt.Errorf("load actor %d: %w", actorID, err)
	}

	r := a.render(actor)
	n := &models.Notification{
		RecipientID: recipientID,
		ActorID:     &actorID,
		Kind:        kind,
		Title:       r.title,
		Body:        r.body,
		DedupKey:    r.dedupKey,
	}
	if len(r.extra) > 0 {
		if n.Extra, err = json.Marshal(r.extra); err != nil {
			return nil, del, fmt.Errorf("encode %s extra: %w", kind, err)
		}
	}

	created, err := d.store.CreateNotification(ctx, n)
	if err != nil {
		metrics.RecordDispatch(kind, outcomePersistFailed)
		return nil, del, fmt.Errorf("store %s notification: %w", kind, err)
	}
	del.RecordID = n.ID
	if !created {
		metrics.RecordDispatch(kind, outcomeDuplicate)
		return n, del, nil
	}

	d.pushNotification(ctx, n, actor, r.extra, &del)
	return n, del, nil
}

// pushNotification publishes a stored notification to its recipient.
func (d *Dispatcher) pushNotification(ctx context.Context, n *models.Notification, actor models.ActorSummary, extra map[string]any, del *Delivery) {
	del.RecordID = n.ID
	frame := NotificationFrame{
		ID:           n.ID,
		Kind:         n.Kind,
		Title:        n.Title,
		Body:         n.Body,
		Sender:       actor.Username,
		SenderAvatar: actor.AvatarURL,
		CreatedAt:    n.CreatedAt,
		Extra:        extra,
	}
	d.publishPayload(ctx, n.Kind, eventbus.NotificationRoom(n.RecipientID), eventbus.KindNotification, frame.fields(), 0, del)
}

// MarkNotificationRead marks one of the recipient's notifications as read.
// It reports false when it was already read.
func (d *Dispatcher) MarkNotificationRead(ctx context.Context, recipientID, notificationID int64) (bool, error) {
	if recipientID <= 0 || notificationID <= 0 {
		return false, fmt.Errorf("%w: recipient and notification are required", ErrInvalidInput)
	}
	changed, err := d.store.MarkNotificationRead(ctx, recipientID, notificationID)
	if err != nil {
		return false, fmt.Errorf("mark notification %d read: %w", notificationID, err)
	}
	return changed, nil
}

// MarkAllNotificationsRead marks every unread notification of the recipient
// as read and returns how many changed.
func (d *Dispatcher) MarkAllNotificationsRead(ctx context.Context, recipientID int64) (int64, error) {
	if recipientID <= 0 {
		return 0, fmt.Errorf("%w: recipient is required", ErrInvalidInput)
	}
	n, err := d.store.MarkAllNotificationsRead(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return n, nil
}
