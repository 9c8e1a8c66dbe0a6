// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/switchboard/internal/cache"
	"github.com/tomtom215/switchboard/internal/eventbus"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/metrics"
	"github.com/tomtom215/switchboard/internal/models"
)

// ErrInvalidInput is returned when an action fails validation. Nothing is stored.
var ErrInvalidInput = errors.New("dispatch: invalid input")

// Dispatch outcomes used in metrics.
const (
	outcomeDelivered     = "delivered"
	outcomePushFailed    = "push_failed"
	outcomeSuppressed    = "suppressed"
	outcomePersistFailed = "persist_failed"
	outcomeDuplicate     = "duplicate"
)

// Store is the durable collaborator of the Dispatcher. *database.DB implements it.
type Store interface {
	GetActorSummary(ctx context.Context, id int64) (models.ActorSummary, error)

	CreateMessage(ctx context.Context, m *models.Message) ([]int64, error)
	MarkMessageRead(ctx context.Context, roomID, readerID, messageID int64) (*models.ReadReceipt, error)
	AddMember(ctx context.Context, roomID, subscriberID int64, role string) (bool, error)
	RemoveMember(ctx context.Context, roomID, subscriberID int64) (bool, error)

	CreateNotification(ctx context.Context, n *models.Notification) (bool, error)
	CreateNotifications(ctx context.Context, batch []models.Notification) ([]models.Notification, error)
	CreateBroadcastNotifications(ctx context.Context, tmpl models.Notification, dedupKey string) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, recipientID, id int64) (bool, error)
	MarkAllNotificationsRead(ctx context.Context, recipientID int64) (int64, error)
}

// Delivery reports what happened to one action.
type Delivery struct {
	// RecordID is the store-assigned id of the durable record, if any.
	RecordID int64 `json:"record_id,omitempty"`

	// Pushed is true when the room event was accepted by the bus.
	Pushed bool `json:"pushed"`

	// PushErr is the publish failure. The record is kept regardless.
	PushErr error `json:"-"`

	// Suppressed is true when the actor was also the recipient.
	Suppressed bool `json:"suppressed,omitempty"`
}

// Options configures a Dispatcher.
type Options struct {
	// NotifyMembers creates a message notification for every other member
	// after a chat message is stored.
	NotifyMembers bool

	// ActorCacheTTL bounds how stale a cached username or avatar may be.
	ActorCacheTTL time.Duration

	// EvictRetryBackoff is the pause before the first evict publish retry.
	// Later retries wait proportionally longer.
	EvictRetryBackoff time.Duration
}

// Evictor closes the connections of this process that a subscriber has
// joined to a chat room. *websocket.Hub implements it.
type Evictor interface {
	EvictLocal(roomID, subscriberID int64) int
}

// Dispatcher executes domain actions.
type Dispatcher struct {
	store  Store
	bus    eventbus.Bus
	actors *cache.Cache[int64, models.ActorSummary]
	opts   Options
	logger zerolog.Logger

	evictor Evictor
}

// New creates a Dispatcher. Call Close to stop the actor cache sweeper.
func New(store Store, bus eventbus.Bus, opts Options) *Dispatcher {
	if opts.ActorCacheTTL <= 0 {
		opts.ActorCacheTTL = 5 * time.Minute
	}
	if opts.EvictRetryBackoff <= 0 {
		opts.EvictRetryBackoff = 100 * time.Millisecond
	}
	return &Dispatcher{
		store:  store,
		bus:    bus,
		actors: cache.New[int64, models.ActorSummary](opts.ActorCacheTTL, opts.ActorCacheTTL),
		opts:   opts,
		logger: logging.WithComponent("dispatch"),
	}
}

// Close releases the actor cache.
func (d *Dispatcher) Close() {
	d.actors.Close()
}

// SetEvictor registers the local connection owner. It must be called
// before the Dispatcher handles requests.
func (d *Dispatcher) SetEvictor(e Evictor) {
	d.evictor = e
}

// Bus returns the bus events are published on.
func (d *Dispatcher) Bus() eventbus.Bus {
	return d.bus
}

// actor returns the cached summary of a subscriber.
func (d *Dispatcher) actor(ctx context.Context, id int64) (models.ActorSummary, error) {
	return d.actors.GetOrLoad(ctx, id, d.store.GetActorSummary)
}

// publish sends one event and fills the delivery. It never returns an error;
// failures are logged and counted.
func (d *Dispatcher) publish(ctx context.Context, kind string, ev eventbus.Event, del *Delivery) {
	err := d.bus.Publish(ctx, ev)
	if err != nil {
		del.PushErr = err
		metrics.RecordDispatch(kind, outcomePushFailed)
		d.logger.Warn().
			Err(err).
			Str("room", ev.Room).
			Str("kind", ev.Kind).
			Int64("record_id", del.RecordID).
			Msg("event publish failed, record kept")
		return
	}
	del.Pushed = true
	metrics.RecordDispatch(kind, outcomeDelivered)
}

// publishPayload builds and publishes an event for payload.
func (d *Dispatcher) publishPayload(ctx context.Context, kind, room, evKind string, payload any, exclude int64, del *Delivery) {
	ev, err := eventbus.NewEvent(room, evKind, payload)
	if err != nil {
		del.PushErr = err
		metrics.RecordDispatch(kind, outcomePushFailed)
		d.logger.Error().Err(err).Str("room", room).Msg("event payload encoding failed")
		return
	}
	ev.Exclude = exclude
	d.publish(ctx, kind, ev, del)
}

// PublishToRoom publishes a payload to a room without storing anything.
// It backs the publish API used by other backend services.
func (d *Dispatcher) PublishToRoom(ctx context.Context, room, kind string, payload any) error {
	if _, _, err := eventbus.ParseRoomKey(room); err != nil {
		return err
	}
	if kind == "" || kind == eventbus.KindEvict {
		return ErrInvalidInput
	}
	ev, err := eventbus.NewEvent(room, kind, payload)
	if err != nil {
		return err
	}
	if err := d.bus.Publish(ctx, ev); err != nil {
		metrics.RecordDispatch(kind, outcomePushFailed)
		return err
	}
	metrics.RecordDispatch(kind, outcomeDelivered)
	return nil
}
