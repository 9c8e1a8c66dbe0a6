// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package websocket

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/switchboard/internal/eventbus"
	"github.com/tomtom215/switchboard/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "error",
		Format: "console",
		Output: io.Discard,
	})
}

// countingBus wraps a memory bus and tracks live subscriptions per room.
type countingBus struct {
	*eventbus.MemoryBus

	mu     sync.Mutex
	active map[string]int
	fail   atomic.Bool
}

func newCountingBus(t *testing.T) *countingBus {
	t.Helper()
	b := &countingBus{
		MemoryBus: eventbus.NewMemoryBus(eventbus.MemoryConfig{}),
		active:    make(map[string]int),
	}
	t.Cleanup(func() { _ = b.MemoryBus.Close() })
	return b
}

func (b *countingBus) Subscribe(ctx context.Context, room string, h eventbus.Handler) (eventbus.Subscription, error) {
	if b.fail.Load() {
		return nil, errors.New("subscribe refused")
	}
	sub, err := b.MemoryBus.Subscribe(ctx, room, h)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.active[room]++
	b.mu.Unlock()
	return &countedSub{inner: sub, bus: b, room: room}, nil
}

func (b *countingBus) subscriptions(room string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active[room]
}

type countedSub struct {
	inner eventbus.Subscription
	bus   *countingBus
	room  string
	once  sync.Once
}

func (s *countedSub) Unsubscribe() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		s.bus.active[s.room]--
		s.bus.mu.Unlock()
	})
	return s.inner.Unsubscribe()
}

// newTestClient returns an authenticated client without a network connection.
func newTestClient(subscriberID int64, endpoint Endpoint, sendBuffer int) *Client {
	c := NewClient(nil, endpoint, Settings{SendBuffer: sendBuffer})
	c.state.Store(int32(StateAuthenticating))
	c.authenticated(subscriberID, "user")
	return c
}

// drain returns the frames queued for c without blocking.
func drain(c *Client) []string {
	var out []string
	for {
		select {
		case f := <-c.send:
			out = append(out, string(f))
		default:
			return out
		}
	}
}

func mustEvent(t *testing.T, room, kind string, payload any) eventbus.Event {
	t.Helper()
	ev, err := eventbus.NewEvent(room, kind, payload)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	return ev
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out: %s", msg)
}

func TestRooms_JoinRefCountsSubscription(t *testing.T) {
	bus := newCountingBus(t)
	rooms := NewRooms(bus)
	ctx := context.Background()
	room := eventbus.ChatRoom(1)

	a := newTestClient(1, EndpointChat, 8)
	b := newTestClient(2, EndpointChat, 8)

	for _, c := range []*Client{a, b, a} {
		if err := rooms.Join(ctx, room, c); err != nil {
			t.Fatalf("Join: %v", err)
		}
	}
	if got := bus.subscriptions(room); got != 1 {
		t.Errorf("subscriptions = %d, want 1", got)
	}
	if got := len(rooms.Members(room)); got != 2 {
		t.Errorf("members = %d, want 2", got)
	}

	rooms.Leave(room, a)
	if got := bus.subscriptions(room); got != 1 {
		t.Errorf("subscriptions after first leave = %d, want 1", got)
	}
	rooms.Leave(room, b)
	if got := bus.subscriptions(room); got != 0 {
		t.Errorf("subscriptions after last leave = %d, want 0", got)
	}
	if rooms.ActiveRooms() != 0 {
		t.Errorf("ActiveRooms = %d, want 0", rooms.ActiveRooms())
	}
	if len(a.Rooms()) != 0 || len(b.Rooms()) != 0 {
		t.Error("clients still list rooms after leaving")
	}

	// Leaving a room never joined is harmless.
	rooms.Leave(room, a)
}

func TestRooms_JoinFailureLeavesNoMembership(t *testing.T) {
	bus := newCountingBus(t)
	bus.fail.Store(true)
	rooms := NewRooms(bus)
	c := newTestClient(1, EndpointChat, 8)

	if err := rooms.Join(context.Background(), eventbus.ChatRoom(1), c); err == nil {
		t.Fatal("Join succeeded with a failing bus")
	}
	if len(c.Rooms()) != 0 || rooms.ActiveRooms() != 0 {
		t.Errorf("membership left behind: client rooms %v, active %d", c.Rooms(), rooms.ActiveRooms())
	}

	if err := rooms.Join(context.Background(), "lobby", c); !errors.Is(err, eventbus.ErrInvalidRoom) {
		t.Errorf("invalid room err = %v", err)
	}
}

func TestRooms_JoinRejectsClosingClient(t *testing.T) {
	rooms := NewRooms(newCountingBus(t))
	c := newTestClient(1, EndpointChat, 8)
	c.Close(CloseNormal, reasonClientClosed)

	if err := rooms.Join(context.Background(), eventbus.ChatRoom(1), c); !errors.Is(err, errClientClosing) {
		t.Errorf("err = %v, want errClientClosing", err)
	}
}

func TestRooms_NoCrossRoomLeakage(t *testing.T) {
	bus := newCountingBus(t)
	rooms := NewRooms(bus)
	ctx := context.Background()

	inA := newTestClient(1, EndpointChat, 8)
	inB := newTestClient(2, EndpointChat, 8)
	if err := rooms.Join(ctx, eventbus.ChatRoom(1), inA); err != nil {
		t.Fatal(err)
	}
	if err := rooms.Join(ctx, eventbus.ChatRoom(2), inB); err != nil {
		t.Fatal(err)
	}

	if err := bus.Publish(ctx, mustEvent(t, eventbus.ChatRoom(1), eventbus.KindMessage, map[string]string{"content": "for A"})); err != nil {
		t.Fatal(err)
	}

	if got := drain(inA); len(got) != 1 || got[0] != `{"type":"message","content":"for A"}` {
		t.Errorf("room 1 member got %v", got)
	}
	if got := drain(inB); len(got) != 0 {
		t.Errorf("room 2 member got %v", got)
	}
}

func TestRooms_LocalDispatchOrderAndExclude(t *testing.T) {
	rooms := NewRooms(newCountingBus(t))
	ctx := context.Background()
	room := eventbus.ChatRoom(5)

	author := newTestClient(10, EndpointChat, 256)
	other := newTestClient(11, EndpointChat, 256)
	for _, c := range []*Client{author, other} {
		if err := rooms.Join(ctx, room, c); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 100; i++ {
		rooms.LocalDispatch(mustEvent(t, room, eventbus.KindMessage, map[string]int{"n": i}))
	}
	typing := mustEvent(t, room, eventbus.KindTyping, map[string]bool{"is_typing": true})
	typing.Exclude = author.SubscriberID()
	rooms.LocalDispatch(typing)

	for _, c := range []*Client{author, other} {
		frames := drain(c)
		messages := 0
		for i, f := range frames {
			if i < 100 {
				want := `{"type":"message","n":` + strconv.Itoa(i) + `}`
				if f != want {
					t.Fatalf("client %d frame %d = %s, want %s", c.ID(), i, f, want)
				}
				messages++
			}
		}
		if messages != 100 {
			t.Errorf("client %d got %d messages", c.ID(), messages)
		}
		gotTyping := len(frames) == 101
		if c == author && gotTyping {
			t.Error("typing indicator echoed to its author")
		}
		if c == other && !gotTyping {
			t.Error("other member did not get the typing indicator")
		}
	}
}

func TestRooms_SlowConsumerIsClosed(t *testing.T) {
	rooms := NewRooms(newCountingBus(t))
	ctx := context.Background()
	room := eventbus.ChatRoom(1)

	slow := newTestClient(1, EndpointChat, 2)
	fast := newTestClient(2, EndpointChat, 64)
	slow.onClose = func(c *Client) { rooms.LeaveAll(c) }
	for _, c := range []*Client{slow, fast} {
		if err := rooms.Join(ctx, room, c); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 5; i++ {
		rooms.LocalDispatch(mustEvent(t, room, eventbus.KindMessage, nil))
	}

	select {
	case <-slow.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("slow consumer was not closed")
	}
	if slow.CloseCode() != ClosePolicyViolation {
		t.Errorf("close code = %d, want %d", slow.CloseCode(), ClosePolicyViolation)
	}
	if got := len(drain(fast)); got != 5 {
		t.Errorf("fast consumer got %d frames, want 5", got)
	}
	if got := len(rooms.Members(room)); got != 1 {
		t.Errorf("members after teardown = %d, want 1", got)
	}
}

func TestRooms_EvictClosesTargetOnly(t *testing.T) {
	bus := newCountingBus(t)
	rooms := NewRooms(bus)
	ctx := context.Background()
	room := eventbus.ChatRoom(3)

	victimPhone := newTestClient(7, EndpointChat, 8)
	victimLaptop := newTestClient(7, EndpointChat, 8)
	bystander := newTestClient(8, EndpointChat, 8)
	for _, c := range []*Client{victimPhone, victimLaptop, bystander} {
		c.onClose = func(c *Client) { rooms.LeaveAll(c) }
		if err := rooms.Join(ctx, room, c); err != nil {
			t.Fatal(err)
		}
	}

	evict := mustEvent(t, room, eventbus.KindEvict, nil)
	evict.Target = 7
	if err := bus.Publish(ctx, evict); err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish(ctx, mustEvent(t, room, eventbus.KindMessage, nil)); err != nil {
		t.Fatal(err)
	}

	for _, c := range []*Client{victimPhone, victimLaptop} {
		select {
		case <-c.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("evicted connection not closed")
		}
		if c.CloseCode() != CloseForbidden {
			t.Errorf("close code = %d, want %d", c.CloseCode(), CloseForbidden)
		}
		if got := drain(c); len(got) != 0 {
			t.Errorf("evicted connection received %v", got)
		}
	}
	if got := drain(bystander); len(got) != 1 {
		t.Errorf("bystander got %v, want one message and no evict frame", got)
	}
	if bystander.State() != StateAuthenticated {
		t.Errorf("bystander state = %s", bystander.State())
	}
}

func TestClient_CloseRunsCleanupOnce(t *testing.T) {
	bus := newCountingBus(t)
	rooms := NewRooms(bus)
	registry := NewRegistry(rooms, bus)
	c := newTestClient(1, EndpointChat, 8)
	registry.Register(c)
	if err := rooms.Join(context.Background(), eventbus.ChatRoom(1), c); err != nil {
		t.Fatal(err)
	}

	var cleanups, unregistered atomic.Int32
	c.onClose = func(c *Client) {
		cleanups.Add(1)
		rooms.LeaveAll(c)
		if registry.Unregister(c) {
			unregistered.Add(1)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Close(CloseNormal, reasonClientClosed)
		}()
		go func() {
			defer wg.Done()
			registry.Unregister(c)
		}()
	}
	wg.Wait()

	if got := cleanups.Load(); got != 1 {
		t.Errorf("cleanup ran %d times", got)
	}
	if c.State() != StateClosed {
		t.Errorf("state = %s", c.State())
	}
	if registry.Count() != 0 || rooms.ActiveRooms() != 0 {
		t.Errorf("count = %d, active rooms = %d", registry.Count(), rooms.ActiveRooms())
	}
	if bus.subscriptions(eventbus.ChatRoom(1)) != 0 {
		t.Error("room subscription leaked")
	}
	if c.enqueue([]byte(`{}`)) != nil || len(drain(c)) != 0 {
		t.Error("closed client accepted a frame")
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateConnecting:     "connecting",
		StateAuthenticating: "authenticating",
		StateAuthenticated:  "authenticated",
		StateClosing:        "closing",
		StateClosed:         "closed",
		State(42):           "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
