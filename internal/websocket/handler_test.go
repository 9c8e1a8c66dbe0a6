// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/switchboard/internal/auth"
	"github.com/tomtom215/switchboard/internal/config"
	"github.com/tomtom215/switchboard/internal/database"
	"github.com/tomtom215/switchboard/internal/dispatch"
	"github.com/tomtom215/switchboard/internal/eventbus"
	"github.com/tomtom215/switchboard/internal/testinfra"
)

const testSecret = "handler-test-secret-with-enough-length"

// harness runs a hub behind an httptest server with a real database and an
// in-memory bus. uma and victor are members of room; wendy is not.
type harness struct {
	t        *testing.T
	db       *database.DB
	bus      *eventbus.MemoryBus
	dispatch *dispatch.Dispatcher
	hub      *Hub
	jwt      *auth.JWTManager
	srv      *httptest.Server

	uma, victor, wendy int64
	room               int64

	stop    context.CancelFunc
	stopped chan struct{}
}

// harnessOptions swaps collaborators of the hub under test.
type harnessOptions struct {
	// dispatchBus wraps the bus the dispatcher publishes on. The hub keeps
	// the real bus.
	dispatchBus func(eventbus.Bus) eventbus.Bus

	// members wraps the membership checker of the hub.
	members func(MembershipChecker) MembershipChecker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, harnessOptions{})
}

func newHarnessWith(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	db := testinfra.NewTestDB(t)
	ids := testinfra.CreateSubscribers(t, db, "uma", "victor", "wendy")
	room := testinfra.CreateRoom(t, db, ids[0], ids[1])

	bus := eventbus.NewMemoryBus(eventbus.MemoryConfig{})
	t.Cleanup(func() { _ = bus.Close() })

	var publishBus eventbus.Bus = bus
	if opts.dispatchBus != nil {
		publishBus = opts.dispatchBus(bus)
	}
	disp := dispatch.New(db, publishBus, dispatch.Options{EvictRetryBackoff: time.Millisecond})
	t.Cleanup(disp.Close)

	jwtManager, err := auth.NewJWTManager(&config.SecurityConfig{JWTSecret: testSecret, TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	authn := auth.NewAuthenticator(jwtManager, auth.NewMemoryRevocationStore(), db)

	var members MembershipChecker = db
	if opts.members != nil {
		members = opts.members(db)
	}
	hub := NewHub(bus, authn, members, disp, HubConfig{
		Settings:       Settings{InboundRate: 10000, InboundBurst: 10000, WriteWait: 2 * time.Second},
		AllowedOrigins: []string{"*"},
	})
	disp.SetEvictor(hub)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/chat/{room_id}", func(w http.ResponseWriter, r *http.Request) {
		roomID, err := strconv.ParseInt(r.PathValue("room_id"), 10, 64)
		if err != nil || roomID <= 0 {
			http.Error(w, "invalid room id", http.StatusBadRequest)
			return
		}
		hub.ServeChat(w, r, roomID)
	})
	mux.HandleFunc("GET /ws/notifications", hub.ServeNotifications)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		t:        t,
		db:       db,
		bus:      bus,
		dispatch: disp,
		hub:      hub,
		jwt:      jwtManager,
		srv:      srv,
		uma:      ids[0],
		victor:   ids[1],
		wendy:    ids[2],
		room:     room,
		stop:     cancel,
		stopped:  make(chan struct{}),
	}
	go func() {
		defer close(h.stopped)
		_ = hub.RunWithContext(ctx)
	}()
	// Registered after srv.Close so it runs first.
	t.Cleanup(h.shutdown)
	return h
}

func (h *harness) shutdown() {
	h.stop()
	select {
	case <-h.stopped:
	case <-time.After(5 * time.Second):
		h.t.Error("hub did not stop")
	}
}

func (h *harness) token(subscriberID int64, username string) string {
	h.t.Helper()
	tok, err := h.jwt.GenerateToken(subscriberID, username, auth.RoleSubscriber)
	if err != nil {
		h.t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func (h *harness) url(path, token string) string {
	u := "ws" + strings.TrimPrefix(h.srv.URL, "http") + path
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func (h *harness) dial(path, token string) *websocket.Conn {
	h.t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(h.url(path, token), nil)
	if err != nil {
		h.t.Fatalf("dial %s: %v", path, err)
	}
	_ = resp.Body.Close()
	h.t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// joinChat dials the room as a subscriber and waits until the connection
// is a room member.
func (h *harness) joinChat(subscriberID int64, username string) *websocket.Conn {
	h.t.Helper()
	before := h.memberCount(subscriberID)
	conn := h.dial(fmt.Sprintf("/ws/chat/%d", h.room), h.token(subscriberID, username))
	waitUntil(h.t, 5*time.Second, func() bool {
		return h.memberCount(subscriberID) > before
	}, "connection did not join the room")
	return conn
}

func (h *harness) memberCount(subscriberID int64) int {
	n := 0
	for _, c := range h.hub.Rooms().Members(eventbus.ChatRoom(h.room)) {
		if c.SubscriberID() == subscriberID {
			n++
		}
	}
	return n
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode frame %s: %v", data, err)
	}
	return out
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// expectClose reads until the server closes the connection and checks the
// close code. Data frames before the close are discarded.
func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		if !errors.As(err, &ce) {
			t.Fatalf("read error = %v, want close %d", err, code)
		}
		if ce.Code != code {
			t.Fatalf("close code = %d (%q), want %d", ce.Code, ce.Text, code)
		}
		return
	}
}

func TestServeChat_RejectsBadCredentials(t *testing.T) {
	h := newHarness(t)
	path := fmt.Sprintf("/ws/chat/%d", h.room)

	foreign, err := auth.NewJWTManager(&config.SecurityConfig{JWTSecret: "some-other-secret-entirely-different"})
	if err != nil {
		t.Fatal(err)
	}
	forged, err := foreign.GenerateToken(h.uma, "uma", auth.RoleSubscriber)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		token string
		code  int
	}{
		{"missing token", "", ClosePolicyViolation},
		{"malformed token", "not-a-jwt", ClosePolicyViolation},
		{"wrong signature", forged, CloseAuthFailed},
		{"unknown subscriber", h.token(9999, "ghost"), CloseAuthFailed},
		{"not a member", h.token(h.wendy, "wendy"), CloseForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := h.dial(path, tt.token)
			expectClose(t, conn, tt.code)
		})
	}

	waitUntil(t, 2*time.Second, func() bool { return h.hub.GetClientCount() == 0 }, "rejected connections still registered")
}

func TestServeChat_PresenceAndTypingNotEchoed(t *testing.T) {
	h := newHarness(t)

	u := h.joinChat(h.uma, "uma")
	v := h.joinChat(h.victor, "victor")

	online := readJSON(t, u)
	if online["type"] != "status" || online["status"] != "online" || online["username"] != "victor" {
		t.Fatalf("U first frame = %v, want victor online", online)
	}

	writeJSON(t, v, map[string]any{"type": "typing", "is_typing": true})
	writeJSON(t, v, map[string]any{"type": "message", "content": "hello"})

	typing := readJSON(t, u)
	if typing["type"] != "typing" || typing["is_typing"] != true || typing["username"] != "victor" {
		t.Errorf("U second frame = %v, want typing", typing)
	}
	msg := readJSON(t, u)
	if msg["type"] != "message" || msg["content"] != "hello" || msg["sender_username"] != "victor" {
		t.Errorf("U third frame = %v, want message", msg)
	}

	// V's own status and typing frames were published before the message,
	// so the message being first proves neither came back.
	first := readJSON(t, v)
	if first["type"] != "message" || first["content"] != "hello" {
		t.Errorf("V first frame = %v, want its own message", first)
	}
	if first["sender_avatar"] != "https://cdn.example/victor.png" {
		t.Errorf("sender_avatar = %v", first["sender_avatar"])
	}

	writeJSON(t, u, map[string]any{"type": "ping"})
	if pong := readJSON(t, u); pong["type"] != "pong" {
		t.Errorf("ping reply = %v", pong)
	}
}

func TestServeChat_MessagesArriveInOrder(t *testing.T) {
	h := newHarness(t)

	u := h.joinChat(h.uma, "uma")
	v := h.joinChat(h.victor, "victor")
	if f := readJSON(t, u); f["type"] != "status" {
		t.Fatalf("expected status frame, got %v", f)
	}

	const n = 100
	for i := 0; i < n; i++ {
		writeJSON(t, v, map[string]any{"type": "message", "content": "m-" + strconv.Itoa(i)})
	}

	var lastID float64
	for i := 0; i < n; i++ {
		f := readJSON(t, u)
		if f["type"] != "message" {
			t.Fatalf("frame %d = %v", i, f)
		}
		if want := "m-" + strconv.Itoa(i); f["content"] != want {
			t.Fatalf("frame %d content = %v, want %s", i, f["content"], want)
		}
		id, _ := f["message_id"].(float64)
		if id <= lastID {
			t.Fatalf("message ids not increasing: %v after %v", id, lastID)
		}
		lastID = id
	}

	stored, err := h.db.ListMessages(context.Background(), h.room, n, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != n {
		t.Errorf("stored %d messages, want %d", len(stored), n)
	}
}

func TestServeChat_IgnoresInvalidFrames(t *testing.T) {
	h := newHarness(t)

	u := h.joinChat(h.uma, "uma")
	v := h.joinChat(h.victor, "victor")
	_ = readJSON(t, u)

	for _, raw := range []string{
		`not json`,
		`{"type":"dance"}`,
		`{"type":"message","content":"   "}`,
		`{"type":"message","content":"","message_type":"text"}`,
		`{"type":"message","content":"x","message_type":"video"}`,
		`{"type":"read","message_id":0}`,
		`{"type":"mark_read","notification_id":1}`,
	} {
		if err := v.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatal(err)
		}
	}
	writeJSON(t, v, map[string]any{"type": "message", "content": "valid"})

	if f := readJSON(t, u); f["type"] != "message" || f["content"] != "valid" {
		t.Errorf("first delivered frame = %v, want the valid message", f)
	}
	if h.memberCount(h.victor) != 1 {
		t.Error("invalid frames closed the connection")
	}
}

func TestServeChat_ReadReceipt(t *testing.T) {
	h := newHarness(t)

	u := h.joinChat(h.uma, "uma")
	v := h.joinChat(h.victor, "victor")
	_ = readJSON(t, u)

	writeJSON(t, u, map[string]any{"type": "message", "content": "read me"})
	msg := readJSON(t, v)
	_ = readJSON(t, u)

	writeJSON(t, v, map[string]any{"type": "read", "message_id": msg["message_id"]})
	receipt := readJSON(t, u)
	if receipt["type"] != "read" || receipt["message_id"] != msg["message_id"] {
		t.Errorf("receipt = %v", receipt)
	}
	if uid, _ := receipt["user_id"].(float64); int64(uid) != h.victor {
		t.Errorf("receipt user_id = %v, want %d", receipt["user_id"], h.victor)
	}
}

func TestServeChat_RevokedMemberIsEvicted(t *testing.T) {
	h := newHarness(t)

	u := h.joinChat(h.uma, "uma")
	v := h.joinChat(h.victor, "victor")
	_ = readJSON(t, u)

	removed, del, err := h.dispatch.RevokeMembership(context.Background(), h.room, h.victor)
	if err != nil || !removed || del.PushErr != nil {
		t.Fatalf("RevokeMembership = %v, %+v, %v", removed, del, err)
	}

	expectClose(t, v, CloseForbidden)

	offline := readJSON(t, u)
	if offline["type"] != "status" || offline["status"] != "offline" || offline["username"] != "victor" {
		t.Errorf("U frame after eviction = %v, want victor offline", offline)
	}
	waitUntil(t, 2*time.Second, func() bool { return h.memberCount(h.victor) == 0 }, "evicted connection still a member")

	// Reconnecting is refused now that membership is gone.
	again := h.dial(fmt.Sprintf("/ws/chat/%d", h.room), h.token(h.victor, "victor"))
	expectClose(t, again, CloseForbidden)
}

func TestServeChat_ClientDisconnectCleansUp(t *testing.T) {
	h := newHarness(t)

	u := h.joinChat(h.uma, "uma")
	v := h.joinChat(h.victor, "victor")
	_ = readJSON(t, u)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	if err := v.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}

	offline := readJSON(t, u)
	if offline["status"] != "offline" {
		t.Errorf("frame = %v, want offline status", offline)
	}
	waitUntil(t, 2*time.Second, func() bool {
		for range h.hub.Registry().ConnectionsFor(h.victor) {
			return false
		}
		return true
	}, "disconnected client still registered")
	if h.hub.GetClientCount() != 1 {
		t.Errorf("client count = %d, want 1", h.hub.GetClientCount())
	}
}

func TestServeNotifications_PushAndMarkRead(t *testing.T) {
	h := newHarness(t)

	phone := h.dial("/ws/notifications", h.token(h.victor, "victor"))
	laptop := h.dial("/ws/notifications", h.token(h.victor, "victor"))
	waitUntil(t, 5*time.Second, func() bool {
		n := 0
		for c := range h.hub.Registry().ConnectionsFor(h.victor) {
			if c.State() == StateAuthenticated {
				n++
			}
		}
		return n == 2 && h.hub.Registry().notificationSubscriptions() == 1
	}, "notification connections not registered")

	n, del, err := h.dispatch.Notify(context.Background(), dispatch.Like{ActorID: h.uma, RecipientID: h.victor, PostID: 42})
	if err != nil || del.PushErr != nil || !del.Pushed {
		t.Fatalf("Notify = %+v, %v", del, err)
	}

	for _, conn := range []*websocket.Conn{phone, laptop} {
		f := readJSON(t, conn)
		if f["type"] != "notification" || f["kind"] != "like" || f["sender"] != "uma" {
			t.Errorf("pushed frame = %v", f)
		}
		if id, _ := f["id"].(float64); int64(id) != n.ID {
			t.Errorf("pushed id = %v, want %d", f["id"], n.ID)
		}
	}

	writeJSON(t, phone, map[string]any{"type": "mark_read", "notification_id": n.ID})
	reply := readJSON(t, phone)
	if reply["type"] != "notification_read" || reply["changed"] != true {
		t.Errorf("mark_read reply = %v", reply)
	}

	writeJSON(t, phone, map[string]any{"type": "mark_read", "notification_id": n.ID})
	if again := readJSON(t, phone); again["changed"] != false {
		t.Errorf("second mark_read reply = %v, want changed false", again)
	}

	// Chat frames are not accepted on the notification endpoint.
	writeJSON(t, phone, map[string]any{"type": "message", "content": "nope"})
	writeJSON(t, phone, map[string]any{"type": "ping"})
	if f := readJSON(t, phone); f["type"] != "pong" {
		t.Errorf("frame after ignored message = %v, want pong", f)
	}
}

func TestHub_ShutdownClosesWithGoingAway(t *testing.T) {
	h := newHarness(t)

	u := h.joinChat(h.uma, "uma")
	notes := h.dial("/ws/notifications", h.token(h.victor, "victor"))
	waitUntil(t, 5*time.Second, func() bool { return h.hub.GetClientCount() == 2 }, "clients not registered")

	h.shutdown()

	expectClose(t, u, CloseGoingAway)
	expectClose(t, notes, CloseGoingAway)
	if h.hub.GetClientCount() != 0 {
		t.Errorf("client count after shutdown = %d", h.hub.GetClientCount())
	}

	_, resp, err := websocket.DefaultDialer.Dial(h.url("/ws/notifications", h.token(h.victor, "victor")), nil)
	if err == nil {
		t.Fatal("dial succeeded after shutdown")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("response = %v, want 503", resp)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
}

func TestHub_CheckOrigin(t *testing.T) {
	hub := NewHub(eventbus.NewMemoryBus(eventbus.MemoryConfig{}), nil, nil, nil, HubConfig{
		AllowedOrigins: []string{"https://app.example"},
	})

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://app.example", true},
		{"https://evil.example", false},
		{"", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws/notifications", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := hub.checkOrigin(r); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}

	open := NewHub(eventbus.NewMemoryBus(eventbus.MemoryConfig{}), nil, nil, nil, HubConfig{AllowedOrigins: []string{"*"}})
	if !open.checkOrigin(httptest.NewRequest(http.MethodGet, "/", nil)) {
		t.Error("wildcard rejected a request without Origin")
	}
}

func TestSanitizeLogValue(t *testing.T) {
	if got := sanitizeLogValue("a\nb\x00c"); got != "abc" {
		t.Errorf("sanitizeLogValue = %q", got)
	}
	if got := sanitizeLogValue(strings.Repeat("x", 500)); len(got) != 200 {
		t.Errorf("len = %d, want 200", len(got))
	}
}
