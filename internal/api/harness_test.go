// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/switchboard/internal/auth"
	"github.com/tomtom215/switchboard/internal/authz"
	"github.com/tomtom215/switchboard/internal/config"
	"github.com/tomtom215/switchboard/internal/database"
	"github.com/tomtom215/switchboard/internal/dispatch"
	"github.com/tomtom215/switchboard/internal/eventbus"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/testinfra"
	"github.com/tomtom215/switchboard/internal/websocket"
)

const testSecret = "api-test-secret-with-enough-length"

func init() {
	logging.SetLogger(zerolog.New(io.Discard).Level(zerolog.ErrorLevel))
}

// downBus rejects every publish, as a bus with an open breaker does.
type downBus struct{}

func (downBus) Publish(context.Context, eventbus.Event) error {
	return eventbus.ErrBusUnavailable
}

func (downBus) Subscribe(context.Context, string, eventbus.Handler) (eventbus.Subscription, error) {
	return nil, eventbus.ErrBusUnavailable
}

// apiHarness serves the full router over httptest with a real database.
// uma owns room with member victor; wendy is not a member.
type apiHarness struct {
	t   *testing.T
	db  *database.DB
	bus *eventbus.MemoryBus
	hub *websocket.Hub
	jwt *auth.JWTManager
	srv *httptest.Server

	uma, victor, wendy int64
	room               int64
}

type harnessOptions struct {
	// busDown makes every dispatcher publish fail.
	busDown bool
}

func newAPIHarness(t *testing.T, opts harnessOptions) *apiHarness {
	t.Helper()

	db := testinfra.NewTestDB(t)
	ids := testinfra.CreateSubscribers(t, db, "uma", "victor", "wendy")
	room := testinfra.CreateRoom(t, db, ids[0], ids[1])

	bus := eventbus.NewMemoryBus(eventbus.MemoryConfig{})
	t.Cleanup(func() { _ = bus.Close() })

	var publishBus eventbus.Bus = bus
	if opts.busDown {
		publishBus = downBus{}
	}
	disp := dispatch.New(db, publishBus, dispatch.Options{})
	t.Cleanup(disp.Close)

	jwtManager, err := auth.NewJWTManager(&config.SecurityConfig{JWTSecret: testSecret, TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	authn := auth.NewAuthenticator(jwtManager, auth.NewMemoryRevocationStore(), db)

	hub := websocket.NewHub(bus, authn, db, disp, websocket.HubConfig{AllowedOrigins: []string{"*"}})
	disp.SetEvictor(hub)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = hub.RunWithContext(ctx)
	}()

	handler := NewHandler(HandlerDeps{
		DB:            db,
		Dispatcher:    disp,
		Hub:           hub,
		Authenticator: authn,
		Version:       "test",
	})
	chiCfg := DefaultChiMiddlewareConfig()
	chiCfg.RateLimitDisabled = true
	enforcer, err := authz.NewEnforcer(nil)
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	t.Cleanup(enforcer.Close)
	router := NewRouter(handler, auth.NewMiddleware(authn), authz.NewMiddleware(enforcer), NewChiMiddleware(chiCfg))

	srv := httptest.NewServer(router.Setup())
	t.Cleanup(srv.Close)
	// Registered after srv.Close so it runs first.
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	return &apiHarness{
		t:      t,
		db:     db,
		bus:    bus,
		hub:    hub,
		jwt:    jwtManager,
		srv:    srv,
		uma:    ids[0],
		victor: ids[1],
		wendy:  ids[2],
		room:   room,
	}
}

func (h *apiHarness) token(subscriberID int64, username, role string) string {
	h.t.Helper()
	tok, err := h.jwt.GenerateToken(subscriberID, username, role)
	if err != nil {
		h.t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func (h *apiHarness) subscriberToken(subscriberID int64) string {
	return h.token(subscriberID, "subscriber", auth.RoleSubscriber)
}

func (h *apiHarness) serviceToken() string {
	return h.token(0, "feed-service", auth.RoleService)
}

// envelope is the decoded APIResponse with data left raw.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

type apiResult struct {
	status int
	body   envelope
	raw    []byte
	header http.Header
}

func (r apiResult) decode(t *testing.T, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(r.body.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", r.body.Data, err)
	}
}

func (r apiResult) expect(t *testing.T, status int) apiResult {
	t.Helper()
	if r.status != status {
		t.Fatalf("status = %d, want %d; body %s", r.status, status, r.raw)
	}
	return r
}

func (r apiResult) expectError(t *testing.T, status int, code string) {
	t.Helper()
	r.expect(t, status)
	if r.body.Success || r.body.Error == nil {
		t.Fatalf("expected error envelope, got %s", r.raw)
	}
	if r.body.Error.Code != code {
		t.Fatalf("error code = %q, want %q", r.body.Error.Code, code)
	}
}

func (h *apiHarness) do(method, path, token string, body interface{}) apiResult {
	h.t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			h.t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, h.srv.URL+path, reader)
	if err != nil {
		h.t.Fatal(err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := h.srv.Client().Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatal(err)
	}
	res := apiResult{status: resp.StatusCode, raw: raw, header: resp.Header}
	if len(raw) > 0 && bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		if err := json.Unmarshal(raw, &res.body); err != nil {
			h.t.Fatalf("decode envelope %s: %v", raw, err)
		}
	}
	return res
}

// watch records every event published to room on the memory bus.
type watcher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (h *apiHarness) watch(room string) *watcher {
	h.t.Helper()
	w := &watcher{}
	sub, err := h.bus.Subscribe(context.Background(), room, func(_ context.Context, ev eventbus.Event) {
		w.mu.Lock()
		w.events = append(w.events, ev)
		w.mu.Unlock()
	})
	if err != nil {
		h.t.Fatalf("Subscribe(%s): %v", room, err)
	}
	h.t.Cleanup(func() { _ = sub.Unsubscribe() })
	return w
}

func (w *watcher) all() []eventbus.Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]eventbus.Event(nil), w.events...)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
