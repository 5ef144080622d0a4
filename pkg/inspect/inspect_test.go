package inspect

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/roomclient/pkg/presence"
	"github.com/vango-dev/roomclient/pkg/room"
	"github.com/vango-dev/roomclient/pkg/roomtest"
	"github.com/vango-dev/roomclient/pkg/state"
)

func setup(t *testing.T, config *Config, opts ...roomtest.SessionOption) (*room.Session, *roomtest.Authority, http.Handler) {
	t.Helper()
	s, auth := roomtest.NewSession(t, opts...)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := s.Connect(ctx, "web"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	roomtest.Eventually(t, s.Entered)
	if config == nil {
		config = &Config{}
	}
	config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return s, auth, Handler(s, config)
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	_, _, h := setup(t, nil)
	rec := do(h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("GET /healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestRoom(t *testing.T) {
	_, _, h := setup(t, nil)
	rec := do(h, http.MethodGet, "/room", "")
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got["roomId"] != "room-1" || got["status"] != "entered" || got["connectionId"] != "self" {
		t.Errorf("GET /room = %v", got)
	}
}

func TestStateEndpoints(t *testing.T) {
	s, auth, h := setup(t, nil)

	rec := do(h, http.MethodPut, "/state?path=players&path=0", `{"name":"bob"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("PUT /state = %d %s", rec.Code, rec.Body.String())
	}
	if v, _ := s.SelectState(state.MustPath("players", 0, "name")); v != "bob" {
		t.Errorf("players[0].name = %v", v)
	}

	rec = do(h, http.MethodGet, "/state?path=players&path=0", "")
	var view struct {
		Path    []any `json:"path"`
		Present bool  `json:"present"`
		Value   any   `json:"value"`
		Hash    int32 `json:"hash"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	want, _ := state.Hash(map[string]any{"name": "bob"}, true)
	if !view.Present || view.Hash != want || !reflect.DeepEqual(view.Path, []any{"players", 0.0}) {
		t.Errorf("GET /state = %+v", view)
	}

	// stale write
	auth.SetState(map[string]any{"players": "gone"})
	rec = do(h, http.MethodPut, "/state?path=players", `[]`)
	if rec.Code != http.StatusConflict {
		t.Errorf("stale PUT /state = %d, want 409", rec.Code)
	}
	rec = do(h, http.MethodDelete, "/state?path=players&force=1", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("forced DELETE /state = %d", rec.Code)
	}

	rec = do(h, http.MethodPut, "/state", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("PUT invalid JSON = %d, want 400", rec.Code)
	}
	rec = do(h, http.MethodPut, "/state?path=__proto__", `1`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("PUT forbidden key = %d, want 400", rec.Code)
	}
}

func TestConnectionsAndDoor(t *testing.T) {
	s, auth, h := setup(t, nil, roomtest.WithOwned(true))
	_ = auth.Join(roomtest.Conn("c2", "acc-2", "Bob"))
	roomtest.Eventually(t, func() bool { return len(s.Connections()) == 2 })

	rec := do(h, http.MethodGet, "/connections", "")
	var conns []struct {
		ID      string `json:"id"`
		Current bool   `json:"current"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &conns); err != nil {
		t.Fatal(err)
	}
	if len(conns) != 2 || conns[0].ID != "c2" || conns[1].ID != "self" || !conns[1].Current {
		t.Errorf("GET /connections = %+v", conns)
	}

	rec = do(h, http.MethodPost, "/door/acc-2/block", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("POST block = %d %s", rec.Code, rec.Body.String())
	}
	rec = do(h, http.MethodGet, "/door", "")
	if !strings.Contains(rec.Body.String(), `"blocklist":["acc-2"]`) {
		t.Errorf("GET /door = %s", rec.Body.String())
	}
	if rec := do(h, http.MethodPost, "/door/acc-2/kick", ""); rec.Code != http.StatusNotFound {
		t.Errorf("POST unknown access = %d, want 404", rec.Code)
	}
}

func TestBroadcast(t *testing.T) {
	s, _, h := setup(t, nil)
	msgs := make(chan presence.Message, 1)
	s.OnMessage().Subscribe(func(m presence.Message) { msgs <- m })

	if rec := do(h, http.MethodPost, "/broadcast", "hello"); rec.Code != http.StatusNoContent {
		t.Fatalf("POST /broadcast = %d %s", rec.Code, rec.Body.String())
	}
	select {
	case m := <-msgs:
		if m.Data != "hello" {
			t.Errorf("message = %v", m.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast not delivered")
	}

	if rec := do(h, http.MethodPost, "/broadcast?service=1", "x"); rec.Code != http.StatusForbidden {
		t.Errorf("service broadcast without ownership = %d, want 403", rec.Code)
	}
}

func TestClock(t *testing.T) {
	_, _, h := setup(t, nil)

	rec := do(h, http.MethodGet, "/clock", "")
	if !strings.Contains(rec.Body.String(), `"synced":false`) {
		t.Errorf("GET /clock before sync = %s", rec.Body.String())
	}
	rec = do(h, http.MethodPost, "/clock/sync", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"synced":true`) {
		t.Errorf("POST /clock/sync = %d %s", rec.Code, rec.Body.String())
	}
}

func TestReadOnly(t *testing.T) {
	_, auth, h := setup(t, &Config{ReadOnly: true})

	for _, tc := range []struct{ method, target string }{
		{http.MethodPut, "/state"},
		{http.MethodDelete, "/state"},
		{http.MethodPost, "/broadcast"},
		{http.MethodPost, "/clock/sync"},
	} {
		if rec := do(h, tc.method, tc.target, "1"); rec.Code != http.StatusForbidden {
			t.Errorf("%s %s = %d, want 403", tc.method, tc.target, rec.Code)
		}
	}
	if n := len(auth.Requests()); n != 0 {
		t.Errorf("%d calls reached the room", n)
	}
}

func TestMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("room_connections 1\n"))
	})
	_, _, h := setup(t, &Config{Metrics: metrics})
	rec := do(h, http.MethodGet, "/metrics", "")
	if rec.Body.String() != "room_connections 1\n" {
		t.Errorf("GET /metrics = %q", rec.Body.String())
	}
}
