package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// roomServer answers the join handshake and then echoes every message.
func roomServer(t *testing.T, answer func(roomID string) []any) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var init []string
		if err := conn.ReadJSON(&init); err != nil || len(init) != 2 || init[0] != "init" {
			return
		}
		if err := conn.WriteJSON(answer(init[1])); err != nil {
			return
		}
		for {
			typ, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if typ == websocket.TextMessage {
				var parts []json.RawMessage
				json.Unmarshal(data, &parts)
				if len(parts) == 2 && string(parts[0]) == `"connect"` {
					var resource string
					json.Unmarshal(parts[1], &resource)
					data, _ = json.Marshal([]any{"connect", true, resource})
				}
			}
			conn.WriteMessage(typ, data)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialJoinsRoom(t *testing.T) {
	srv := roomServer(t, func(roomID string) []any {
		return []any{"init", true, map[string]any{"roomId": roomID, "owned": true, "handlerUrl": "https://h"}}
	})

	ws, info, err := Dial(context.Background(), wsURL(srv), "room-1", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer ws.Close()

	if info.RoomID != "room-1" || !info.Owned || info.HandlerURL != "https://h" {
		t.Errorf("RoomInfo = %+v", info)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sent := []Message{Text("GetTime\n1"), Binary([]byte{1, 0x20, 0, 0}), Connect("web")}
	want := []Message{Text("GetTime\n1"), Binary([]byte{1, 0x20, 0, 0}), ConnectResult(true, "web")}
	for i, m := range sent {
		if err := ws.Send(m); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		got, err := ws.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		if got.Kind != want[i].Kind || got.Text != want[i].Text || got.OK != want[i].OK || string(got.Binary) != string(want[i].Binary) {
			t.Errorf("Receive() = %+v, want %+v", got, want[i])
		}
	}
}

func TestDialRefused(t *testing.T) {
	tests := []struct {
		name   string
		reason string
		want   error
	}{
		{"not_permitted", "NotPermitted", ErrNotPermitted},
		{"other", "RoomNotFound", ErrHandshake},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := roomServer(t, func(string) []any { return []any{"init", false, tc.reason} })
			_, _, err := Dial(context.Background(), wsURL(srv), "r", nil)
			if !errors.Is(err, tc.want) {
				t.Errorf("Dial() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestWebSocketReceiveAfterClose(t *testing.T) {
	srv := roomServer(t, func(roomID string) []any {
		return []any{"init", true, map[string]any{"roomId": roomID}}
	})
	ws, _, err := Dial(context.Background(), wsURL(srv), "r", nil)
	if err != nil {
		t.Fatal(err)
	}
	ws.Close()

	if _, err := ws.Receive(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Receive() after Close error = %v", err)
	}
	if err := ws.Send(Text("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close error = %v", err)
	}
}

func TestWebSocketInvalidEnvelope(t *testing.T) {
	srv := roomServer(t, func(roomID string) []any {
		return []any{"init", true, map[string]any{"roomId": roomID}}
	})
	ws, _, err := Dial(context.Background(), wsURL(srv), "r", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()

	// the server echoes the frame back verbatim
	if err := ws.conn.WriteMessage(websocket.TextMessage, []byte(`["bogus"]`)); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := ws.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if got.Kind != KindError || !strings.Contains(got.Text, ErrInvalidEnvelope.Error()) {
		t.Errorf("Receive() = %+v, want an Error message for the invalid envelope", got)
	}
}
