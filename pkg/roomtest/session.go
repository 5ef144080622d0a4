package roomtest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/vango-dev/roomclient/pkg/protocol"
	"github.com/vango-dev/roomclient/pkg/room"
	"github.com/vango-dev/roomclient/pkg/transport"
)

// SessionConfig configures NewSession.
type SessionConfig struct {
	// Room is the room description the session is created with.
	Room protocol.RoomInfo

	// Self is the identity granted on connect.
	Self protocol.ConnectionInfo

	// Config is the session configuration. Logging is discarded when nil.
	Config *room.Config
}

// SessionOption configures NewSession.
type SessionOption func(*SessionConfig)

// WithOwned marks the room as owned by the local account.
func WithOwned(owned bool) SessionOption {
	return func(c *SessionConfig) {
		c.Room.Owned = owned
	}
}

// WithSelf sets the identity granted on connect.
func WithSelf(info protocol.ConnectionInfo) SessionOption {
	return func(c *SessionConfig) {
		c.Self = info
	}
}

// WithConfig sets the session configuration.
func WithConfig(config *room.Config) SessionOption {
	return func(c *SessionConfig) {
		c.Config = config
	}
}

// NewSession creates a session joined to an in-memory authority. Both
// receive loops run until the test ends.
//
// Example:
//
//	s, auth := roomtest.NewSession(t, roomtest.WithOwned(true))
//	auth.SetState(map[string]any{"score": 1.0})
//	s.Connect(ctx, "web")
func NewSession(tb testing.TB, opts ...SessionOption) (*room.Session, *Authority) {
	tb.Helper()
	cfg := SessionConfig{
		Room: protocol.RoomInfo{RoomID: "room-1", HandlerURL: "https://rooms.example/handler"},
		Self: Conn("self", "acc-self", "Alice"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Config == nil {
		cfg.Config = &room.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	}

	client, server := transport.NewPipe()
	auth := NewAuthority(server, cfg.Room, cfg.Self)
	s := room.New(client, cfg.Room, cfg.Config)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	go func() {
		defer func() { done <- struct{}{} }()
		if err := auth.Serve(ctx); err != nil {
			tb.Errorf("roomtest: authority: %v", err)
		}
	}()
	go func() {
		defer func() { done <- struct{}{} }()
		_ = s.Run(ctx)
	}()

	tb.Cleanup(func() {
		_ = s.Destroy()
		cancel()
		<-done
		<-done
	})
	return s, auth
}

// Eventually fails the test unless cond becomes true within two seconds.
func Eventually(tb testing.TB, cond func() bool) {
	tb.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			tb.Fatal("roomtest: condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
