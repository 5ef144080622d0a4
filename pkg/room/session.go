// Package room implements the room session: the component that owns the
// call correlator, presence registry, state store, door and clock
// estimator of one joined room, and demultiplexes inbound frames to them.
//
// A Session is created from a Transport that has already joined the room
// (see Dial). Run drives the receive loop; every inbound message is
// processed by Handle, strictly in delivery order. Notifications are
// delivered synchronously on the goroutine running Run, after internal
// locks are released, so subscribers may call read accessors. A
// subscriber must not block waiting for another inbound frame (for
// example by calling Connect or a state write and waiting for its
// result) because frames are not read while it runs; start a goroutine
// instead.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-dev/roomclient/pkg/clock"
	"github.com/vango-dev/roomclient/pkg/door"
	"github.com/vango-dev/roomclient/pkg/emitter"
	"github.com/vango-dev/roomclient/pkg/presence"
	"github.com/vango-dev/roomclient/pkg/protocol"
	"github.com/vango-dev/roomclient/pkg/rpc"
	"github.com/vango-dev/roomclient/pkg/state"
	"github.com/vango-dev/roomclient/pkg/transport"
)

// Status is the lifecycle state of a Session.
type Status uint8

const (
	StatusIdle         Status = iota // Joined, never connected
	StatusConnecting                 // Connect request in flight
	StatusConnected                  // Connected, room snapshot not yet received
	StatusEntered                    // Connected and entered
	StatusDisconnected               // Was connected, now disconnected
	StatusDestroyed                  // Terminal
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusEntered:
		return "entered"
	case StatusDisconnected:
		return "disconnected"
	case StatusDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Session is a live session with one room.
type Session struct {
	transport transport.Transport
	config    *Config
	logger    *slog.Logger
	observer  Observer

	calls  *rpc.Correlator
	roster *presence.Registry
	store  *state.Store
	door   *door.Door
	clock  *clock.Estimator

	// dispatchMu serializes inbound processing.
	dispatchMu sync.Mutex

	mu           sync.RWMutex
	info         protocol.RoomInfo
	self         *protocol.ConnectionInfo
	resource     string
	connecting   bool
	connected    bool
	entered      bool
	disconnected bool
	destroyed    bool
	connectWait  chan transport.Message

	onConnect    emitter.Emitter[string]
	onEnter      emitter.Emitter[*Session]
	onDisconnect emitter.Emitter[string]
	onDestroy    emitter.Emitter[*Session]
	onError      emitter.Emitter[error]
	onMessage    emitter.Emitter[presence.Message]
	onKnock      emitter.Emitter[protocol.Account]
	onTimeSync   emitter.Emitter[clock.Estimate]
}

// New creates a session on a transport that has already joined the room
// described by info.
func New(t transport.Transport, info protocol.RoomInfo, config *Config) *Session {
	config = config.withDefaults()
	s := &Session{
		transport: t,
		config:    config,
		logger:    config.Logger.With("room", info.RoomID),
		observer:  config.Observer,
		info:      info,
		store:     state.NewStore(),
		clock:     clock.NewEstimator(config.Clock),
	}
	s.calls = rpc.New(wire{s}, rpc.WithHook(s.observer.CallStart))
	s.roster = presence.NewRegistry(s)
	s.door = door.New(func(ctx context.Context, verb string, params ...any) error {
		_, err := s.call(ctx, verb, params...)
		return err
	})
	return s
}

// Dial joins roomID on the room service at url over a websocket and
// returns a session on it.
func Dial(ctx context.Context, url, roomID string, config *Config) (*Session, error) {
	config = config.withDefaults()
	tc := *config.Transport
	if tc.Logger == nil {
		tc.Logger = config.Logger
	}
	t, info, err := transport.Dial(ctx, url, roomID, &tc)
	if err != nil {
		return nil, err
	}
	return New(t, *info, config), nil
}

// wire adapts the transport to the correlator.
type wire struct{ s *Session }

func (w wire) SendText(frame string) error {
	return w.s.send(transport.Text(frame))
}

func (w wire) SendBinary(frame []byte) error {
	return w.s.send(transport.Binary(frame))
}

func (s *Session) send(msg transport.Message) error {
	s.observer.FrameOut(msg.Kind, msg.Size())
	s.logger.Debug("frame out", "kind", msg.Kind, "size", msg.Size())
	return s.transport.Send(msg)
}

func (s *Session) call(ctx context.Context, verb string, params ...any) (json.RawMessage, error) {
	if s.Destroyed() {
		return nil, ErrDestroyed
	}
	return s.calls.Call(ctx, verb, params...)
}

// Event streams.

// OnConnect fires with the granted resource when a connect succeeds.
func (s *Session) OnConnect() emitter.Stream[string] { return &s.onConnect }

// OnEnter fires once per connection, on the first room snapshot.
func (s *Session) OnEnter() emitter.Stream[*Session] { return &s.onEnter }

// OnDisconnect fires with the reason when the room service disconnects
// the session.
func (s *Session) OnDisconnect() emitter.Stream[string] { return &s.onDisconnect }

// OnDestroy fires once when the session is destroyed.
func (s *Session) OnDestroy() emitter.Stream[*Session] { return &s.onDestroy }

// OnError fires for every error raised while processing inbound frames
// in Run.
func (s *Session) OnError() emitter.Stream[error] { return &s.onError }

// OnMessage fires for every inbound application message.
func (s *Session) OnMessage() emitter.Stream[presence.Message] { return &s.onMessage }

// OnKnock fires when an account knocks on the room.
func (s *Session) OnKnock() emitter.Stream[protocol.Account] { return &s.onKnock }

// OnTimeSync fires after every successful SyncTime.
func (s *Session) OnTimeSync() emitter.Stream[clock.Estimate] { return &s.onTimeSync }

// OnJoin fires when a connection joins.
func (s *Session) OnJoin() emitter.Stream[*presence.Connection] { return s.roster.OnJoin() }

// OnLeave fires when a connection leaves.
func (s *Session) OnLeave() emitter.Stream[*presence.Connection] { return s.roster.OnLeave() }

// OnStateChange fires when the state tree changes.
func (s *Session) OnStateChange() emitter.Stream[state.Change] { return s.store.OnChange() }

// Accessors.

// ID returns the room id.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info.RoomID
}

// Owned reports whether the local account owns the room.
func (s *Session) Owned() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info.Owned
}

// HandlerURL returns the room's handler URL.
func (s *Session) HandlerURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info.HandlerURL
}

// Info returns the current room description.
func (s *Session) Info() protocol.RoomInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// Status returns the lifecycle state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.destroyed:
		return StatusDestroyed
	case s.connecting:
		return StatusConnecting
	case s.connected && s.entered:
		return StatusEntered
	case s.connected:
		return StatusConnected
	case s.disconnected:
		return StatusDisconnected
	}
	return StatusIdle
}

// Connected reports whether the session is connected.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Entered reports whether the first room snapshot has been received
// since the last connect.
func (s *Session) Entered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entered
}

// Destroyed reports whether the session has been destroyed.
func (s *Session) Destroyed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.destroyed
}

// Resource returns the resource granted by the last successful connect,
// or "" when not connected.
func (s *Session) Resource() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resource
}

// ConnectionID returns the local connection id, or "" before the room
// service has announced it.
func (s *Session) ConnectionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.self == nil {
		return ""
	}
	return s.self.ID
}

// Name returns the local account display name, or "" before the room
// service has announced it.
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.self == nil {
		return ""
	}
	return s.self.Account.Name
}

// State returns the state tree and whether it is present.
func (s *Session) State() (any, bool) { return s.store.Get() }

// SelectState reads the value at path from the state tree.
func (s *Session) SelectState(path state.Path) (any, bool) { return s.store.Select(path) }

// Door returns the room's access-control state.
func (s *Session) Door() *door.Door { return s.door }

// Clock returns the latest clock offset estimate and whether SyncTime has
// succeeded since the last connect.
func (s *Session) Clock() (clock.Estimate, bool) { return s.clock.Current() }

// PendingCalls returns the number of calls awaiting a response.
func (s *Session) PendingCalls() int { return s.calls.Pending() }

// Connections returns a copy of the roster keyed by connection id.
func (s *Session) Connections() map[string]*presence.Connection { return s.roster.All() }

// Connection returns the connection with the given id.
func (s *Session) Connection(id string) (*presence.Connection, bool) { return s.roster.Get(id) }

// SelectConnections returns the connections matching sel.
func (s *Session) SelectConnections(sel presence.Selector) map[string]*presence.Connection {
	return s.roster.Select(sel)
}

// Lifecycle.

// Connect asks the room service to connect the session under resource
// and waits for the answer. It returns the granted resource. If ctx ends
// first the connect stays in flight and its result is still applied when
// it arrives.
func (s *Session) Connect(ctx context.Context, resource string) (string, error) {
	s.mu.Lock()
	switch {
	case s.destroyed:
		s.mu.Unlock()
		return "", ErrDestroyed
	case s.connected:
		s.mu.Unlock()
		return "", ErrAlreadyConnected
	case s.connecting:
		s.mu.Unlock()
		return "", ErrConnecting
	}
	s.connecting = true
	wait := make(chan transport.Message, 1)
	s.connectWait = wait
	s.mu.Unlock()

	if err := s.send(transport.Connect(resource)); err != nil {
		s.mu.Lock()
		s.connecting = false
		s.connectWait = nil
		s.mu.Unlock()
		return "", fmt.Errorf("room: connect: %w", err)
	}

	select {
	case res := <-wait:
		if !res.OK {
			return "", &ConnectError{Resource: resource, Reason: res.Text}
		}
		if res.Text == "" {
			return resource, nil
		}
		return res.Text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Disconnect leaves the room connection. It reports false, doing
// nothing, when the session is not connected. Local connection state
// (resource, roster, clock estimate) is reset before the request is
// sent; pending calls are not cancelled. Roster and snapshot frames
// that arrive afterwards are dropped until the next Connect.
//
// Disconnect waits for the inbound frame being dispatched, if any, so a
// notification handler must not call it synchronously.
func (s *Session) Disconnect(reason string) (bool, error) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return false, ErrDestroyed
	}
	if !s.connected {
		s.mu.Unlock()
		return false, nil
	}
	s.resetConnectionLocked()
	s.mu.Unlock()

	s.afterReset()
	if err := s.send(transport.Disconnect(reason)); err != nil {
		return true, fmt.Errorf("room: disconnect: %w", err)
	}
	return true, nil
}

// resetConnectionLocked clears connected-state attributes. Caller holds
// s.mu and must call afterReset once it is released.
func (s *Session) resetConnectionLocked() {
	s.resource = ""
	s.connected = false
	s.entered = false
	s.disconnected = true
}

func (s *Session) afterReset() {
	s.roster.Clear()
	s.clock.Reset()
	s.observer.Roster(0)
}

// Destroy releases the transport. The session accepts no further
// operations. Destroy is idempotent.
func (s *Session) Destroy() error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil
	}
	s.destroyed = true
	s.connecting = false
	s.connected = false
	s.entered = false
	s.self = nil
	s.mu.Unlock()

	err := s.transport.Close()
	s.logger.Info("session destroyed", "pending_calls", s.calls.Pending())
	s.onDestroy.Emit(s)
	return err
}

// Messaging.

// Broadcast sends message to every connection in the room. A []byte
// message is sent as binary; a string is sent as-is; anything else is
// JSON-encoded to a string first. A service message requires room
// ownership.
func (s *Session) Broadcast(ctx context.Context, message any, service bool) error {
	return s.sendMessage(ctx, nil, message, service)
}

// SendMessage sends message to one connection. It implements
// presence.Messenger; applications usually call Connection.SendMessage.
func (s *Session) SendMessage(ctx context.Context, to *presence.Connection, message any, service bool) error {
	return s.sendMessage(ctx, []string{to.ID()}, message, service)
}

// Block puts accountID on the room's block list. It implements
// presence.Messenger.
func (s *Session) Block(ctx context.Context, accountID string) error {
	return s.door.Block(ctx, accountID)
}

// Allow puts accountID on the room's allow list.
func (s *Session) Allow(ctx context.Context, accountID string) error {
	return s.door.Allow(ctx, accountID)
}

func (s *Session) sendMessage(ctx context.Context, recipients []string, message any, service bool) error {
	s.mu.RLock()
	destroyed, owned := s.destroyed, s.info.Owned
	s.mu.RUnlock()
	if destroyed {
		return ErrDestroyed
	}
	if service && !owned {
		return ErrPermission
	}

	switch m := message.(type) {
	case []byte:
		req := &protocol.SendRequest{Recipients: recipients, Service: service, Payload: m}
		return s.calls.CallBinary(protocol.OpSendMessage, protocol.EncodeSendRequest(req))
	case string:
		_, err := s.calls.Call(ctx, protocol.VerbSendMessage, recipients, service, m)
		return err
	default:
		b, err := protocol.MarshalJSON(m)
		if err != nil {
			return fmt.Errorf("room: encode message: %w", err)
		}
		_, err = s.calls.Call(ctx, protocol.VerbSendMessage, recipients, service, string(b))
		return err
	}
}

// State writes.

// ModifyState asks the room service to apply mods. Each modifier carries
// the hash of the current local value at its path unless IgnoreHash is
// set; the service rejects the write with a *StateConflictError when its
// own value differs. The local tree changes only when the resulting
// RoomStateChangedEvent arrives.
func (s *Session) ModifyState(ctx context.Context, mods ...state.Modifier) error {
	if s.Destroyed() {
		return ErrDestroyed
	}
	if len(mods) == 0 {
		return nil
	}
	c, err := s.store.Prepare(mods...)
	if err != nil {
		return &ProtocolError{Op: "ModifyState", Err: err}
	}
	_, err = s.calls.Call(ctx, c.Verb, c.Params...)
	var re *rpc.RemoteError
	if errors.As(err, &re) {
		return &StateConflictError{Err: re}
	}
	return err
}

// ChangeState writes data at path. A nil path is the root.
func (s *Session) ChangeState(ctx context.Context, data any, path state.Path, ignoreHash bool) error {
	return s.ModifyState(ctx, state.Modifier{Path: path, Data: data, IgnoreHash: ignoreHash})
}

// DeleteState removes the value at path.
func (s *Session) DeleteState(ctx context.Context, path state.Path, ignoreHash bool) error {
	return s.ModifyState(ctx, state.Modifier{Path: path, Delete: true, IgnoreHash: ignoreHash})
}

// Time.

// SyncTime measures the offset of the local clock from the room
// service's clock with one GetTime round trip.
func (s *Session) SyncTime(ctx context.Context) (clock.Estimate, error) {
	est, err := s.clock.Sync(ctx, func(ctx context.Context) (time.Time, error) {
		res, err := s.call(ctx, protocol.VerbGetTime)
		if err != nil {
			return time.Time{}, err
		}
		var ms float64
		if err := json.Unmarshal(res, &ms); err != nil {
			return time.Time{}, &ProtocolError{Op: protocol.VerbGetTime, Err: err}
		}
		return time.UnixMilli(int64(ms)), nil
	})
	if err != nil {
		return clock.Estimate{}, err
	}
	s.logger.Debug("clock synced", "offset", est.Offset, "accuracy", est.Accuracy)
	s.onTimeSync.Emit(est)
	return est, nil
}

// RemoteNow returns the estimated current time on the room service.
func (s *Session) RemoteNow() time.Time { return s.clock.RemoteNow() }

// TimeLeft returns the time until the room service's clock reaches
// deadline.
func (s *Session) TimeLeft(deadline time.Time) time.Duration { return s.clock.TimeLeft(deadline) }

// CreateTimer calls f when the room service's clock reaches deadline.
func (s *Session) CreateTimer(deadline time.Time, f func()) *clock.Timer {
	return s.clock.CreateTimer(deadline, f)
}
