package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vango-dev/roomclient/pkg/presence"
	"github.com/vango-dev/roomclient/pkg/protocol"
	"github.com/vango-dev/roomclient/pkg/transport"
)

// Run receives and handles inbound messages until ctx ends, the
// transport fails, or the session is destroyed. Errors from individual
// frames are logged and published on OnError without stopping the loop.
// Run returns nil after Destroy.
func (s *Session) Run(ctx context.Context) error {
	for {
		msg, err := s.transport.Receive(ctx)
		if err != nil {
			if s.Destroyed() {
				return nil
			}
			return err
		}
		if err := s.Handle(msg); err != nil {
			s.logger.Error("inbound frame failed", "kind", msg.Kind, "error", err)
			s.onError.Emit(err)
		}
	}
}

// Handle processes one inbound transport message. Calls are serialized;
// Run is the usual caller.
func (s *Session) Handle(msg transport.Message) error {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	if s.Destroyed() {
		return ErrDestroyed
	}
	s.observer.FrameIn(msg.Kind, msg.Size())

	switch msg.Kind {
	case transport.KindText:
		return s.handleText(msg.Text)
	case transport.KindBinary:
		return s.handleBinary(msg.Binary)
	case transport.KindConnectResult:
		s.handleConnectResult(msg)
		return nil
	case transport.KindDisconnect:
		s.handleDisconnect(msg.Text)
		return nil
	case transport.KindError:
		return &ChannelError{Message: msg.Text}
	default:
		s.logger.Warn("dropping unexpected message", "kind", msg.Kind)
		return nil
	}
}

func (s *Session) handleConnectResult(msg transport.Message) {
	s.mu.Lock()
	s.connecting = false
	s.connected = msg.OK
	if msg.OK {
		s.resource = msg.Text
		s.disconnected = false
	}
	wait := s.connectWait
	s.connectWait = nil
	s.mu.Unlock()

	if wait != nil {
		wait <- msg
	}
	if msg.OK {
		s.logger.Info("connected", "resource", msg.Text)
		s.onConnect.Emit(msg.Text)
	} else {
		s.logger.Warn("connect refused", "reason", msg.Text)
	}
}

func (s *Session) handleDisconnect(reason string) {
	s.mu.Lock()
	s.connecting = false
	s.resetConnectionLocked()
	s.mu.Unlock()

	s.afterReset()
	s.logger.Info("disconnected", "reason", reason)
	s.onDisconnect.Emit(reason)
}

func (s *Session) handleText(raw string) error {
	f, err := protocol.DecodeText(raw)
	if err != nil {
		return &ProtocolError{Op: "decode", Err: err}
	}

	switch f.Kind {
	case protocol.TextResult, protocol.TextError:
		if !s.calls.ResolveFrame(f) {
			s.logger.Debug("response for unknown call", "id", f.ID)
		}
		return nil
	}

	s.logger.Debug("event", "name", f.Event, "size", len(f.Payload))
	op := string(f.Event)
	var perr error
	switch f.Event {
	case protocol.EventConnectionInfo:
		var info protocol.ConnectionInfo
		if perr = decode(f.Payload, &info); perr == nil {
			s.handleConnectionInfo(info)
		}
	case protocol.EventRoomInfo:
		var info protocol.RoomOnlineInfo
		if perr = decode(f.Payload, &info); perr == nil {
			perr = s.handleRoomInfo(info)
		}
	case protocol.EventDoorChanged:
		var data protocol.DoorData
		if perr = decode(f.Payload, &data); perr == nil {
			s.door.Update(data)
		}
	case protocol.EventUserKnock:
		var account protocol.Account
		if perr = decode(f.Payload, &account); perr == nil {
			s.onKnock.Emit(account)
		}
	case protocol.EventUserJoin:
		var info protocol.ConnectionInfo
		if perr = decode(f.Payload, &info); perr == nil && s.rosterLive(f.Event) {
			s.roster.Join(info)
			s.observer.Roster(s.roster.Len())
		}
	case protocol.EventUserLeave:
		var info protocol.ConnectionInfo
		if perr = decode(f.Payload, &info); perr == nil && s.rosterLive(f.Event) {
			s.roster.Leave(info.ID)
			s.observer.Roster(s.roster.Len())
		}
	case protocol.EventRoomStateChanged:
		var change protocol.StateChange
		if perr = decode(f.Payload, &change); perr == nil {
			_, perr = s.store.ApplyChange(change)
		}
	case protocol.EventMessage:
		var data protocol.MessageData
		if perr = decode(f.Payload, &data); perr != nil {
			break
		}
		var v any
		if data.Message != nil {
			if perr = json.Unmarshal(data.Message, &v); perr != nil {
				break
			}
		}
		return s.deliver(data.From, v)
	}
	if perr != nil {
		return &ProtocolError{Op: op, Err: perr}
	}
	return nil
}

func decode(payload json.RawMessage, v any) error {
	if payload == nil {
		return protocol.ErrInvalidPayload
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrInvalidPayload, err)
	}
	return nil
}

func (s *Session) handleConnectionInfo(info protocol.ConnectionInfo) {
	s.mu.Lock()
	s.self = &info
	s.mu.Unlock()
	s.roster.SetSelf(info.ID)
}

// rosterLive reports whether roster frames apply. Frames that arrive
// after the connection ended describe a roster that was already
// cleared, so they are dropped.
func (s *Session) rosterLive(event protocol.EventName) bool {
	if s.Connected() {
		return true
	}
	s.logger.Debug("dropping roster frame while disconnected", "event", event)
	return false
}

func (s *Session) handleRoomInfo(info protocol.RoomOnlineInfo) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		s.logger.Debug("dropping room snapshot while disconnected")
		return nil
	}
	s.info = info.RoomInfo
	firstEntry := !s.entered
	s.entered = true
	s.mu.Unlock()

	s.roster.Snapshot(info.Users)
	s.observer.Roster(s.roster.Len())
	if info.State != nil {
		if _, err := s.store.Reset(info.State); err != nil {
			return err
		}
	}
	if info.Door != nil {
		s.door.Update(*info.Door)
	}
	if firstEntry {
		s.logger.Info("entered", "connections", s.roster.Len())
		s.onEnter.Emit(s)
	}
	return nil
}

func (s *Session) handleBinary(raw []byte) error {
	f, err := protocol.DecodeBinary(raw)
	if err != nil {
		return &ProtocolError{Op: "decode", Err: err}
	}
	switch f.Opcode {
	case protocol.OpCallResult, protocol.OpCallError:
		// binary calls are fire-and-forget; their results are not awaited
		s.logger.Debug("binary call result", "opcode", f.Opcode, "id", f.ID)
		return nil
	case protocol.OpMessage:
		m, err := protocol.DecodeMessage(f.Payload)
		if err != nil {
			return &ProtocolError{Op: f.Opcode.String(), Err: err}
		}
		return s.deliver(m.From, m.Payload)
	}
	return &ProtocolError{Op: "decode", Err: fmt.Errorf("%w: %s", protocol.ErrUnexpectedOpcode, f.Opcode)}
}

// deliver publishes a message on the session and, when it has a sender,
// on the sender's own stream.
func (s *Session) deliver(from string, data any) error {
	var sender *presence.Connection
	if from != "" {
		c, err := s.roster.Sender(from)
		if err != nil {
			return &ProtocolError{Op: "message", Err: err}
		}
		sender = c
	}
	s.onMessage.Emit(presence.Message{From: sender, Data: data})
	if sender != nil {
		s.roster.Deliver(sender, data)
	}
	return nil
}

// IsProtocolError reports whether err is a *ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
