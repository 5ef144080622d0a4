package roomtest

import (
	"slices"

	"github.com/vango-dev/roomclient/pkg/protocol"
	"github.com/vango-dev/roomclient/pkg/transport"
)

// Join adds info to the roster and announces it with UserJoinEvent.
func (a *Authority) Join(info protocol.ConnectionInfo) error {
	a.mu.Lock()
	a.users = slices.DeleteFunc(a.users, func(c protocol.ConnectionInfo) bool { return c.ID == info.ID })
	a.users = append(a.users, info)
	a.mu.Unlock()
	return a.push(protocol.EventUserJoin, info)
}

// Leave removes the connection id from the roster and announces it with
// UserLeaveEvent.
func (a *Authority) Leave(id string) error {
	a.mu.Lock()
	info := protocol.ConnectionInfo{ID: id}
	a.users = slices.DeleteFunc(a.users, func(c protocol.ConnectionInfo) bool {
		if c.ID == id {
			info = c
			return true
		}
		return false
	})
	a.mu.Unlock()
	return a.push(protocol.EventUserLeave, info)
}

// Knock adds account to the door's knock list, sending UserKnockEvent and
// DoorChangedEvent.
func (a *Authority) Knock(account protocol.Account) error {
	a.mu.Lock()
	a.door.Knock = append(slices.DeleteFunc(a.door.Knock, func(k protocol.Account) bool { return k.ID == account.ID }), account)
	door := a.door
	a.mu.Unlock()
	if err := a.push(protocol.EventUserKnock, account); err != nil {
		return err
	}
	return a.push(protocol.EventDoorChanged, door)
}

// SetDoor replaces the door and announces it with DoorChangedEvent.
func (a *Authority) SetDoor(d protocol.DoorData) error {
	a.mu.Lock()
	a.door = d
	a.mu.Unlock()
	return a.push(protocol.EventDoorChanged, d)
}

// PushState sends a raw RoomStateChangedEvent without touching the
// service's own tree. A nil data announces a deletion.
func (a *Authority) PushState(change protocol.StateChange) error {
	return a.push(protocol.EventRoomStateChanged, change)
}

// SendMessageFrom delivers a MessageEvent. An empty from marks a service
// message.
func (a *Authority) SendMessageFrom(from string, message any) error {
	raw, err := protocol.MarshalJSON(message)
	if err != nil {
		return err
	}
	return a.push(protocol.EventMessage, protocol.MessageData{From: from, Message: raw})
}

// SendBinaryFrom delivers a binary message frame. An empty from marks a
// service message.
func (a *Authority) SendBinaryFrom(from string, payload []byte) error {
	m := protocol.Message{From: from, Payload: payload}
	return a.t.Send(transport.Binary(m.Encode()))
}

// SendRaw sends msg unchanged.
func (a *Authority) SendRaw(msg transport.Message) error {
	return a.t.Send(msg)
}

// Disconnect drops the client's connection with reason.
func (a *Authority) Disconnect(reason string) error {
	a.mu.Lock()
	a.connected = false
	a.users = slices.DeleteFunc(a.users, func(c protocol.ConnectionInfo) bool { return c.ID == a.self.ID })
	a.mu.Unlock()
	return a.t.Send(transport.Disconnect(reason))
}

// Connected reports whether the client is connected.
func (a *Authority) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}
