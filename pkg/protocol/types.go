package protocol

import (
	"bytes"
	"encoding/json"
)

// Account is a room service account.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ConnectionInfo describes one connection to a room. The id is stable and
// derived by the remote from the account id and the resource.
type ConnectionInfo struct {
	ID       string  `json:"id"`
	Account  Account `json:"account"`
	Resource string  `json:"resource"`
}

// RoomInfo is the room description returned by the join handshake.
type RoomInfo struct {
	RoomID     string `json:"roomId"`
	Owned      bool   `json:"owned"`
	HandlerURL string `json:"handlerUrl"`
}

// RoomOnlineInfo is the payload of RoomInfoEvent: a full snapshot of the
// room once the connection has entered it.
type RoomOnlineInfo struct {
	RoomInfo
	State json.RawMessage  `json:"state,omitempty"`
	Users []ConnectionInfo `json:"users"`
	Door  *DoorData        `json:"door"`
}

// DoorMode is the access mode of a room.
type DoorMode string

const (
	DoorOpen   DoorMode = "open"
	DoorKnock  DoorMode = "knock"
	DoorClosed DoorMode = "closed"
)

// DoorData is the access-control payload of RoomInfoEvent and
// DoorChangedEvent.
type DoorData struct {
	Mode      DoorMode  `json:"mode"`
	Allowlist []string  `json:"allowlist"`
	Blocklist []string  `json:"blocklist"`
	Knock     []Account `json:"knock"`
}

// MessageData is the payload of MessageEvent.
type MessageData struct {
	From    string          `json:"from,omitempty"`
	Message json.RawMessage `json:"message"`
}

// StateChange is the payload of RoomStateChangedEvent. A nil Data means the
// value at Path was deleted; JSON null arrives as the literal "null".
type StateChange struct {
	Path json.RawMessage `json:"path,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Access values for the SetAccess call.
const (
	AccessAllow = "allow"
	AccessBlock = "block"
)

// Verbs understood by the room service.
const (
	VerbSendMessage     = "SendMessage"
	VerbChangeState     = "ChangeState"
	VerbBulkChangeState = "BulkChangeState"
	VerbSetAccess       = "SetAccess"
	VerbGetTime         = "GetTime"
)

// MarshalJSON encodes v the way the room service's own encoder does:
// no HTML escaping and no trailing newline. Map keys are sorted, so the
// output is canonical for the same value.
func MarshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}
