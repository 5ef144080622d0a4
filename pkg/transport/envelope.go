package transport

import (
	"encoding/json"
	"fmt"
)

// Control messages on a websocket travel as JSON arrays:
//
//	["init", roomID]                  client join request
//	["init", ok, roomInfo|message]    join answer
//	["msg", text]                     text protocol frame
//	["connect", resource]             connect request
//	["connect", ok, message]          connect result
//	["disconnect", reason]
//	["error", message]
//
// Binary protocol frames are sent as websocket binary messages as-is.

const (
	methodInit       = "init"
	methodMsg        = "msg"
	methodConnect    = "connect"
	methodDisconnect = "disconnect"
	methodError      = "error"
)

// EncodeEnvelope encodes a non-binary message as a JSON array.
func EncodeEnvelope(m Message) ([]byte, error) {
	var v []any
	switch m.Kind {
	case KindText:
		v = []any{methodMsg, m.Text}
	case KindConnect:
		v = []any{methodConnect, m.Text}
	case KindConnectResult:
		v = []any{methodConnect, m.OK, m.Text}
	case KindDisconnect:
		v = []any{methodDisconnect, m.Text}
	case KindError:
		v = []any{methodError, m.Text}
	default:
		return nil, fmt.Errorf("%w: cannot encode %s", ErrInvalidEnvelope, m.Kind)
	}
	return json.Marshal(v)
}

// DecodeEnvelope decodes a JSON array control message.
func DecodeEnvelope(b []byte) (Message, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if len(parts) < 2 {
		return Message{}, fmt.Errorf("%w: %d elements", ErrInvalidEnvelope, len(parts))
	}
	var method string
	if err := json.Unmarshal(parts[0], &method); err != nil {
		return Message{}, fmt.Errorf("%w: method: %v", ErrInvalidEnvelope, err)
	}

	str := func(i int) (string, error) {
		var s string
		if i >= len(parts) {
			return "", nil
		}
		if err := json.Unmarshal(parts[i], &s); err != nil {
			return "", fmt.Errorf("%w: %s element %d: %v", ErrInvalidEnvelope, method, i, err)
		}
		return s, nil
	}

	switch method {
	case methodMsg:
		s, err := str(1)
		return Text(s), err
	case methodConnect:
		if len(parts) == 2 {
			s, err := str(1)
			return Connect(s), err
		}
		var ok bool
		if err := json.Unmarshal(parts[1], &ok); err != nil {
			return Message{}, fmt.Errorf("%w: connect result: %v", ErrInvalidEnvelope, err)
		}
		s, err := str(2)
		return ConnectResult(ok, s), err
	case methodDisconnect:
		s, err := str(1)
		return Disconnect(s), err
	case methodError:
		// error payloads are not always strings
		s, err := str(1)
		if err != nil {
			return Error(string(parts[1])), nil
		}
		return Error(s), nil
	}
	return Message{}, fmt.Errorf("%w: unknown method %q", ErrInvalidEnvelope, method)
}
