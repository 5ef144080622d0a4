package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Text frame errors.
var (
	ErrEmptyFrame      = errors.New("protocol: empty text frame")
	ErrUnknownHeader   = errors.New("protocol: unknown text frame header")
	ErrInvalidHeader   = errors.New("protocol: invalid text frame header")
	ErrInvalidPayload  = errors.New("protocol: invalid JSON payload")
	ErrInvalidVerb     = errors.New("protocol: invalid request verb")
	ErrMissingResponse = errors.New("protocol: request without response id")
)

// EventName is the header of a text frame pushed by the remote.
type EventName string

const (
	EventConnectionInfo   EventName = "ConnectionInfoEvent"
	EventRoomInfo         EventName = "RoomInfoEvent"
	EventDoorChanged      EventName = "DoorChangedEvent"
	EventUserKnock        EventName = "UserKnockEvent"
	EventUserJoin         EventName = "UserJoinEvent"
	EventUserLeave        EventName = "UserLeaveEvent"
	EventRoomStateChanged EventName = "RoomStateChangedEvent"
	EventMessage          EventName = "MessageEvent"
)

// Valid reports whether the name is one of the known event headers.
func (n EventName) Valid() bool {
	switch n {
	case EventConnectionInfo, EventRoomInfo, EventDoorChanged, EventUserKnock,
		EventUserJoin, EventUserLeave, EventRoomStateChanged, EventMessage:
		return true
	}
	return false
}

// TextKind identifies the kind of an inbound text frame.
type TextKind uint8

const (
	TextEvent  TextKind = iota // Pushed event
	TextResult                 // "R <id>": call succeeded
	TextError                  // "E <id>": call failed
)

// String returns the string representation of the text kind.
func (k TextKind) String() string {
	switch k {
	case TextEvent:
		return "Event"
	case TextResult:
		return "Result"
	case TextError:
		return "Error"
	default:
		return "Unknown"
	}
}

// TextFrame is an inbound text frame: "<header>\n<jsonPayload>".
//
// Payload is nil when the frame has no payload (undefined), which is
// distinct from a payload of JSON null.
type TextFrame struct {
	Kind    TextKind
	ID      uint32    // Correlation id for TextResult and TextError
	Event   EventName // Header for TextEvent
	Payload json.RawMessage
}

// Encode encodes the frame to its wire form.
func (f *TextFrame) Encode() string {
	var header string
	switch f.Kind {
	case TextResult:
		header = "R " + strconv.FormatUint(uint64(f.ID), 10)
	case TextError:
		header = "E " + strconv.FormatUint(uint64(f.ID), 10)
	default:
		header = string(f.Event)
	}
	if f.Payload == nil {
		return header
	}
	return header + "\n" + string(f.Payload)
}

// DecodeText decodes an inbound text frame.
//
// Only the first newline separates the header; the payload must be a
// single valid JSON value. Unknown event headers fail with
// ErrUnknownHeader.
func DecodeText(s string) (*TextFrame, error) {
	if s == "" {
		return nil, ErrEmptyFrame
	}
	header, body, hasBody := strings.Cut(s, "\n")

	f := &TextFrame{}
	if hasBody && body != "" {
		if !json.Valid([]byte(body)) {
			return nil, ErrInvalidPayload
		}
		f.Payload = json.RawMessage(body)
	}

	switch {
	case strings.HasPrefix(header, "R "):
		f.Kind = TextResult
	case strings.HasPrefix(header, "E "):
		f.Kind = TextError
	default:
		f.Kind = TextEvent
		f.Event = EventName(header)
		if !f.Event.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownHeader, header)
		}
		return f, nil
	}

	id, err := strconv.ParseUint(header[2:], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHeader, header)
	}
	f.ID = uint32(id)
	return f, nil
}

// Request is an outbound call: "verb\nid\njson(p1)\njson(p2)...".
//
// A nil entry in Params is an undefined parameter and is encoded as an
// empty line.
type Request struct {
	Verb   string
	ID     uint32
	Params []json.RawMessage
}

// NewRequest builds a request, JSON-encoding every parameter.
func NewRequest(verb string, id uint32, params ...any) (*Request, error) {
	if err := ValidateVerb(verb); err != nil {
		return nil, err
	}
	r := &Request{Verb: verb, ID: id}
	if len(params) > 0 {
		r.Params = make([]json.RawMessage, len(params))
	}
	for i, p := range params {
		if raw, ok := p.(json.RawMessage); ok {
			r.Params[i] = raw
			continue
		}
		b, err := MarshalJSON(p)
		if err != nil {
			return nil, fmt.Errorf("protocol: encode param %d of %s: %w", i, verb, err)
		}
		r.Params[i] = b
	}
	return r, nil
}

// Encode encodes the request to its wire form.
func (r *Request) Encode() string {
	var sb strings.Builder
	sb.WriteString(r.Verb)
	sb.WriteByte('\n')
	sb.WriteString(strconv.FormatUint(uint64(r.ID), 10))
	for _, p := range r.Params {
		sb.WriteByte('\n')
		sb.Write(p)
	}
	return sb.String()
}

// DecodeRequest decodes an outbound request. The client never receives
// requests; this is used by fake authorities in tests and tools.
func DecodeRequest(s string) (*Request, error) {
	if s == "" {
		return nil, ErrEmptyFrame
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return nil, ErrMissingResponse
	}
	if err := ValidateVerb(lines[0]); err != nil {
		return nil, err
	}
	id, err := strconv.ParseUint(lines[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHeader, lines[1])
	}
	r := &Request{Verb: lines[0], ID: uint32(id)}
	if len(lines) > 2 {
		r.Params = make([]json.RawMessage, len(lines)-2)
		for i, line := range lines[2:] {
			if line == "" {
				continue
			}
			if !json.Valid([]byte(line)) {
				return nil, fmt.Errorf("%w: param %d", ErrInvalidPayload, i)
			}
			r.Params[i] = json.RawMessage(line)
		}
	}
	return r, nil
}

// ValidateVerb checks that a verb can be framed unambiguously.
func ValidateVerb(verb string) error {
	if verb == "" || strings.ContainsAny(verb, "\n ") {
		return fmt.Errorf("%w: %q", ErrInvalidVerb, verb)
	}
	return nil
}
