// Package transport defines the duplex channel a room session runs on and
// provides two implementations: a websocket transport for real room
// services and an in-memory pipe for tests and embedding.
//
// The session never constructs a transport itself. A negotiation step
// (Dial for websockets) joins the room and hands the session a ready
// Transport plus the room description.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// Errors returned by transports.
var (
	// ErrClosed is returned by Send and Receive after Close.
	ErrClosed = errors.New("transport: closed")

	// ErrNotPermitted is returned by Dial when the room service refuses
	// the join because the account lacks access to the room.
	ErrNotPermitted = errors.New("transport: not permitted")

	// ErrHandshake is returned by Dial for a malformed or rejected join.
	ErrHandshake = errors.New("transport: handshake failed")

	// ErrInvalidEnvelope is returned for a control message that does not
	// match any known shape.
	ErrInvalidEnvelope = errors.New("transport: invalid envelope")
)

// Kind identifies the shape of a Message.
type Kind uint8

const (
	KindText          Kind = iota // Text protocol frame
	KindBinary                    // Binary protocol frame
	KindConnect                   // Connect request; Text is the resource
	KindConnectResult             // Connect result; OK plus granted resource or failure reason in Text
	KindDisconnect                // Disconnect; Text is the reason
	KindError                     // Channel-level error; Text is the message
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "Text"
	case KindBinary:
		return "Binary"
	case KindConnect:
		return "Connect"
	case KindConnectResult:
		return "ConnectResult"
	case KindDisconnect:
		return "Disconnect"
	case KindError:
		return "Error"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Message is one unit exchanged over a Transport.
type Message struct {
	Kind   Kind
	Text   string
	Binary []byte
	OK     bool
}

// Text returns a text frame message.
func Text(frame string) Message { return Message{Kind: KindText, Text: frame} }

// Binary returns a binary frame message.
func Binary(frame []byte) Message { return Message{Kind: KindBinary, Binary: frame} }

// Connect returns a connect request for resource.
func Connect(resource string) Message { return Message{Kind: KindConnect, Text: resource} }

// ConnectResult returns the answer to a connect request.
func ConnectResult(ok bool, message string) Message {
	return Message{Kind: KindConnectResult, OK: ok, Text: message}
}

// Disconnect returns a disconnect message.
func Disconnect(reason string) Message { return Message{Kind: KindDisconnect, Text: reason} }

// Error returns a channel-level error message.
func Error(message string) Message { return Message{Kind: KindError, Text: message} }

// Size returns the payload size of the message in bytes.
func (m Message) Size() int {
	if m.Kind == KindBinary {
		return len(m.Binary)
	}
	return len(m.Text)
}

// Transport is a duplex, in-order message channel.
//
// Send must not block on the remote. Receive blocks until a message
// arrives, ctx ends, or the transport is closed.
type Transport interface {
	Send(msg Message) error
	Receive(ctx context.Context) (Message, error)
	Close() error
}
