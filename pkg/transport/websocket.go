package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/roomclient/pkg/protocol"
)

// Config configures the websocket transport.
type Config struct {
	// HandshakeTimeout bounds the websocket dial plus the join exchange.
	// Default: 10 seconds.
	HandshakeTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a message.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// MaxMessageSize is the maximum size of an incoming message.
	// Default: 4MB.
	MaxMessageSize int64

	// ReceiveBuffer is the number of inbound messages buffered between
	// the socket reader and Receive.
	// Default: 256.
	ReceiveBuffer int

	// EnableCompression negotiates per-message deflate.
	// Default: false.
	EnableCompression bool

	// Header is sent with the websocket upgrade request, typically to
	// carry authentication cookies or tokens.
	Header http.Header

	// Logger receives transport diagnostics.
	// Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		MaxMessageSize:   protocol.DefaultMaxAllocation,
		ReceiveBuffer:    256,
	}
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		d.Logger = slog.Default()
		return d
	}
	out := *c
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = d.HandshakeTimeout
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = d.WriteTimeout
	}
	if out.MaxMessageSize <= 0 {
		out.MaxMessageSize = d.MaxMessageSize
	}
	if out.ReceiveBuffer <= 0 {
		out.ReceiveBuffer = d.ReceiveBuffer
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return &out
}

// WebSocket is a Transport over a gorilla websocket connection.
type WebSocket struct {
	conn   *websocket.Conn
	config *Config
	logger *slog.Logger

	writeMu sync.Mutex

	incoming  chan Message
	readDone  chan struct{}
	readErr   error // set before readDone is closed
	done      chan struct{}
	closeOnce sync.Once
}

// NewWebSocket wraps an established connection and starts its reader.
func NewWebSocket(conn *websocket.Conn, config *Config) *WebSocket {
	config = config.withDefaults()
	conn.SetReadLimit(config.MaxMessageSize)
	ws := &WebSocket{
		conn:     conn,
		config:   config,
		logger:   config.Logger.With("component", "transport", "remote", conn.RemoteAddr().String()),
		incoming: make(chan Message, config.ReceiveBuffer),
		readDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go ws.readLoop()
	return ws
}

// Dial opens a websocket to url, joins roomID and returns the transport
// together with the room description. A refused join fails with
// ErrNotPermitted or ErrHandshake.
func Dial(ctx context.Context, url, roomID string, config *Config) (*WebSocket, *protocol.RoomInfo, error) {
	config = config.withDefaults()
	ctx, cancel := context.WithTimeout(ctx, config.HandshakeTimeout)
	defer cancel()

	dialer := websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  config.HandshakeTimeout,
		EnableCompression: config.EnableCompression,
	}
	conn, resp, err := dialer.DialContext(ctx, url, config.Header)
	if err != nil {
		if resp != nil {
			return nil, nil, fmt.Errorf("transport: dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}

	info, err := join(ctx, conn, roomID)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return NewWebSocket(conn, config), info, nil
}

func join(ctx context.Context, conn *websocket.Conn, roomID string) (*protocol.RoomInfo, error) {
	deadline, _ := ctx.Deadline()
	conn.SetWriteDeadline(deadline)
	conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})
	defer conn.SetWriteDeadline(time.Time{})

	req, err := json.Marshal([]any{methodInit, roomID})
	if err != nil {
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
		return nil, fmt.Errorf("%w: send init: %v", ErrHandshake, err)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: read init: %v", ErrHandshake, err)
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil || len(parts) < 3 {
		return nil, fmt.Errorf("%w: malformed answer %q", ErrHandshake, data)
	}
	var method string
	var ok bool
	if json.Unmarshal(parts[0], &method) != nil || method != methodInit {
		return nil, fmt.Errorf("%w: unexpected answer %s", ErrHandshake, parts[0])
	}
	if err := json.Unmarshal(parts[1], &ok); err != nil {
		return nil, fmt.Errorf("%w: malformed status %s", ErrHandshake, parts[1])
	}
	if !ok {
		var reason string
		json.Unmarshal(parts[2], &reason)
		if reason == "NotPermitted" {
			return nil, fmt.Errorf("%w: room %s", ErrNotPermitted, roomID)
		}
		return nil, fmt.Errorf("%w: %s", ErrHandshake, reason)
	}
	var info protocol.RoomInfo
	if err := json.Unmarshal(parts[2], &info); err != nil {
		return nil, fmt.Errorf("%w: room info: %v", ErrHandshake, err)
	}
	return &info, nil
}

func (ws *WebSocket) readLoop() {
	defer close(ws.readDone)
	for {
		typ, data, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				ws.logger.Error("read error", "error", err)
			}
			ws.readErr = fmt.Errorf("%w: %v", ErrClosed, err)
			return
		}

		var msg Message
		switch typ {
		case websocket.BinaryMessage:
			msg = Binary(data)
		case websocket.TextMessage:
			msg, err = DecodeEnvelope(data)
			if err != nil {
				// surfaced to the session as a channel error
				ws.logger.Warn("invalid control message", "error", err)
				msg = Error(err.Error())
			}
		default:
			continue
		}
		select {
		case ws.incoming <- msg:
		case <-ws.done:
			ws.readErr = ErrClosed
			return
		}
	}
}

// Send writes one message to the socket.
func (ws *WebSocket) Send(msg Message) error {
	select {
	case <-ws.done:
		return ErrClosed
	default:
	}

	typ := websocket.TextMessage
	var data []byte
	if msg.Kind == KindBinary {
		typ = websocket.BinaryMessage
		data = msg.Binary
	} else {
		var err error
		if data, err = EncodeEnvelope(msg); err != nil {
			return err
		}
	}

	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	ws.conn.SetWriteDeadline(time.Now().Add(ws.config.WriteTimeout))
	if err := ws.conn.WriteMessage(typ, data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// Receive returns the next inbound message. Messages read before the
// connection dropped are still delivered; after that Receive returns an
// error wrapping ErrClosed.
func (ws *WebSocket) Receive(ctx context.Context) (Message, error) {
	select {
	case msg := <-ws.incoming:
		return msg, nil
	case <-ws.readDone:
		select {
		case msg := <-ws.incoming:
			return msg, nil
		default:
		}
		return Message{}, ws.readErr
	case <-ws.done:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Close sends a normal close frame and closes the connection.
func (ws *WebSocket) Close() error {
	var err error
	ws.closeOnce.Do(func() {
		close(ws.done)
		ws.writeMu.Lock()
		ws.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		ws.writeMu.Unlock()
		err = ws.conn.Close()
	})
	return err
}
