package presence

import (
	"context"
	"sync"

	"github.com/vango-dev/roomclient/pkg/emitter"
	"github.com/vango-dev/roomclient/pkg/protocol"
)

// Messenger performs the outbound operations a Connection exposes. The
// owning session implements it.
type Messenger interface {
	SendMessage(ctx context.Context, to *Connection, message any, service bool) error
	Block(ctx context.Context, accountID string) error
}

// Message is an inbound application message. From is nil for messages
// without a sender (broadcast or service messages). Data is []byte for
// binary messages and the decoded JSON value for text messages.
type Message struct {
	From *Connection
	Data any
}

// Connection is a live, read-only view of one participant in the room.
// The registry refreshes its fields in place, so a held *Connection
// stays current until the participant leaves.
type Connection struct {
	messenger Messenger

	mu      sync.RWMutex
	info    protocol.ConnectionInfo
	current bool
	gone    bool

	messages emitter.Emitter[any]
	left     emitter.Emitter[*Connection]
}

func newConnection(info protocol.ConnectionInfo, current bool, m Messenger) *Connection {
	return &Connection{info: info, current: current, messenger: m}
}

// ID returns the connection id, stable for an account and resource.
func (c *Connection) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info.ID
}

// AccountID returns the id of the account behind the connection.
func (c *Connection) AccountID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info.Account.ID
}

// Name returns the account display name.
func (c *Connection) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info.Account.Name
}

// Resource returns the resource the connection was opened with.
func (c *Connection) Resource() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info.Resource
}

// Current reports whether this is the local session's own connection.
func (c *Connection) Current() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Info returns a copy of the underlying connection info.
func (c *Connection) Info() protocol.ConnectionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// Gone reports whether the connection has left the room.
func (c *Connection) Gone() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gone
}

// OnMessage delivers messages sent by this connection.
func (c *Connection) OnMessage() emitter.Stream[any] { return &c.messages }

// OnLeave fires once when the connection leaves the room or the roster
// is cleared.
func (c *Connection) OnLeave() emitter.Stream[*Connection] { return &c.left }

// SendMessage sends message to this connection only. A []byte message is
// sent as binary.
func (c *Connection) SendMessage(ctx context.Context, message any, service bool) error {
	return c.messenger.SendMessage(ctx, c, message, service)
}

// Block adds the connection's account to the room's block list.
func (c *Connection) Block(ctx context.Context) error {
	return c.messenger.Block(ctx, c.AccountID())
}

func (c *Connection) refresh(info protocol.ConnectionInfo) {
	c.mu.Lock()
	c.info = info
	c.mu.Unlock()
}

func (c *Connection) setCurrent(current bool) {
	c.mu.Lock()
	c.current = current
	c.mu.Unlock()
}

func (c *Connection) leave() {
	c.mu.Lock()
	if c.gone {
		c.mu.Unlock()
		return
	}
	c.gone = true
	c.mu.Unlock()
	c.left.Emit(c)
}
