package room

import (
	"errors"
	"fmt"

	"github.com/vango-dev/roomclient/pkg/rpc"
)

// Sentinel errors for session operations rejected locally. No frame is
// sent when one of these is returned.
var (
	// ErrPermission is returned for a service send while the session does
	// not own the room.
	ErrPermission = errors.New("room: not permitted")

	// ErrSessionState is the parent of every lifecycle error below.
	ErrSessionState = errors.New("room: invalid session state")

	// ErrAlreadyConnected is returned by Connect on a connected session.
	ErrAlreadyConnected = fmt.Errorf("%w: already connected", ErrSessionState)

	// ErrConnecting is returned by Connect while a connect is in flight.
	ErrConnecting = fmt.Errorf("%w: connect in progress", ErrSessionState)

	// ErrDestroyed is returned by every operation after Destroy.
	ErrDestroyed = fmt.Errorf("%w: destroyed", ErrSessionState)
)

// ProtocolError reports a frame or delta the session could not
// interpret: a malformed frame, a message from an unknown connection, or
// a state path that does not fit the tree. It is fatal to the frame, not
// to the session.
type ProtocolError struct {
	Op  string // What was being processed, e.g. "RoomStateChangedEvent"
	Err error  // Underlying error
}

// Error returns the error message.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("room: protocol error in %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// StateConflictError is returned when the room service rejects a state
// write, typically because the expected hash no longer matches. The local
// tree is left untouched.
type StateConflictError struct {
	Err *rpc.RemoteError
}

// Error returns the error message.
func (e *StateConflictError) Error() string {
	return fmt.Sprintf("room: state write rejected: %s", e.Err.Message())
}

// Unwrap returns the remote error.
func (e *StateConflictError) Unwrap() error {
	return e.Err
}

// ConnectError is returned by Connect when the room service refuses the
// connection.
type ConnectError struct {
	Resource string
	Reason   string
}

// Error returns the error message.
func (e *ConnectError) Error() string {
	return fmt.Sprintf("room: connect %q refused: %s", e.Resource, e.Reason)
}

// ChannelError is an error reported by the transport peer itself rather
// than as a call failure.
type ChannelError struct {
	Message string
}

// Error returns the error message.
func (e *ChannelError) Error() string {
	return "room: channel error: " + e.Message
}
