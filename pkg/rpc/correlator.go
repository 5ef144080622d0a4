// Package rpc correlates outbound calls with their responses.
//
// A Correlator tags every outbound call with a correlation id. Text calls
// wait for the matching "R <id>" or "E <id>" frame; binary calls are
// fire-and-forget and complete once the frame is handed to the Sender.
//
// Ids are allocated from 1 and never reused for the life of the
// Correlator. There is no timeout and no cancellation: a caller whose
// context ends stops waiting, but the pending entry stays until a
// response for its id arrives.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/vango-dev/roomclient/pkg/protocol"
)

// Sender writes encoded frames to the remote.
type Sender interface {
	SendText(frame string) error
	SendBinary(frame []byte) error
}

// Hook wraps a single text call. It is called before the request is sent
// and returns the context to wait on plus a function that is called
// exactly once with the call's outcome.
type Hook func(ctx context.Context, verb string) (context.Context, func(err error))

// RemoteError is a failure reported by the remote for a call.
// Payload is the decoded response payload, verbatim.
type RemoteError struct {
	Verb    string
	ID      uint32
	Payload json.RawMessage
}

// Error returns the error message.
func (e *RemoteError) Error() string {
	if len(e.Payload) == 0 {
		return fmt.Sprintf("rpc: %s (#%d) failed", e.Verb, e.ID)
	}
	return fmt.Sprintf("rpc: %s (#%d) failed: %s", e.Verb, e.ID, e.Message())
}

// Message returns the payload as a string when it is a JSON string, and
// the raw JSON otherwise.
func (e *RemoteError) Message() string {
	var s string
	if err := json.Unmarshal(e.Payload, &s); err == nil {
		return s
	}
	return string(e.Payload)
}

type result struct {
	ok      bool
	payload json.RawMessage
}

type pending struct {
	verb string
	ch   chan result // buffered, capacity 1
}

// Correlator allocates correlation ids and tracks pending text calls.
// It is safe for concurrent use.
type Correlator struct {
	sender Sender
	hook   Hook

	mu      sync.Mutex
	lastID  uint32
	pending map[uint32]*pending
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithHook installs a hook around every text call.
func WithHook(h Hook) Option {
	return func(c *Correlator) { c.hook = h }
}

// New creates a Correlator writing to sender.
func New(sender Sender, opts ...Option) *Correlator {
	c := &Correlator{
		sender:  sender,
		pending: make(map[uint32]*pending),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Correlator) nextID() uint32 {
	c.lastID++
	return c.lastID
}

// Call sends a text request and waits for its response.
//
// On a success response the payload is returned as-is; it is nil when the
// response carried no payload. On a failure response the error is a
// *RemoteError. If ctx ends first, ctx.Err() is returned and the pending
// entry is left in place.
func (c *Correlator) Call(ctx context.Context, verb string, params ...any) (json.RawMessage, error) {
	if err := protocol.ValidateVerb(verb); err != nil {
		return nil, err
	}

	done := func(error) {}
	if c.hook != nil {
		ctx, done = c.hook(ctx, verb)
	}

	res, err := c.call(ctx, verb, params)
	done(err)
	return res, err
}

func (c *Correlator) call(ctx context.Context, verb string, params []any) (json.RawMessage, error) {
	c.mu.Lock()
	id := c.nextID()
	req, err := protocol.NewRequest(verb, id, params...)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	p := &pending{verb: verb, ch: make(chan result, 1)}
	c.pending[id] = p
	c.mu.Unlock()

	if err := c.sender.SendText(req.Encode()); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("rpc: send %s: %w", verb, err)
	}

	select {
	case r := <-p.ch:
		if !r.ok {
			return nil, &RemoteError{Verb: verb, ID: id, Payload: r.payload}
		}
		return r.payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CallBinary sends [opcode][id][payload] and returns once the frame has
// been handed to the Sender. No response is awaited.
func (c *Correlator) CallBinary(op protocol.Opcode, payload []byte) error {
	if !op.HasID() || op.IsResult() {
		return fmt.Errorf("%w: %s", protocol.ErrUnexpectedOpcode, op)
	}
	c.mu.Lock()
	id := c.nextID()
	c.mu.Unlock()

	frame := protocol.NewCallFrame(op, id, payload)
	if err := c.sender.SendBinary(frame.Encode()); err != nil {
		return fmt.Errorf("rpc: send %s: %w", op, err)
	}
	return nil
}

// Resolve completes the pending call with the given id. It reports
// whether a pending call was found; responses for unknown or already
// resolved ids are ignored.
func (c *Correlator) Resolve(id uint32, ok bool, payload json.RawMessage) bool {
	c.mu.Lock()
	p, found := c.pending[id]
	if found {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !found {
		return false
	}
	p.ch <- result{ok: ok, payload: payload}
	return true
}

// ResolveFrame completes a call from a decoded "R <id>" or "E <id>" frame.
func (c *Correlator) ResolveFrame(f *protocol.TextFrame) bool {
	switch f.Kind {
	case protocol.TextResult:
		return c.Resolve(f.ID, true, f.Payload)
	case protocol.TextError:
		return c.Resolve(f.ID, false, f.Payload)
	}
	return false
}

// Pending returns the number of calls awaiting a response.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// LastID returns the most recently allocated correlation id.
func (c *Correlator) LastID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastID
}
