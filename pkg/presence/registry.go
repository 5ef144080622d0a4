// Package presence maintains the roster of connections in a room.
//
// The Registry reconciles two kinds of input: full snapshots, which
// replace the roster and prune connections that are no longer present,
// and join/leave deltas. Connections are refreshed in place so callers
// holding a *Connection keep a live view.
//
// Each registry record pairs the public Connection with its private
// inbox. Messages addressed to a connection are routed through the
// inbox; only the registry can write to it.
package presence

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vango-dev/roomclient/pkg/emitter"
	"github.com/vango-dev/roomclient/pkg/protocol"
)

// ErrUnknownSender is returned for a message whose sender id is not in
// the roster.
var ErrUnknownSender = errors.New("presence: message from unknown connection")

type record struct {
	conn  *Connection
	inbox *emitter.Emitter[any]
}

// Registry is the authoritative roster of a session. It is safe for
// concurrent use; notifications are delivered after internal locks are
// released.
type Registry struct {
	messenger Messenger

	mu      sync.RWMutex
	selfID  string
	records map[string]*record

	joined emitter.Emitter[*Connection]
	left   emitter.Emitter[*Connection]
}

// NewRegistry creates an empty registry whose connections delegate
// outbound operations to m.
func NewRegistry(m Messenger) *Registry {
	return &Registry{
		messenger: m,
		records:   make(map[string]*record),
	}
}

// OnJoin fires when a connection becomes observable through a join delta.
func (r *Registry) OnJoin() emitter.Stream[*Connection] { return &r.joined }

// OnLeave fires when a connection is removed by a leave delta or pruned
// by a snapshot.
func (r *Registry) OnLeave() emitter.Stream[*Connection] { return &r.left }

// SetSelf records the local connection id. The connection with this id
// is flagged current, whether it is already in the roster or arrives
// later; a previous self connection loses the flag.
func (r *Registry) SetSelf(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[r.selfID]; ok && r.selfID != id {
		rec.conn.setCurrent(false)
	}
	r.selfID = id
	if rec, ok := r.records[id]; ok {
		rec.conn.setCurrent(true)
	}
}

// Self returns the local connection id, or "" before it is known.
func (r *Registry) Self() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selfID
}

// upsert refreshes or creates the record for info. Caller holds r.mu.
func (r *Registry) upsert(info protocol.ConnectionInfo) (*Connection, bool) {
	if rec, ok := r.records[info.ID]; ok {
		rec.conn.refresh(info)
		return rec.conn, false
	}
	c := newConnection(info, info.ID == r.selfID, r.messenger)
	r.records[info.ID] = &record{conn: c, inbox: &c.messages}
	return c, true
}

// Snapshot reconciles the roster against the full list of connections.
// Existing connections are refreshed in place, new ones are created, and
// any connection absent from users is removed with a leave notification.
// It returns the connections that were created and removed.
func (r *Registry) Snapshot(users []protocol.ConnectionInfo) (added, removed []*Connection) {
	r.mu.Lock()
	seen := make(map[string]struct{}, len(users))
	for _, info := range users {
		seen[info.ID] = struct{}{}
		if c, created := r.upsert(info); created {
			added = append(added, c)
		}
	}
	for id, rec := range r.records {
		if _, ok := seen[id]; !ok {
			delete(r.records, id)
			removed = append(removed, rec.conn)
		}
	}
	r.mu.Unlock()

	for _, c := range removed {
		r.left.Emit(c)
		c.leave()
	}
	return added, removed
}

// Join applies a join delta. It returns the connection and whether it was
// newly observable; only new connections produce a join notification.
func (r *Registry) Join(info protocol.ConnectionInfo) (*Connection, bool) {
	r.mu.Lock()
	c, created := r.upsert(info)
	r.mu.Unlock()

	if created {
		r.joined.Emit(c)
	}
	return c, created
}

// Leave applies a leave delta. Unknown ids are ignored.
func (r *Registry) Leave(id string) (*Connection, bool) {
	r.mu.Lock()
	rec, ok := r.records[id]
	if ok {
		delete(r.records, id)
	}
	r.mu.Unlock()

	if !ok {
		return nil, false
	}
	r.left.Emit(rec.conn)
	rec.conn.leave()
	return rec.conn, true
}

// Clear drops the whole roster. Each connection's own leave signal fires,
// but no registry-level leave notifications are sent.
func (r *Registry) Clear() {
	r.mu.Lock()
	records := r.records
	r.records = make(map[string]*record)
	r.mu.Unlock()

	for _, rec := range records {
		rec.conn.leave()
	}
}

// Get returns the connection with the given id.
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, false
	}
	return rec.conn, true
}

// Sender resolves the sender of an inbound message.
func (r *Registry) Sender(id string) (*Connection, error) {
	c, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSender, id)
	}
	return c, nil
}

// Deliver routes data to the inbox of c. It reports false if c is no
// longer in the roster.
func (r *Registry) Deliver(c *Connection, data any) bool {
	r.mu.RLock()
	rec, ok := r.records[c.ID()]
	r.mu.RUnlock()
	if !ok || rec.conn != c {
		return false
	}
	rec.inbox.Emit(data)
	return true
}

// All returns a copy of the roster keyed by connection id.
func (r *Registry) All() map[string]*Connection {
	return r.Select(Selector{})
}

// Select returns the connections matching every set field of s.
func (r *Registry) Select(s Selector) map[string]*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Connection, len(r.records))
	for id, rec := range r.records {
		if s.Match(rec.conn) {
			out[id] = rec.conn
		}
	}
	return out
}

// Len returns the roster size.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
