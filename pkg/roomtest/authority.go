// Package roomtest provides an in-memory room service for testing code
// built on room sessions.
//
// # Quick Start
//
//	func TestScoreboard(t *testing.T) {
//	    s, auth := roomtest.NewSession(t, roomtest.WithOwned(true))
//	    if _, err := s.Connect(ctx, "web"); err != nil {
//	        t.Fatalf("connect: %v", err)
//	    }
//	    roomtest.Eventually(t, s.Entered)
//
//	    auth.Join(roomtest.Conn("c2", "acc-2", "Bob"))
//	    if err := s.ChangeState(ctx, 10, state.MustPath("score"), false); err != nil {
//	        t.Fatalf("change state: %v", err)
//	    }
//	}
//
// The Authority answers connect requests, GetTime, SendMessage,
// ChangeState, BulkChangeState and SetAccess like the real service does,
// including the hash check on state writes, and lets tests push roster,
// door, state and message events.
package roomtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/vango-dev/roomclient/pkg/protocol"
	"github.com/vango-dev/roomclient/pkg/state"
	"github.com/vango-dev/roomclient/pkg/transport"
)

// HandlerFunc answers one call. A returned *CallError becomes an "E"
// response carrying its payload; any other error is sent as its message.
type HandlerFunc func(req *protocol.Request) (any, error)

// CallError is a failure response with an arbitrary payload.
type CallError struct {
	Payload any
}

func (e *CallError) Error() string { return fmt.Sprint(e.Payload) }

// ErrHashMismatch is the failure returned for a stale state write.
var ErrHashMismatch = errors.New("hash mismatch")

// Authority is a fake room service on the server end of a transport.
type Authority struct {
	t transport.Transport

	mu            sync.Mutex
	now           func() time.Time
	room          protocol.RoomInfo
	self          protocol.ConnectionInfo
	users         []protocol.ConnectionInfo
	door          protocol.DoorData
	tree          any
	present       bool
	refuse        string
	connected     bool
	handlers      map[string]HandlerFunc
	requests      []*protocol.Request
	sends         []*protocol.SendRequest
	disconnects   []string
	skipHandshake bool
}

// NewAuthority creates an authority serving room on t. self is the
// identity granted to the client on connect.
func NewAuthority(t transport.Transport, room protocol.RoomInfo, self protocol.ConnectionInfo) *Authority {
	return &Authority{
		t:        t,
		now:      time.Now,
		room:     room,
		self:     self,
		door:     protocol.DoorData{Mode: protocol.DoorOpen, Allowlist: []string{}, Blocklist: []string{}, Knock: []protocol.Account{}},
		handlers: make(map[string]HandlerFunc),
	}
}

// Conn builds a ConnectionInfo.
func Conn(id, accountID, name string) protocol.ConnectionInfo {
	return protocol.ConnectionInfo{
		ID:       id,
		Account:  protocol.Account{ID: accountID, Name: name},
		Resource: "test",
	}
}

// SetNow replaces the service clock used to answer GetTime.
func (a *Authority) SetNow(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
}

// Handle overrides the answer to verb.
func (a *Authority) Handle(verb string, h HandlerFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[verb] = h
}

// RefuseConnect makes the next connect requests fail with reason. An
// empty reason accepts connects again.
func (a *Authority) RefuseConnect(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refuse = reason
}

// SkipSnapshot stops the authority from sending ConnectionInfoEvent and
// RoomInfoEvent after a successful connect.
func (a *Authority) SkipSnapshot() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.skipHandshake = true
}

// SetState replaces the service's state tree without notifying the
// client, as if another writer had raced ahead.
func (a *Authority) SetState(tree any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tree, a.present = tree, true
}

// State returns the service's state tree.
func (a *Authority) State() (any, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tree, a.present
}

// Requests returns the text calls received so far.
func (a *Authority) Requests() []*protocol.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.requests)
}

// Sends returns the binary send-message calls received so far.
func (a *Authority) Sends() []*protocol.SendRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.sends)
}

// Disconnects returns the reasons of client disconnects received so far.
func (a *Authority) Disconnects() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.disconnects)
}

// Serve answers the client until ctx ends or the transport closes.
func (a *Authority) Serve(ctx context.Context) error {
	for {
		msg, err := a.t.Receive(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := a.handle(msg); err != nil {
			if errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

func (a *Authority) handle(msg transport.Message) error {
	switch msg.Kind {
	case transport.KindConnect:
		return a.handleConnect(msg.Text)
	case transport.KindDisconnect:
		a.mu.Lock()
		a.disconnects = append(a.disconnects, msg.Text)
		a.connected = false
		a.users = slices.DeleteFunc(a.users, func(c protocol.ConnectionInfo) bool { return c.ID == a.self.ID })
		a.mu.Unlock()
		return nil
	case transport.KindText:
		req, err := protocol.DecodeRequest(msg.Text)
		if err != nil {
			return fmt.Errorf("roomtest: bad request %q: %w", msg.Text, err)
		}
		return a.handleRequest(req)
	case transport.KindBinary:
		return a.handleBinary(msg.Binary)
	}
	return nil
}

func (a *Authority) handleConnect(resource string) error {
	a.mu.Lock()
	refuse := a.refuse
	if refuse == "" {
		a.connected = true
		a.self.Resource = resource
		if !slices.ContainsFunc(a.users, func(c protocol.ConnectionInfo) bool { return c.ID == a.self.ID }) {
			a.users = append(a.users, a.self)
		}
	}
	skip := a.skipHandshake
	self := a.self
	a.mu.Unlock()

	if refuse != "" {
		return a.t.Send(transport.ConnectResult(false, refuse))
	}
	if err := a.t.Send(transport.ConnectResult(true, resource)); err != nil {
		return err
	}
	if skip {
		return nil
	}
	if err := a.push(protocol.EventConnectionInfo, self); err != nil {
		return err
	}
	return a.PushSnapshot()
}

// PushSnapshot sends a RoomInfoEvent with the current roster, door and
// state.
func (a *Authority) PushSnapshot() error {
	a.mu.Lock()
	info := protocol.RoomOnlineInfo{
		RoomInfo: a.room,
		Users:    slices.Clone(a.users),
		Door:     &a.door,
	}
	if a.present {
		b, err := protocol.MarshalJSON(a.tree)
		if err != nil {
			a.mu.Unlock()
			return err
		}
		info.State = b
	}
	payload, err := protocol.MarshalJSON(info)
	a.mu.Unlock()
	if err != nil {
		return err
	}
	return a.sendFrame(protocol.TextFrame{Kind: protocol.TextEvent, Event: protocol.EventRoomInfo, Payload: payload})
}

func (a *Authority) push(event protocol.EventName, v any) error {
	payload, err := protocol.MarshalJSON(v)
	if err != nil {
		return err
	}
	return a.sendFrame(protocol.TextFrame{Kind: protocol.TextEvent, Event: event, Payload: payload})
}

func (a *Authority) sendFrame(f protocol.TextFrame) error {
	return a.t.Send(transport.Text(f.Encode()))
}

func (a *Authority) respond(id uint32, result any, err error) error {
	f := protocol.TextFrame{Kind: protocol.TextResult, ID: id}
	if err != nil {
		f.Kind = protocol.TextError
		var ce *CallError
		if errors.As(err, &ce) {
			result = ce.Payload
		} else {
			result = err.Error()
		}
	}
	if result != nil {
		b, merr := protocol.MarshalJSON(result)
		if merr != nil {
			return merr
		}
		f.Payload = b
	}
	return a.sendFrame(f)
}

func (a *Authority) handleRequest(req *protocol.Request) error {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	h := a.handlers[req.Verb]
	a.mu.Unlock()

	if h != nil {
		res, err := h(req)
		return a.respond(req.ID, res, err)
	}

	var res any
	var err error
	switch req.Verb {
	case protocol.VerbGetTime:
		a.mu.Lock()
		now := a.now
		a.mu.Unlock()
		res = now().UnixMilli()
	case protocol.VerbSendMessage:
		err = a.handleSendMessage(req)
	case protocol.VerbChangeState:
		err = a.handleChangeState(req)
	case protocol.VerbBulkChangeState:
		err = a.handleBulkChangeState(req)
	case protocol.VerbSetAccess:
		err = a.handleSetAccess(req)
	default:
		err = fmt.Errorf("unknown method %s", req.Verb)
	}
	return a.respond(req.ID, res, err)
}

func param(req *protocol.Request, i int, v any) error {
	if i >= len(req.Params) || req.Params[i] == nil {
		return fmt.Errorf("missing param %d", i)
	}
	return json.Unmarshal(req.Params[i], v)
}

func (a *Authority) handleSendMessage(req *protocol.Request) error {
	var recipients []string
	var service bool
	var message string
	if len(req.Params) > 0 && req.Params[0] != nil {
		if err := json.Unmarshal(req.Params[0], &recipients); err != nil {
			return err
		}
	}
	if err := param(req, 1, &service); err != nil {
		return err
	}
	if err := param(req, 2, &message); err != nil {
		return err
	}
	if service && !a.owned() {
		return errors.New("NotPermitted")
	}
	if recipients != nil && !slices.Contains(recipients, a.selfID()) {
		return nil
	}
	raw, err := protocol.MarshalJSON(message)
	if err != nil {
		return err
	}
	data := protocol.MessageData{Message: raw}
	if !service {
		data.From = a.selfID()
	}
	return a.push(protocol.EventMessage, data)
}

func (a *Authority) handleBinary(raw []byte) error {
	f, err := protocol.DecodeBinary(raw)
	if err != nil {
		return fmt.Errorf("roomtest: bad binary frame: %w", err)
	}
	if f.Opcode != protocol.OpSendMessage {
		return nil
	}
	req, err := protocol.DecodeSendRequest(f.Payload)
	if err != nil {
		return fmt.Errorf("roomtest: bad send request: %w", err)
	}
	a.mu.Lock()
	a.sends = append(a.sends, req)
	a.mu.Unlock()

	if req.Recipients != nil && !slices.Contains(req.Recipients, a.selfID()) {
		return nil
	}
	from := a.selfID()
	if req.Service {
		from = ""
	}
	return a.SendBinaryFrom(from, req.Payload)
}

type write struct {
	path   state.Path
	hash   *int32
	data   json.RawMessage
	delete bool
}

func (a *Authority) handleChangeState(req *protocol.Request) error {
	var w write
	if len(req.Params) > 0 {
		p, err := state.ParsePath(req.Params[0])
		if err != nil {
			return err
		}
		w.path = p
	}
	if len(req.Params) > 1 && req.Params[1] != nil {
		if err := json.Unmarshal(req.Params[1], &w.hash); err != nil {
			return err
		}
	}
	if len(req.Params) > 2 && req.Params[2] != nil {
		w.data = req.Params[2]
	} else {
		w.delete = true
	}
	return a.commit([]write{w})
}

func (a *Authority) handleBulkChangeState(req *protocol.Request) error {
	var entries []struct {
		Hash *int32          `json:"hash"`
		Path state.Path      `json:"path"`
		Data json.RawMessage `json:"data"`
	}
	if err := param(req, 0, &entries); err != nil {
		return err
	}
	writes := make([]write, len(entries))
	for i, e := range entries {
		writes[i] = write{path: e.Path, hash: e.Hash, data: e.Data, delete: e.Data == nil}
	}
	return a.commit(writes)
}

// commit checks every hash, then applies the writes in order and
// announces each as a RoomStateChangedEvent.
func (a *Authority) commit(writes []write) error {
	a.mu.Lock()
	tree, present := a.tree, a.present
	for _, w := range writes {
		if w.hash == nil {
			continue
		}
		var v any
		var ok bool
		if present {
			v, ok = state.Select(tree, w.path)
		}
		h, err := state.Hash(v, ok)
		if err != nil {
			a.mu.Unlock()
			return err
		}
		if h != *w.hash {
			a.mu.Unlock()
			return ErrHashMismatch
		}
	}

	changes := make([]protocol.StateChange, 0, len(writes))
	for _, w := range writes {
		var err error
		if w.delete {
			tree, present, err = state.Delete(tree, w.path)
		} else {
			var data any
			if err = json.Unmarshal(w.data, &data); err == nil {
				tree, err = state.Apply(tree, w.path, data)
				present = true
			}
		}
		if err != nil {
			a.mu.Unlock()
			return err
		}
		path, _ := w.path.MarshalJSON()
		changes = append(changes, protocol.StateChange{Path: path, Data: w.data})
	}
	a.tree, a.present = tree, present
	a.mu.Unlock()

	for _, c := range changes {
		if err := a.push(protocol.EventRoomStateChanged, c); err != nil {
			return err
		}
	}
	return nil
}

func (a *Authority) handleSetAccess(req *protocol.Request) error {
	var account, access string
	if err := param(req, 0, &account); err != nil {
		return err
	}
	if err := param(req, 1, &access); err != nil {
		return err
	}
	if !a.owned() {
		return errors.New("NotPermitted")
	}

	a.mu.Lock()
	d := &a.door
	d.Allowlist = slices.DeleteFunc(d.Allowlist, func(id string) bool { return id == account })
	d.Blocklist = slices.DeleteFunc(d.Blocklist, func(id string) bool { return id == account })
	d.Knock = slices.DeleteFunc(d.Knock, func(k protocol.Account) bool { return k.ID == account })
	switch access {
	case protocol.AccessAllow:
		d.Allowlist = append(d.Allowlist, account)
	case protocol.AccessBlock:
		d.Blocklist = append(d.Blocklist, account)
	default:
		a.mu.Unlock()
		return fmt.Errorf("unknown access %q", access)
	}
	door := *d
	a.mu.Unlock()
	return a.push(protocol.EventDoorChanged, door)
}

func (a *Authority) owned() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.room.Owned
}

func (a *Authority) selfID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.self.ID
}
