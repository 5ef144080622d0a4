package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/vango-dev/roomclient/pkg/emitter"
	"github.com/vango-dev/roomclient/pkg/protocol"
)

// ErrNoModifiers is returned by Prepare when called without modifiers.
var ErrNoModifiers = errors.New("state: no modifiers")

// Change is published when the root of a Store changes.
type Change struct {
	State   any
	Prev    any
	Present bool // false when the root was deleted
	Path    Path // path of the delta that caused the change; nil for snapshots
}

// Modifier is one requested state write.
type Modifier struct {
	Path       Path
	Data       any
	Delete     bool // remove the value at Path instead of writing Data
	IgnoreHash bool // skip the remote's stale-read check
}

// Call is an outbound state-write call ready for the correlator.
type Call struct {
	Verb   string
	Params []any
}

type bulkEntry struct {
	Hash *int32          `json:"hash"`
	Path Path            `json:"path"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Store holds the current state tree of a room. The tree changes only
// through inbound deltas and snapshots; writes requested locally are
// turned into calls and take effect when the remote echoes them back.
type Store struct {
	mu      sync.RWMutex
	root    any
	present bool

	changed emitter.Emitter[Change]
}

// NewStore creates a store with an absent root.
func NewStore() *Store {
	return &Store{}
}

// OnChange fires after every change of the root.
func (s *Store) OnChange() emitter.Stream[Change] { return &s.changed }

// Get returns the root and whether it is present.
func (s *Store) Get() (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root, s.present
}

// Select reads the value at p from the current tree.
func (s *Store) Select(p Path) (any, bool) {
	root, ok := s.Get()
	if !ok {
		return nil, false
	}
	return Select(root, p)
}

// Hash returns the hash of the value at p in the current tree.
func (s *Store) Hash(p Path) (int32, error) {
	return Hash(s.Select(p))
}

// Reset replaces the whole tree with a snapshot. A nil raw value leaves
// the root absent.
func (s *Store) Reset(raw json.RawMessage) (bool, error) {
	var root any
	present := raw != nil
	if present {
		if err := json.Unmarshal(raw, &root); err != nil {
			return false, fmt.Errorf("state: decode snapshot: %w", err)
		}
	}
	return s.set(root, present, nil), nil
}

// ApplyChange applies one inbound delta. It reports whether the root
// changed.
func (s *Store) ApplyChange(sc protocol.StateChange) (bool, error) {
	p, err := ParsePath(sc.Path)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	prev, prevPresent := s.root, s.present
	s.mu.RUnlock()

	var next any
	present := true
	if sc.Data == nil {
		if len(p) > 0 && !prevPresent {
			return false, nil
		}
		next, present, err = Delete(prev, p)
	} else {
		var data any
		if err := json.Unmarshal(sc.Data, &data); err != nil {
			return false, fmt.Errorf("state: decode delta data: %w", err)
		}
		next, err = Apply(prev, p, data)
	}
	if err != nil {
		return false, err
	}
	return s.set(next, present, p), nil
}

func (s *Store) set(next any, present bool, p Path) bool {
	s.mu.Lock()
	prev, prevPresent := s.root, s.present
	if present == prevPresent && Same(prev, next) {
		s.mu.Unlock()
		return false
	}
	s.root, s.present = next, present
	s.mu.Unlock()

	s.changed.Emit(Change{State: next, Prev: prev, Present: present, Path: p})
	return true
}

// Clear drops the tree without notification.
func (s *Store) Clear() {
	s.mu.Lock()
	s.root, s.present = nil, false
	s.mu.Unlock()
}

// Prepare builds the call for a set of modifiers, computing each expected
// hash against the current tree. One modifier becomes ChangeState; more
// become a single BulkChangeState preserving order.
func (s *Store) Prepare(mods ...Modifier) (*Call, error) {
	if len(mods) == 0 {
		return nil, ErrNoModifiers
	}
	hashes := make([]*int32, len(mods))
	for i, m := range mods {
		if err := m.Path.Validate(); err != nil {
			return nil, err
		}
		if m.IgnoreHash {
			continue
		}
		h, err := s.Hash(m.Path)
		if err != nil {
			return nil, fmt.Errorf("state: hash %s: %w", m.Path, err)
		}
		hashes[i] = &h
	}

	if len(mods) == 1 {
		m := mods[0]
		var data any = m.Data
		if m.Delete {
			data = json.RawMessage(nil)
		}
		var hash any
		if hashes[0] != nil {
			hash = *hashes[0]
		}
		return &Call{Verb: protocol.VerbChangeState, Params: []any{pathParam(m.Path), hash, data}}, nil
	}

	entries := make([]bulkEntry, len(mods))
	for i, m := range mods {
		entries[i] = bulkEntry{Hash: hashes[i], Path: pathParam(m.Path)}
		if m.Delete {
			continue
		}
		b, err := protocol.MarshalJSON(m.Data)
		if err != nil {
			return nil, fmt.Errorf("state: encode data for %s: %w", m.Path, err)
		}
		entries[i].Data = b
	}
	return &Call{Verb: protocol.VerbBulkChangeState, Params: []any{entries}}, nil
}

func pathParam(p Path) Path {
	if p == nil {
		return Path{}
	}
	return p
}
