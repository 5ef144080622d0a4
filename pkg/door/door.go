// Package door keeps the access-control state of a room in sync.
//
// Every ACL update replaces the door state wholesale, but changes are
// detected field by field: subscribers are notified only for the fields
// that actually differ, and once more through OnUpdate if anything did.
package door

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/vango-dev/roomclient/pkg/emitter"
	"github.com/vango-dev/roomclient/pkg/protocol"
)

// ErrReadOnly is returned by Allow and Block on a door created without a
// call function.
var ErrReadOnly = errors.New("door: read-only")

// Changes lists which fields an update changed.
type Changes struct {
	Mode      bool
	Allowlist bool
	Blocklist bool
	Knock     bool
}

// Any reports whether anything changed.
func (c Changes) Any() bool {
	return c.Mode || c.Allowlist || c.Blocklist || c.Knock
}

// Door is the synchronized access-control state of a room.
type Door struct {
	call func(ctx context.Context, verb string, params ...any) error

	mu        sync.RWMutex
	mode      protocol.DoorMode
	allowlist map[string]struct{}
	blocklist map[string]struct{}
	knock     map[string]protocol.Account

	knocked          emitter.Emitter[protocol.Account]
	gone             emitter.Emitter[protocol.Account]
	modeChanged      emitter.Emitter[protocol.DoorMode]
	allowlistChanged emitter.Emitter[[]string]
	blocklistChanged emitter.Emitter[[]string]
	knockChanged     emitter.Emitter[map[string]protocol.Account]
	updated          emitter.Emitter[*Door]
}

// New creates an empty door. call is used by Allow and Block; it may be
// nil for a read-only door.
func New(call func(ctx context.Context, verb string, params ...any) error) *Door {
	return &Door{
		call:      call,
		allowlist: make(map[string]struct{}),
		blocklist: make(map[string]struct{}),
		knock:     make(map[string]protocol.Account),
	}
}

// OnKnock fires for every account that started knocking.
func (d *Door) OnKnock() emitter.Stream[protocol.Account] { return &d.knocked }

// OnGone fires for every account that stopped knocking.
func (d *Door) OnGone() emitter.Stream[protocol.Account] { return &d.gone }

// OnModeChanged fires with the new mode.
func (d *Door) OnModeChanged() emitter.Stream[protocol.DoorMode] { return &d.modeChanged }

// OnAllowlistChanged fires with the new allow list.
func (d *Door) OnAllowlistChanged() emitter.Stream[[]string] { return &d.allowlistChanged }

// OnBlocklistChanged fires with the new block list.
func (d *Door) OnBlocklistChanged() emitter.Stream[[]string] { return &d.blocklistChanged }

// OnKnockChanged fires with the new knock queue.
func (d *Door) OnKnockChanged() emitter.Stream[map[string]protocol.Account] { return &d.knockChanged }

// OnUpdate fires once per update that changed anything.
func (d *Door) OnUpdate() emitter.Stream[*Door] { return &d.updated }

// Mode returns the current door mode, or "" before the first update.
func (d *Door) Mode() protocol.DoorMode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mode
}

// Allowlist returns the allowed account ids, sorted.
func (d *Door) Allowlist() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sortedKeys(d.allowlist)
}

// Blocklist returns the blocked account ids, sorted.
func (d *Door) Blocklist() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sortedKeys(d.blocklist)
}

// Knock returns a copy of the knock queue keyed by account id.
func (d *Door) Knock() map[string]protocol.Account {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(d.knock)
}

// Allowed reports whether accountID is on the allow list.
func (d *Door) Allowed(accountID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.allowlist[accountID]
	return ok
}

// Blocked reports whether accountID is on the block list.
func (d *Door) Blocked(accountID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.blocklist[accountID]
	return ok
}

// Snapshot returns the door state in wire form.
func (d *Door) Snapshot() protocol.DoorData {
	d.mu.RLock()
	defer d.mu.RUnlock()
	knock := make([]protocol.Account, 0, len(d.knock))
	for _, id := range sortedKeys(d.knock) {
		knock = append(knock, d.knock[id])
	}
	return protocol.DoorData{
		Mode:      d.mode,
		Allowlist: sortedKeys(d.allowlist),
		Blocklist: sortedKeys(d.blocklist),
		Knock:     knock,
	}
}

// Update applies an ACL update and notifies subscribers of what changed.
func (d *Door) Update(data protocol.DoorData) Changes {
	allow := toSet(data.Allowlist)
	block := toSet(data.Blocklist)
	incoming := make(map[string]protocol.Account, len(data.Knock))
	for _, a := range data.Knock {
		incoming[a.ID] = a
	}

	var ch Changes
	var arrived, departed []protocol.Account

	d.mu.Lock()
	if d.mode != data.Mode {
		ch.Mode = true
		d.mode = data.Mode
	}
	if !maps.Equal(d.allowlist, allow) {
		ch.Allowlist = true
		d.allowlist = allow
	}
	if !maps.Equal(d.blocklist, block) {
		ch.Blocklist = true
		d.blocklist = block
	}
	for id, a := range d.knock {
		if _, ok := incoming[id]; !ok {
			departed = append(departed, a)
		}
	}
	for id, a := range incoming {
		if _, ok := d.knock[id]; !ok {
			arrived = append(arrived, a)
		}
	}
	if len(arrived) > 0 || len(departed) > 0 {
		ch.Knock = true
		// entries present in both keep their stored descriptor
		next := maps.Clone(d.knock)
		for _, a := range departed {
			delete(next, a.ID)
		}
		for _, a := range arrived {
			next[a.ID] = a
		}
		d.knock = next
	}
	mode := d.mode
	allowlist := sortedKeys(d.allowlist)
	blocklist := sortedKeys(d.blocklist)
	knock := maps.Clone(d.knock)
	d.mu.Unlock()

	sortAccounts(arrived)
	sortAccounts(departed)
	for _, a := range arrived {
		d.knocked.Emit(a)
	}
	for _, a := range departed {
		d.gone.Emit(a)
	}
	if ch.Knock {
		d.knockChanged.Emit(knock)
	}
	if ch.Mode {
		d.modeChanged.Emit(mode)
	}
	if ch.Allowlist {
		d.allowlistChanged.Emit(allowlist)
	}
	if ch.Blocklist {
		d.blocklistChanged.Emit(blocklist)
	}
	if ch.Any() {
		d.updated.Emit(d)
	}
	return ch
}

// Reset clears the door without notifications.
func (d *Door) Reset() {
	d.mu.Lock()
	d.mode = ""
	d.allowlist = make(map[string]struct{})
	d.blocklist = make(map[string]struct{})
	d.knock = make(map[string]protocol.Account)
	d.mu.Unlock()
}

// Allow asks the room service to put accountID on the allow list.
func (d *Door) Allow(ctx context.Context, accountID string) error {
	return d.setAccess(ctx, accountID, protocol.AccessAllow)
}

// Block asks the room service to put accountID on the block list.
func (d *Door) Block(ctx context.Context, accountID string) error {
	return d.setAccess(ctx, accountID, protocol.AccessBlock)
}

func (d *Door) setAccess(ctx context.Context, accountID, access string) error {
	if d.call == nil {
		return ErrReadOnly
	}
	return d.call(ctx, protocol.VerbSetAccess, accountID, access)
}

func toSet(ids []string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func sortAccounts(as []protocol.Account) {
	slices.SortFunc(as, func(a, b protocol.Account) int {
		return strings.Compare(a.ID, b.ID)
	})
}
