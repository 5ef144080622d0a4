package state

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/vango-dev/roomclient/pkg/protocol"
)

func TestStoreApplyChange(t *testing.T) {
	s := NewStore()
	var changes []Change
	s.OnChange().Subscribe(func(c Change) { changes = append(changes, c) })

	if _, err := s.Reset(json.RawMessage(`{"score":1}`)); err != nil {
		t.Fatal(err)
	}
	changed, err := s.ApplyChange(protocol.StateChange{
		Path: json.RawMessage(`["score"]`),
		Data: json.RawMessage(`2`),
	})
	if err != nil || !changed {
		t.Fatalf("ApplyChange() = %v, %v", changed, err)
	}
	// repeating the same delta is not a change
	changed, err = s.ApplyChange(protocol.StateChange{
		Path: json.RawMessage(`["score"]`),
		Data: json.RawMessage(`2`),
	})
	if err != nil || changed {
		t.Fatalf("repeated ApplyChange() = %v, %v", changed, err)
	}

	if len(changes) != 2 {
		t.Fatalf("got %d change notifications, want 2", len(changes))
	}
	last := changes[1]
	if !reflect.DeepEqual(last.State, map[string]any{"score": 2.0}) {
		t.Errorf("State = %v", last.State)
	}
	if !reflect.DeepEqual(last.Prev, map[string]any{"score": 1.0}) {
		t.Errorf("Prev = %v", last.Prev)
	}
	if v, ok := s.Select(MustPath("score")); !ok || v != 2.0 {
		t.Errorf("Select(score) = %v, %v", v, ok)
	}
}

func TestStoreDeleteDelta(t *testing.T) {
	s := NewStore()
	s.Reset(json.RawMessage(`{"a":1,"b":2}`))

	if _, err := s.ApplyChange(protocol.StateChange{Path: json.RawMessage(`["a"]`)}); err != nil {
		t.Fatal(err)
	}
	root, ok := s.Get()
	if !ok || !reflect.DeepEqual(root, map[string]any{"b": 2.0}) {
		t.Errorf("Get() = %v, %v", root, ok)
	}

	// a null payload is a value, not a delete
	s.ApplyChange(protocol.StateChange{Path: json.RawMessage(`["b"]`), Data: json.RawMessage(`null`)})
	if v, ok := s.Select(MustPath("b")); !ok || v != nil {
		t.Errorf("Select(b) = %v, %v; want nil, true", v, ok)
	}

	s.ApplyChange(protocol.StateChange{})
	if _, ok := s.Get(); ok {
		t.Error("root still present after root delete")
	}
}

func TestStoreStructuralErrorLeavesTree(t *testing.T) {
	s := NewStore()
	s.Reset(json.RawMessage(`{"list":[1]}`))
	before, _ := s.Get()

	_, err := s.ApplyChange(protocol.StateChange{Path: json.RawMessage(`["list","x"]`), Data: json.RawMessage(`1`)})
	if !errors.Is(err, ErrPathMismatch) {
		t.Fatalf("ApplyChange() error = %v, want ErrPathMismatch", err)
	}
	after, _ := s.Get()
	if !Same(before, after) {
		t.Error("tree changed after a failed delta")
	}
}

func TestPrepareSingle(t *testing.T) {
	s := NewStore()
	call, err := s.Prepare(Modifier{Path: MustPath("score"), Data: 10})
	if err != nil {
		t.Fatal(err)
	}
	req, err := protocol.NewRequest(call.Verb, 1, call.Params...)
	if err != nil {
		t.Fatal(err)
	}
	// absent value hashes to 0
	if got, want := req.Encode(), "ChangeState\n1\n[\"score\"]\n0\n10"; got != want {
		t.Errorf("request = %q, want %q", got, want)
	}
}

func TestPrepareDeleteAndIgnoreHash(t *testing.T) {
	s := NewStore()
	s.Reset(json.RawMessage(`{"score":10}`))
	call, err := s.Prepare(Modifier{Path: MustPath("score"), Delete: true, IgnoreHash: true})
	if err != nil {
		t.Fatal(err)
	}
	req, _ := protocol.NewRequest(call.Verb, 2, call.Params...)
	if got, want := req.Encode(), "ChangeState\n2\n[\"score\"]\nnull\n"; got != want {
		t.Errorf("request = %q, want %q", got, want)
	}
}

func TestPrepareBulk(t *testing.T) {
	s := NewStore()
	s.Reset(json.RawMessage(`{"score":10}`))
	call, err := s.Prepare(
		Modifier{Path: MustPath("score"), Data: 11},
		Modifier{Path: MustPath("old"), Delete: true, IgnoreHash: true},
		Modifier{Data: nil},
	)
	if err != nil {
		t.Fatal(err)
	}
	if call.Verb != protocol.VerbBulkChangeState || len(call.Params) != 1 {
		t.Fatalf("call = %+v", call)
	}
	b, err := protocol.MarshalJSON(call.Params[0])
	if err != nil {
		t.Fatal(err)
	}
	want := `[{"hash":-1587730975,"path":["score"],"data":11},{"hash":null,"path":["old"]},{"hash":1386507249,"path":[],"data":null}]`
	if string(b) != want {
		t.Errorf("bulk = %s\nwant   %s", b, want)
	}
}

func TestPrepareRejects(t *testing.T) {
	s := NewStore()
	if _, err := s.Prepare(); !errors.Is(err, ErrNoModifiers) {
		t.Errorf("Prepare() error = %v", err)
	}
	if _, err := s.Prepare(Modifier{Path: MustPath("__proto__")}); !errors.Is(err, ErrForbiddenKey) {
		t.Errorf("Prepare(__proto__) error = %v", err)
	}
}
