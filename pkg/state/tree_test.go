package state

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/vango-dev/roomclient/pkg/protocol"
)

func mustJSON(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("unmarshal %s: %v", s, err)
	}
	return v
}

func TestSelect(t *testing.T) {
	tree := map[string]any{
		"players": []any{map[string]any{"name": "ann"}},
		"score":   float64(3),
	}
	tests := []struct {
		name   string
		path   Path
		want   any
		wantOK bool
	}{
		{"root", Path{}, tree, true},
		{"key", MustPath("score"), float64(3), true},
		{"nested", MustPath("players", 0, "name"), "ann", true},
		{"missing_key", MustPath("nope"), nil, false},
		{"out_of_range", MustPath("players", 5), nil, false},
		{"index_on_object", MustPath(0), nil, false},
		{"key_on_array", MustPath("players", "x"), nil, false},
		{"step_on_scalar", MustPath("score", "x"), nil, false},
		{"forbidden", MustPath("__proto__"), nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Select(tree, tc.path)
			if ok != tc.wantOK || !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Select() = %v, %v; want %v, %v", got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestLookupStrict(t *testing.T) {
	tree := map[string]any{"list": []any{1.0}, "n": nil}
	tests := []struct {
		name string
		path Path
		want error
	}{
		{"key_on_array", MustPath("list", "a"), ErrPathMismatch},
		{"index_on_object", MustPath(1), ErrPathMismatch},
		{"step_on_null", MustPath("n", "x"), ErrPathMismatch},
		{"forbidden", MustPath("constructor"), ErrForbiddenKey},
		{"missing_is_not_error", MustPath("other"), nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Lookup(tree, tc.path)
			if !errors.Is(err, tc.want) {
				t.Errorf("Lookup() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestApplySelectRoundTrip(t *testing.T) {
	base := `{"a":{"b":[1,{"c":"x"}],"d":true},"e":null}`
	tests := []struct {
		name  string
		path  Path
		value any
	}{
		{"root", Path{}, "whole"},
		{"replace_key", MustPath("e"), 5.0},
		{"add_key", MustPath("f"), []any{"new"}},
		{"nested_index", MustPath("a", "b", 0), 9.0},
		{"deep", MustPath("a", "b", 1, "c"), map[string]any{"k": "v"}},
		{"append", MustPath("a", "b", 2), "tail"},
		{"create_under_null", MustPath("e", "x"), 1.0},
		{"create_missing", MustPath("g", "h", 0), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tree := mustJSON(t, base)
			next, err := Apply(tree, tc.path, tc.value)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			got, ok := Select(next, tc.path)
			if !ok || !reflect.DeepEqual(got, tc.value) {
				t.Errorf("Select(Apply()) = %v, %v; want %v", got, ok, tc.value)
			}
			if !reflect.DeepEqual(tree, mustJSON(t, base)) {
				t.Error("Apply mutated the previous tree")
			}
		})
	}
}

func TestApplyUnchangedReturnsSameRoot(t *testing.T) {
	tree := mustJSON(t, `{"a":{"b":[1,{"c":"x"}]},"s":"str"}`)
	for _, p := range []Path{Path{}, MustPath("a"), MustPath("a", "b"), MustPath("a", "b", 1), MustPath("a", "b", 1, "c"), MustPath("s")} {
		v, ok := Select(tree, p)
		if !ok {
			t.Fatalf("Select(%s) missing", p)
		}
		next, err := Apply(tree, p, v)
		if err != nil {
			t.Fatalf("Apply(%s) error = %v", p, err)
		}
		if !Same(next, tree) {
			t.Errorf("Apply(%s, Select()) returned a new root", p)
		}
	}
}

func TestApplySharesUntouchedBranches(t *testing.T) {
	tree := mustJSON(t, `{"left":{"x":1},"right":{"y":[2]}}`).(map[string]any)
	next, err := Apply(tree, MustPath("left", "x"), 2.0)
	if err != nil {
		t.Fatal(err)
	}
	m := next.(map[string]any)
	if !Same(m["right"], tree["right"]) {
		t.Error("untouched branch was copied")
	}
	if Same(m["left"], tree["left"]) {
		t.Error("changed branch was not copied")
	}
}

func TestApplyPadsArray(t *testing.T) {
	next, err := Apply([]any{"a"}, MustPath(3), "d")
	if err != nil {
		t.Fatal(err)
	}
	want := []any{"a", nil, nil, "d"}
	if !reflect.DeepEqual(next, want) {
		t.Errorf("Apply() = %v, want %v", next, want)
	}
}

func TestApplyPaddingLimit(t *testing.T) {
	list := []any{"a"}
	tests := []struct {
		name    string
		tree    any
		path    Path
		wantErr error
	}{
		{"append_at_length", list, MustPath(1), nil},
		{"pad_below_limit", list, MustPath(protocol.MaxCollectionCount - 1), nil},
		{"pad_at_limit", list, MustPath(protocol.MaxCollectionCount), ErrInvalidPath},
		{"huge_index", list, MustPath(50_000_000), ErrInvalidPath},
		{"huge_index_in_new_array", map[string]any{}, MustPath("a", 1<<40), ErrInvalidPath},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Apply(tc.tree, tc.path, "x")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Apply() error = %v, want %v", err, tc.wantErr)
			}
			if err == nil {
				if v, ok := Select(next, tc.path); !ok || v != "x" {
					t.Errorf("Select() after Apply = %v, %v", v, ok)
				}
			}
		})
	}
	if len(list) != 1 {
		t.Errorf("input array mutated: %v", list)
	}
}

func TestApplyErrors(t *testing.T) {
	tree := mustJSON(t, `{"list":[1],"n":3}`)
	tests := []struct {
		name string
		path Path
		want error
	}{
		{"key_on_array", MustPath("list", "k"), ErrPathMismatch},
		{"index_on_object", MustPath(0), ErrPathMismatch},
		{"step_on_number", MustPath("n", "k"), ErrPathMismatch},
		{"proto", MustPath("__proto__", "polluted"), ErrForbiddenKey},
		{"prototype_nested", MustPath("list", 0, "prototype"), ErrPathMismatch},
		{"constructor_in_new_object", MustPath("fresh", "constructor"), ErrForbiddenKey},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Apply(tree, tc.path, 1.0); !errors.Is(err, tc.want) {
				t.Errorf("Apply() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	tests := []struct {
		name      string
		tree      string
		path      Path
		want      string
		unchanged bool
	}{
		{"array_splice", `[1,2,3]`, MustPath(1), `[1,3]`, false},
		{"array_last", `[1,2,3]`, MustPath(2), `[1,2]`, false},
		{"array_out_of_range", `[1,2,3]`, MustPath(3), `[1,2,3]`, true},
		{"object_key", `{"a":1,"b":2}`, MustPath("a"), `{"b":2}`, false},
		{"object_missing", `{"a":1}`, MustPath("z"), `{"a":1}`, true},
		{"nested", `{"a":{"b":[0,1]}}`, MustPath("a", "b", 0), `{"a":{"b":[1]}}`, false},
		{"missing_intermediate", `{"a":1}`, MustPath("x", "y"), `{"a":1}`, true},
		{"null_intermediate", `{"a":null}`, MustPath("a", "y"), `{"a":null}`, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tree := mustJSON(t, tc.tree)
			next, present, err := Delete(tree, tc.path)
			if err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if !present {
				t.Error("Delete() present = false")
			}
			if !reflect.DeepEqual(next, mustJSON(t, tc.want)) {
				t.Errorf("Delete() = %v, want %s", next, tc.want)
			}
			if tc.unchanged != Same(next, tree) {
				t.Errorf("Same(next, tree) = %v, want %v", !tc.unchanged, tc.unchanged)
			}
			if _, ok := Select(next, tc.path); ok && !tc.unchanged {
				t.Error("deleted path still selectable")
			}
		})
	}
}

func TestDeleteRoot(t *testing.T) {
	next, present, err := Delete(map[string]any{"a": 1.0}, Path{})
	if err != nil || present || next != nil {
		t.Errorf("Delete(root) = %v, %v, %v", next, present, err)
	}
}

func TestHash(t *testing.T) {
	tests := []struct {
		name  string
		value any
		ok    bool
		want  int32
	}{
		{"absent", nil, false, 0},
		{"number", 10.0, true, -1587730975},
		{"string", "hello", true, 1996738226},
		{"null", nil, true, 634125391},
		{"object_sorted", map[string]any{"b": []any{true, nil}, "a": 1.0}, true, 1168587865},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Hash(tc.value, tc.ok)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("Hash() = %d, want %d", got, tc.want)
			}
		})
	}
}
