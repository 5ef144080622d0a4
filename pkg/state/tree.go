// Package state implements the room state tree.
//
// A tree is a JSON value as produced by encoding/json: map[string]any,
// []any, float64, string, bool or nil. Trees are never mutated in place.
// Apply and Delete return a new root that shares every unchanged branch
// with the old one, and return the old root itself when nothing changed,
// so callers can detect changes with reference equality (see Same).
package state

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/vango-dev/roomclient/pkg/protocol"
)

// Errors returned by tree operations.
var (
	ErrPathMismatch = errors.New("state: path step does not match node shape")
	ErrForbiddenKey = errors.New("state: forbidden object key")
	ErrInvalidPath  = errors.New("state: invalid path")
)

func forbiddenKey(k string) bool {
	switch k {
	case "__proto__", "constructor", "prototype":
		return true
	}
	return false
}

func mismatch(p Path, depth int, node any) error {
	return fmt.Errorf("%w: step %d %s on %s", ErrPathMismatch, depth, p[depth], kindOf(node))
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Select reads the value at p. It reports false when any step is missing,
// out of range, or does not match the node shape; it never fails.
func Select(tree any, p Path) (any, bool) {
	v, ok, err := Lookup(tree, p)
	if err != nil {
		return nil, false
	}
	return v, ok
}

// Lookup reads the value at p. A missing key or index reports false with
// no error. A step that does not fit the node (a key on an array, an
// index on an object, or any step on a scalar or null) fails with
// ErrPathMismatch.
func Lookup(tree any, p Path) (any, bool, error) {
	node := tree
	for i, s := range p {
		switch n := node.(type) {
		case map[string]any:
			if s.isIndex {
				return nil, false, mismatch(p, i, node)
			}
			if forbiddenKey(s.key) {
				return nil, false, fmt.Errorf("%w: %q at step %d", ErrForbiddenKey, s.key, i)
			}
			v, ok := n[s.key]
			if !ok {
				return nil, false, nil
			}
			node = v
		case []any:
			if !s.isIndex {
				return nil, false, mismatch(p, i, node)
			}
			if s.index >= len(n) {
				return nil, false, nil
			}
			node = n[s.index]
		default:
			return nil, false, mismatch(p, i, node)
		}
	}
	return node, true, nil
}

// Same reports whether a and b are the same value by reference: the same
// map, a slice with the same backing array and length, or equal scalars.
func Same(a, b any) bool {
	switch x := a.(type) {
	case map[string]any:
		y, ok := b.(map[string]any)
		return ok && reflect.ValueOf(x).UnsafePointer() == reflect.ValueOf(y).UnsafePointer()
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) || (x == nil) != (y == nil) {
			return false
		}
		return len(x) == 0 || &x[0] == &y[0]
	case nil, string, float64, bool:
		return a == b
	}
	return false
}

// Apply returns tree with the value at p replaced by data.
//
// The empty path replaces the whole tree. Missing object members are
// added; an index equal to the array length appends and a larger index
// pads the array with nulls. Absent or null intermediate nodes are
// created with the shape the next step asks for. Padding is limited:
// an index past the end of the array fails with ErrInvalidPath once it
// reaches protocol.MaxCollectionCount. Every branch whose value is
// unchanged is returned as-is.
func Apply(tree any, p Path, data any) (any, error) {
	return apply(tree, p, 0, data, false)
}

// Delete returns tree with the value at p removed. An array element is
// spliced out, shifting later elements; an object member is removed.
// Deleting something that is not there returns tree unchanged. The empty
// path deletes the whole tree and reports present=false.
func Delete(tree any, p Path) (next any, present bool, err error) {
	if len(p) == 0 {
		return nil, false, nil
	}
	next, err = apply(tree, p, 0, nil, true)
	return next, true, err
}

func apply(node any, p Path, depth int, data any, del bool) (any, error) {
	if depth == len(p) {
		return data, nil
	}
	s := p[depth]
	last := depth == len(p)-1

	if node == nil {
		if del {
			return nil, nil
		}
		if s.isIndex {
			node = []any(nil)
		} else {
			node = map[string]any(nil)
		}
	}

	switch n := node.(type) {
	case map[string]any:
		if s.isIndex {
			return nil, mismatch(p, depth, node)
		}
		if forbiddenKey(s.key) {
			return nil, fmt.Errorf("%w: %q at step %d", ErrForbiddenKey, s.key, depth)
		}
		cur, exists := n[s.key]
		if last && del {
			if !exists {
				return node, nil
			}
			out := make(map[string]any, len(n)-1)
			for k, v := range n {
				if k != s.key {
					out[k] = v
				}
			}
			return out, nil
		}
		if del && !exists {
			return node, nil
		}
		next, err := apply(cur, p, depth+1, data, del)
		if err != nil {
			return nil, err
		}
		if exists && Same(cur, next) {
			return node, nil
		}
		out := make(map[string]any, len(n)+1)
		for k, v := range n {
			out[k] = v
		}
		out[s.key] = next
		return out, nil

	case []any:
		if !s.isIndex {
			return nil, mismatch(p, depth, node)
		}
		i := s.index
		if i < 0 {
			return nil, fmt.Errorf("%w: negative index %d", ErrInvalidPath, i)
		}
		inRange := i < len(n)
		if last && del {
			if !inRange {
				return node, nil
			}
			out := make([]any, 0, len(n)-1)
			out = append(out, n[:i]...)
			return append(out, n[i+1:]...), nil
		}
		if del && !inRange {
			return node, nil
		}
		if i > len(n) && i >= protocol.MaxCollectionCount {
			return nil, fmt.Errorf("%w: index %d pads array of %d past %d elements",
				ErrInvalidPath, i, len(n), protocol.MaxCollectionCount)
		}
		var cur any
		if inRange {
			cur = n[i]
		}
		next, err := apply(cur, p, depth+1, data, del)
		if err != nil {
			return nil, err
		}
		if inRange && Same(cur, next) {
			return node, nil
		}
		size := len(n)
		if i >= size {
			size = i + 1
		}
		out := make([]any, size)
		copy(out, n)
		out[i] = next
		return out, nil
	}
	return nil, mismatch(p, depth, node)
}
