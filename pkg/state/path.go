package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Step is one element of a Path: an object key or an array index.
type Step struct {
	key     string
	index   int
	isIndex bool
}

// Key returns a step addressing an object member.
func Key(k string) Step { return Step{key: k} }

// Index returns a step addressing an array element.
func Index(i int) Step { return Step{index: i, isIndex: true} }

// IsIndex reports whether the step is an array index.
func (s Step) IsIndex() bool { return s.isIndex }

// Key returns the object key. It is "" for index steps.
func (s Step) Key() string { return s.key }

// Index returns the array index. It is 0 for key steps.
func (s Step) Index() int { return s.index }

// String returns the step as it would appear in a JavaScript accessor.
func (s Step) String() string {
	if s.isIndex {
		return "[" + strconv.Itoa(s.index) + "]"
	}
	return strconv.Quote(s.key)
}

// MarshalJSON encodes a key as a JSON string and an index as a number.
func (s Step) MarshalJSON() ([]byte, error) {
	if s.isIndex {
		return []byte(strconv.Itoa(s.index)), nil
	}
	return json.Marshal(s.key)
}

// UnmarshalJSON accepts a JSON string or an integral JSON number.
func (s *Step) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var k string
		if err := json.Unmarshal(b, &k); err != nil {
			return err
		}
		*s = Key(k)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("%w: step %s", ErrInvalidPath, b)
	}
	if f < 0 || f > math.MaxInt32 || f != math.Trunc(f) {
		return fmt.Errorf("%w: index %s", ErrInvalidPath, b)
	}
	*s = Index(int(f))
	return nil
}

// Path addresses a node in a state tree. The empty path is the root.
type Path []Step

// PathOf builds a path from strings (keys) and ints (indices).
func PathOf(elems ...any) (Path, error) {
	p := make(Path, 0, len(elems))
	for _, e := range elems {
		switch v := e.(type) {
		case string:
			p = append(p, Key(v))
		case int:
			if v < 0 {
				return nil, fmt.Errorf("%w: negative index %d", ErrInvalidPath, v)
			}
			p = append(p, Index(v))
		case Step:
			p = append(p, v)
		default:
			return nil, fmt.Errorf("%w: step of type %T", ErrInvalidPath, e)
		}
	}
	return p, nil
}

// MustPath is like PathOf but panics on error.
func MustPath(elems ...any) Path {
	p, err := PathOf(elems...)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseArgs builds a path from command-line style arguments. An argument
// made only of decimal digits is an index; anything else is a key. A
// leading backslash forces a key ("\0" is the key "0").
func ParseArgs(args []string) Path {
	p := make(Path, 0, len(args))
	for _, a := range args {
		if strings.HasPrefix(a, `\`) {
			p = append(p, Key(a[1:]))
			continue
		}
		if i, err := strconv.Atoi(a); err == nil && i >= 0 && a == strconv.Itoa(i) {
			p = append(p, Index(i))
			continue
		}
		p = append(p, Key(a))
	}
	return p
}

// ParsePath decodes a wire path. An absent or null path is the root.
func ParsePath(raw json.RawMessage) (Path, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Path{}, nil
	}
	var p Path
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("state: decode path: %w", err)
	}
	return p, nil
}

// MarshalJSON encodes the path as a JSON array. The root is [].
func (p Path) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, s := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := s.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// String returns the path in accessor form, e.g. .players[0].name.
func (p Path) String() string {
	if len(p) == 0 {
		return "<root>"
	}
	var sb strings.Builder
	for _, s := range p {
		if !s.isIndex {
			sb.WriteByte('.')
			sb.WriteString(s.key)
			continue
		}
		sb.WriteString(s.String())
	}
	return sb.String()
}

// Validate checks that no key step is a forbidden key.
func (p Path) Validate() error {
	for i, s := range p {
		if !s.isIndex && forbiddenKey(s.key) {
			return fmt.Errorf("%w: %q at step %d", ErrForbiddenKey, s.key, i)
		}
	}
	return nil
}
