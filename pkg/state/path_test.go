package state

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestPathJSON(t *testing.T) {
	p := MustPath("players", 2, "name")
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `["players",2,"name"]` {
		t.Errorf("Marshal = %s", b)
	}
	got, err := ParsePath(b)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, p) {
		t.Errorf("ParsePath() = %v, want %v", got, p)
	}
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Path
		wantErr error
	}{
		{"absent", ``, Path{}, nil},
		{"null", `null`, Path{}, nil},
		{"empty", `[]`, Path{}, nil},
		{"mixed", `["a",0]`, MustPath("a", 0), nil},
		{"fraction", `[1.5]`, nil, ErrInvalidPath},
		{"negative", `[-1]`, nil, ErrInvalidPath},
		{"bool", `[true]`, nil, ErrInvalidPath},
		{"huge_index", `["a",1000000000000000]`, nil, ErrInvalidPath},
		{"exponent_index", `[1e300]`, nil, ErrInvalidPath},
		{"integral_float", `[2.0]`, MustPath(2), nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParsePath(json.RawMessage(tc.raw))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("ParsePath() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePath() error = %v", err)
			}
			if len(got) != len(tc.want) || (len(got) > 0 && !reflect.DeepEqual(got, tc.want)) {
				t.Errorf("ParsePath() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseArgs(t *testing.T) {
	got := ParseArgs([]string{"items", "0", `\1`, "007", "-1"})
	want := Path{Key("items"), Index(0), Key("1"), Key("007"), Key("-1")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseArgs() = %v, want %v", got, want)
	}
}

func TestPathString(t *testing.T) {
	if got := MustPath("a", 0, "b").String(); got != ".a[0].b" {
		t.Errorf("String() = %q", got)
	}
	if got := (Path{}).String(); got != "<root>" {
		t.Errorf("String() = %q", got)
	}
}

func TestPathOfRejects(t *testing.T) {
	if _, err := PathOf(1.5); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("PathOf(1.5) error = %v", err)
	}
	if _, err := PathOf(-2); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("PathOf(-2) error = %v", err)
	}
}
