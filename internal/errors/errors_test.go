package errors

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{
			name:    "config error",
			code:    "R120",
			wantMsg: "Config file not found",
			wantCat: CategoryConfig,
		},
		{
			name:    "connect error",
			code:    "R202",
			wantMsg: "Connect refused",
			wantCat: CategoryConnect,
		},
		{
			name:    "state error",
			code:    "R300",
			wantMsg: "State write rejected",
			wantCat: CategoryState,
		},
		{
			name:    "unknown error code",
			code:    "R999",
			wantMsg: "Unknown error",
			wantCat: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CategoryCLI, "unknown flag %q", "--x")
	if err.Message != `unknown flag "--x"` {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Category != CategoryCLI {
		t.Errorf("Category = %q, want %q", err.Category, CategoryCLI)
	}
}

func TestCLIError_Error(t *testing.T) {
	if got, want := New("R300").Error(), "R300: State write rejected"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	err := &CLIError{Message: "test error"}
	if err.Error() != "test error" {
		t.Errorf("Error() = %q, want %q", err.Error(), "test error")
	}

	wrapped := New("R200").Wrap(fmt.Errorf("dial tcp: refused"))
	if got, want := wrapped.Error(), "R200: Room join failed: dial tcp: refused"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestCLIError_Wrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := New("R402").Wrap(cause)
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if err.Unwrap() != cause {
		t.Error("Unwrap() should return the cause")
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, "R100") != nil {
		t.Error("FromError(nil) should be nil")
	}

	plain := stderrors.New("plain")
	got := FromError(plain, "R100")
	if got.Code != "R100" || got.Wrapped != plain {
		t.Errorf("FromError(plain) = %+v", got)
	}

	orig := New("R301")
	chained := fmt.Errorf("set: %w", orig)
	if FromError(chained, "R100") != orig {
		t.Error("FromError should return the CLIError already in the chain")
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	err := New("R120").
		WithDetail("No roomctl.json found in /srv").
		WithSuggestion("Pass --url and --room")
	out := err.Format()

	for _, want := range []string{
		"ERROR R120: Config file not found",
		"No roomctl.json found in /srv",
		"Hint: Pass --url and --room",
		"Learn more: https://vango.dev/docs/roomctl/errors/R120",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("Format() should not contain ANSI codes when colors are disabled")
	}
}

func TestFormatCompact(t *testing.T) {
	err := New("R103").WithDetail(`"fast" is not a duration`)
	want := `R103: Invalid duration ("fast" is not a duration)`
	if got := err.FormatCompact(); got != want {
		t.Errorf("FormatCompact() = %q, want %q", got, want)
	}
}

func TestFormatJSON(t *testing.T) {
	err := New("R300").Wrap(stderrors.New("hash mismatch")).WithSuggestion("Retry")

	var got map[string]string
	if e := json.Unmarshal([]byte(err.FormatJSON()), &got); e != nil {
		t.Fatalf("FormatJSON() is not valid JSON: %v", e)
	}
	if got["code"] != "R300" || got["category"] != "state" {
		t.Errorf("code/category = %q/%q", got["code"], got["category"])
	}
	if got["cause"] != "hash mismatch" {
		t.Errorf("cause = %q", got["cause"])
	}
	if got["suggestion"] != "Retry" {
		t.Errorf("suggestion = %q", got["suggestion"])
	}
}

func TestFprint(t *testing.T) {
	DisableColors()
	defer EnableColors()

	var buf bytes.Buffer
	Fprint(&buf, fmt.Errorf("watch: %w", New("R201")))
	if !strings.Contains(buf.String(), "ERROR R201: Room access denied") {
		t.Errorf("Fprint(CLIError) = %q", buf.String())
	}

	buf.Reset()
	Fprint(&buf, stderrors.New("plain failure"))
	if !strings.Contains(buf.String(), "ERROR: plain failure") {
		t.Errorf("Fprint(plain) = %q", buf.String())
	}
}

func TestRegistry(t *testing.T) {
	codes := GetAllCodes()
	if len(codes) == 0 {
		t.Fatal("no registered codes")
	}
	for _, code := range codes {
		tmpl, ok := GetTemplate(code)
		if !ok {
			t.Errorf("GetTemplate(%q) not found", code)
			continue
		}
		if tmpl.Message == "" || tmpl.Category == "" {
			t.Errorf("template %q is incomplete: %+v", code, tmpl)
		}
		if !strings.HasSuffix(tmpl.DocURL, code) {
			t.Errorf("template %q DocURL = %q", code, tmpl.DocURL)
		}
	}

	Register("R999", ErrorTemplate{Category: CategoryCLI, Message: "Custom", DocURL: docBase + "R999"})
	defer delete(registry, "R999")
	if New("R999").Message != "Custom" {
		t.Error("Register did not add template")
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  int
	}{
		{"", 10, 0},
		{"short", 10, 1},
		{"one two three four five", 9, 3},
	}
	for _, tt := range tests {
		if got := len(wrapText(tt.text, tt.width)); got != tt.want {
			t.Errorf("wrapText(%q, %d) = %d lines, want %d", tt.text, tt.width, got, tt.want)
		}
	}
}
