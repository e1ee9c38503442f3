package notefile

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Groceries", "Groceries"},
		{"a/b\\c:d*e?f\"g<h>i|j", "a-b-c-d-e-f-g-h-i-j"},
		{"  padded  ", "padded"},
		{"..hidden.", "hidden"},
		{"tab\there", "tab-here"},
		{"", DefaultTitle},
		{" . ", DefaultTitle},
		{"Café ☕", "Café ☕"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitize_TruncatesOnRuneBoundary(t *testing.T) {
	got := Sanitize(strings.Repeat("é", 150))
	if len(got) > maxStemBytes {
		t.Errorf("len = %d, want <= %d", len(got), maxStemBytes)
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncation split a rune: %q", got)
	}
}

func TestFormats(t *testing.T) {
	f := DefaultFormats()
	for name, want := range map[string]bool{
		"a.rtf":      true,
		"b.MD":       true,
		"c.txt":      true,
		"d.png":      false,
		".e.md":      false,
		"f.md~":      false,
		"noext":      false,
		".vellum.db": false,
	} {
		if got := f.Match(name); got != want {
			t.Errorf("Match(%q) = %v, want %v", name, got, want)
		}
	}
	if !f.IsPrimary("x.rtf") || f.IsPrimary("x.md") {
		t.Error("IsPrimary wrong for default formats")
	}
}

func TestNewFormats_Errors(t *testing.T) {
	if _, err := NewFormats(nil, "", nil); err == nil {
		t.Error("expected error for empty whitelist")
	}
	if _, err := NewFormats([]string{"md"}, "rtf", nil); err == nil {
		t.Error("expected error for primary outside whitelist")
	}
	if _, err := NewFormats([]string{"md"}, "", []string{"[unclosed"}); err == nil {
		t.Error("expected error for bad ignore pattern")
	}
}
