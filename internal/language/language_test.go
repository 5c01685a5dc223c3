package language

import (
	"slices"
	"testing"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "en"},
		{"en-us", "en-US"},
		{"EN_gb", "en-GB"},
		{"  pt-br ", "pt-BR"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Canonical(tt.input); got != tt.expected {
			t.Errorf("Canonical(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestMatchFollowsPriorityOrder(t *testing.T) {
	available := []string{"fr", "en-GB", "en-US"}

	got, ok := Match([]string{"en", "en-us", "en-gb"}, available)
	if !ok || got != "en-US" {
		t.Fatalf("Match = %q,%v, want en-US", got, ok)
	}

	got, ok = Match([]string{"de", "fr"}, available)
	if !ok || got != "fr" {
		t.Fatalf("Match = %q,%v, want fr", got, ok)
	}

	if _, ok := Match([]string{"en"}, []string{"en-US"}); ok {
		t.Fatal("matching must be exact per priority entry")
	}
	if _, ok := Match([]string{"en"}, nil); ok {
		t.Fatal("expected no match for empty track list")
	}
}

func TestToISO2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "en"},
		{"en-GB", "en"},
		{"pt-BR", "pt"},
		{"", ""},
		{"not a tag", ""},
	}
	for _, tt := range tests {
		if got := ToISO2(tt.input); got != tt.expected {
			t.Errorf("ToISO2(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName(""); got != "Unknown" {
		t.Fatalf("DisplayName(\"\") = %q", got)
	}
	if got := DisplayName("en"); got != "English" {
		t.Fatalf("DisplayName(en) = %q", got)
	}
}

func TestNormalizeList(t *testing.T) {
	got := NormalizeList([]string{"en", "EN", "en-us", " ", "en-US", "fr"})
	want := []string{"en", "en-US", "fr"}
	if !slices.Equal(got, want) {
		t.Fatalf("NormalizeList = %v, want %v", got, want)
	}
}
