package util

import (
	"strings"
	"testing"
)

func TestNewAnonymousID(t *testing.T) {
	id := NewAnonymousID()
	if !strings.HasPrefix(id, AnonymousIDPrefix) {
		t.Fatalf("NewAnonymousID() = %q, want prefix %q", id, AnonymousIDPrefix)
	}
	if !IsAnonymousID(id) {
		t.Errorf("IsAnonymousID(%q) = false", id)
	}
	if NewAnonymousID() == id {
		t.Error("expected distinct ids")
	}
}

func TestIsAnonymousID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"anon_not-a-uuid", false},
		{"42", false},
		{"", false},
		{"anon_123e4567-e89b-12d3-a456-426614174000", true},
	}
	for _, tt := range tests {
		if got := IsAnonymousID(tt.id); got != tt.want {
			t.Errorf("IsAnonymousID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestGenerateRandomID(t *testing.T) {
	tests := []struct {
		prefix     string
		hexLength  int
		wantLength int
	}{
		{"tok_", 32, 36},
		{"", 8, 8},
		{"x", 0, 1},
	}
	for _, tt := range tests {
		id := GenerateRandomID(tt.prefix, tt.hexLength)
		if len(id) != tt.wantLength || !strings.HasPrefix(id, tt.prefix) {
			t.Errorf("GenerateRandomID(%q, %d) = %q", tt.prefix, tt.hexLength, id)
		}
		for _, c := range strings.TrimPrefix(id, tt.prefix) {
			if !strings.ContainsRune("0123456789abcdef", c) {
				t.Errorf("non-hex character %q in %q", c, id)
			}
		}
	}
}
