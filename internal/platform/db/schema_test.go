package db

import (
	"testing"
	"testing/fstest"
)

func TestNewSchema(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"public", true},
		{"billing", true},
		{"medpay_v2", true},
		{"_private", true},
		{"1abc", false},
		{"a-b", false},
		{"a.b", false},
		{"a b", false},
		{"'; DROP TABLE", false},
		{"", false},
	}

	for _, tt := range tests {
		_, err := NewSchema(tt.input, fstest.MapFS{})
		if (err == nil) != tt.valid {
			t.Errorf("NewSchema(%q) error = %v, want valid=%v", tt.input, err, tt.valid)
		}
	}
}

func TestNewSchema_RequiresMigrations(t *testing.T) {
	if _, err := NewSchema("public", nil); err == nil {
		t.Error("expected error for nil migrations")
	}
}

func TestSchema_SearchPath(t *testing.T) {
	if got := (Schema{Name: "public"}).SearchPath(); got != "public" {
		t.Errorf("expected public, got %q", got)
	}
	if got := (Schema{Name: "billing"}).SearchPath(); got != "billing, public" {
		t.Errorf("expected 'billing, public', got %q", got)
	}
}
