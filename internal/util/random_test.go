package util

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateRandomID(t *testing.T) {
	tests := []struct {
		name       string
		prefix     string
		hexLength  int
		wantPrefix string
		wantLength int // expected total length: prefix + hexLength
	}{
		{
			name:       "job ID format",
			prefix:     PrefixJob,
			hexLength:  32,
			wantPrefix: "job_",
			wantLength: 36,
		},
		{
			name:       "custom prefix",
			prefix:     "test_",
			hexLength:  16,
			wantPrefix: "test_",
			wantLength: 21,
		},
		{
			name:       "zero length",
			prefix:     "x_",
			hexLength:  0,
			wantPrefix: "x_",
			wantLength: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateRandomID(tt.prefix, tt.hexLength)

			if !strings.HasPrefix(got, tt.wantPrefix) {
				t.Errorf("GenerateRandomID() = %v, want prefix %v", got, tt.wantPrefix)
			}
			if len(got) != tt.wantLength {
				t.Errorf("GenerateRandomID() length = %v, want %v", len(got), tt.wantLength)
			}
		})
	}
}

func TestGenerateRandomHexCharset(t *testing.T) {
	got := GenerateRandomHex(64)
	for _, c := range got {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Fatalf("unexpected character %q in %s", c, got)
		}
	}
}

func TestRandomIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateRandomID("u_", 32)
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestNewRecordIDOrdering(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewRecordID(PrefixInteraction, base)
	b := NewRecordID(PrefixInteraction, base)
	c := NewRecordID(PrefixInteraction, base.Add(time.Second))

	if !strings.HasPrefix(a, PrefixInteraction) {
		t.Errorf("missing prefix: %s", a)
	}
	if !(a < b && b < c) {
		t.Errorf("record IDs not ordered: %s %s %s", a, b, c)
	}
	if len(a) != len(PrefixInteraction)+26 {
		t.Errorf("unexpected length %d", len(a))
	}
}
