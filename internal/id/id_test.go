package id

import (
	"testing"
	"time"
)

func TestNewIsHexAndUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		v := New()
		if len(v) != 32 {
			t.Fatalf("expected 32 characters, got %q", v)
		}
		if seen[v] {
			t.Fatalf("duplicate id %q", v)
		}
		seen[v] = true
	}
}

func TestNewSortsByTime(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	earlier := newAt(base)
	later := newAt(base.Add(time.Millisecond))
	if earlier[:12] >= later[:12] {
		t.Fatalf("expected %q to sort before %q", earlier, later)
	}
}
