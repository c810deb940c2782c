package rng

import "testing"

func TestDeterministicSourcesRepeat(t *testing.T) {
	a := NewDeterministic("seed", "effects")
	b := NewDeterministic("seed", "effects")
	for i := 0; i < 16; i++ {
		if x, y := a.Intn(100), b.Intn(100); x != y {
			t.Fatalf("expected identical sequences, got %d and %d at %d", x, y, i)
		}
	}
}

func TestRangeBounds(t *testing.T) {
	src := NewDeterministic("seed", "range")
	for i := 0; i < 256; i++ {
		v := src.Range(-0.7, 1.5)
		if v < -0.7 || v >= 1.5 {
			t.Fatalf("value %v outside [-0.7, 1.5)", v)
		}
	}
	if got := src.Range(2, 1); got != 2 {
		t.Fatalf("expected degenerate range to return min, got %v", got)
	}
	if got := src.Intn(0); got != 0 {
		t.Fatalf("expected Intn(0) to return 0, got %d", got)
	}
}
