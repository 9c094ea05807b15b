package assignment

import "testing"

func TestNextInPoolNoLast(t *testing.T) {
	pool := []string{"O1", "O2", "O3"}
	if got := nextInPool("", false, pool); got != "O1" {
		t.Fatalf("expected O1, got %q", got)
	}
}

func TestNextInPoolWrapsAround(t *testing.T) {
	pool := []string{"O1", "O2", "O3"}
	if got := nextInPool("O3", true, pool); got != "O1" {
		t.Fatalf("expected wrap to O1, got %q", got)
	}
}

func TestNextInPoolAdvancesOne(t *testing.T) {
	pool := []string{"O1", "O2", "O3"}
	if got := nextInPool("O1", true, pool); got != "O2" {
		t.Fatalf("expected O2, got %q", got)
	}
}

func TestNextInPoolLastNotInPoolFallsBackToFirst(t *testing.T) {
	pool := []string{"O1", "O2", "O3"}
	if got := nextInPool("O9", true, pool); got != "O1" {
		t.Fatalf("expected fallback to O1, got %q", got)
	}
}

func TestInPool(t *testing.T) {
	pool := []string{"O1", "O2"}
	if !inPool("O1", pool) {
		t.Fatalf("expected O1 in pool")
	}
	if inPool("O9", pool) {
		t.Fatalf("expected O9 not in pool")
	}
}
