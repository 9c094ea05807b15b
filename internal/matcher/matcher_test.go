package matcher

import "testing"

func catalog() []CatalogEntry {
	return []CatalogEntry{
		{ProductID: "p1", NormName: "COCA COLA", Family: 2},
		{ProductID: "p2", NormName: "LECHE", Family: 1},
		{ProductID: "p3", NormName: "PAN", Family: 3},
	}
}

func TestMatchExact(t *testing.T) {
	got := Match("leche", catalog(), 80)
	if got.Method != MethodExact || got.ProductID != "p2" || got.Family != 1 || got.Score != 1.0 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestMatchFuzzyAboveThreshold(t *testing.T) {
	// "coca kola" normalizes to "COCA KOLA": one substitution against the
	// 9-rune "COCA COLA", ratio int(100*(1-1/9)) = 88 >= 80.
	got := Match("coca kola", catalog(), 80)
	if got.Method != MethodFuzzy {
		t.Fatalf("expected fuzzy match, got %+v", got)
	}
	if got.ProductID != "p1" {
		t.Fatalf("expected p1, got %+v", got)
	}
	if got.Score < 0.8 {
		t.Fatalf("expected score >= 0.8, got %v", got.Score)
	}
}

func TestMatchBelowThresholdIsNoMatch(t *testing.T) {
	got := Match("xyzzy", catalog(), 80)
	if got.Method != MethodNone {
		t.Fatalf("expected no match, got %+v", got)
	}
}

func TestMatchEmptyKey(t *testing.T) {
	got := Match("   ---   ", catalog(), 80)
	if got.Method != MethodNone {
		t.Fatalf("expected no match for empty normalized key, got %+v", got)
	}
}

func TestMatchEmptyCatalog(t *testing.T) {
	got := Match("leche", nil, 80)
	if got.Method != MethodNone {
		t.Fatalf("expected no match against empty catalog, got %+v", got)
	}
}
