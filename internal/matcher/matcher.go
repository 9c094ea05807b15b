// Package matcher implements the product matcher (§4.E): exact lookup first,
// then a Levenshtein-ratio fuzzy pass against the active product catalog.
package matcher

import (
	"github.com/agnivade/levenshtein"

	"github.com/dacrisa/comandas-core/internal/normalize"
)

// Method identifies how a product line was resolved.
type Method string

const (
	MethodExact Method = "EXACT"
	MethodFuzzy Method = "FUZZY"
	MethodNone  Method = ""
)

// CatalogEntry is the subset of a catalog product row the matcher needs.
type CatalogEntry struct {
	ProductID string
	NormName  string
	Family    int
}

// Result is the outcome of matching one raw product string.
type Result struct {
	Method    Method
	ProductID string
	Family    int
	Score     float64 // in [0,1]; zero value when Method == MethodNone
}

// Match implements §4.E. catalog must already be in deterministic scan order
// (alphabetical by norm_name, as the catalog loader guarantees) so that ties
// in the fuzzy phase resolve to the first entry encountered.
func Match(raw string, catalog []CatalogEntry, fuzzyThreshold int) Result {
	key := normalize.Norm(raw)
	if key == "" {
		return Result{Method: MethodNone}
	}

	for _, entry := range catalog {
		if entry.NormName == key {
			return Result{Method: MethodExact, ProductID: entry.ProductID, Family: entry.Family, Score: 1.0}
		}
	}

	if len(catalog) == 0 {
		return Result{Method: MethodNone}
	}

	bestScore := -1
	bestIdx := -1
	for i, entry := range catalog {
		score := ratio(key, entry.NormName)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if bestIdx >= 0 && bestScore >= fuzzyThreshold {
		entry := catalog[bestIdx]
		return Result{Method: MethodFuzzy, ProductID: entry.ProductID, Family: entry.Family, Score: float64(bestScore) / 100.0}
	}

	return Result{Method: MethodNone}
}

// ratio computes 100 * (1 - edit_distance / max(len_a, len_b)), rounded down
// to an int percentage, exactly as §4.E defines it.
func ratio(a, b string) int {
	maxLen := len([]rune(a))
	if bl := len([]rune(b)); bl > maxLen {
		maxLen = bl
	}
	if maxLen == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return int(100 * (1 - float64(dist)/float64(maxLen)))
}
