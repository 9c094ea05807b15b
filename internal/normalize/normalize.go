// Package normalize implements the deterministic text canonicalization used
// by the parser, the product matcher, and the route lookup (§4.A): every
// client name, product name, and route name is compared only after passing
// through Norm.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks removes Unicode combining marks (accents) left behind by NFD
// decomposition, so "É" becomes "E" rather than "E" + combining acute.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Norm canonicalizes s: upper-case, strip accents, drop anything outside
// [A-Z0-9 ], collapse whitespace runs, trim. It is idempotent: Norm(Norm(s))
// == Norm(s) for every s.
func Norm(s string) string {
	upper := strings.ToUpper(s)

	deaccented, _, err := transform.String(stripMarks, upper)
	if err != nil {
		deaccented = upper
	}

	var b strings.Builder
	b.Grow(len(deaccented))
	lastWasSpace := false
	for _, r := range deaccented {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastWasSpace = false
		case r == ' ' || unicode.IsSpace(r):
			if !lastWasSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			lastWasSpace = true
		default:
			// dropped: punctuation, symbols, anything else outside [A-Z0-9 ]
		}
	}

	return strings.TrimSpace(b.String())
}
