package geocode

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// strippedPunctuation is the fixed punctuation set removed during
// normalization. Commas and similar separators carry no signal for
// free-form geocoder queries.
const strippedPunctuation = `.,;:!?"'()`

var foldCaser = cases.Fold()

// Normalize canonicalizes a free-form address for cache keys and provider
// queries: Unicode NFKC, case fold, punctuation strip, whitespace collapse.
// Normalize is idempotent: Normalize(Normalize(a)) == Normalize(a).
func Normalize(address string) string {
	s := norm.NFKC.String(address)
	s = foldCaser.String(s)

	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(strippedPunctuation, r) {
			sb.WriteRune(' ')
			continue
		}
		sb.WriteRune(r)
	}

	return strings.Join(strings.Fields(sb.String()), " ")
}
