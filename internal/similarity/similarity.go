// Package similarity provides the text-similarity seam used by the
// deduplication engine. The engine always calls the function in a fixed
// argument order (new-record text first); symmetry is not assumed.
package similarity

import (
	"context"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Func scores how likely a and b describe the same real-world project,
// in [0,1].
type Func func(ctx context.Context, a, b string) (float64, error)

// Lexical returns a local similarity function blending normalized edit
// distance with word-set overlap. It never fails; the error return exists
// so remote implementations can satisfy the same seam.
func Lexical() Func {
	return func(_ context.Context, a, b string) (float64, error) {
		na, nb := Normalize(a), Normalize(b)
		if na == "" || nb == "" {
			return 0, nil
		}
		edit := levenshtein.Similarity(na, nb, nil)
		jac := jaccard(na, nb)
		return 0.6*edit + 0.4*jac, nil
	}
}

var foldDiacritics = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Normalize lowercases, strips diacritics, and collapses non-alphanumeric
// runs to single spaces so comparison keys match across typographic noise.
func Normalize(s string) string {
	s = strings.ToLower(s)
	if folded, _, err := transform.String(foldDiacritics, s); err == nil {
		s = folded
	}
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		} else {
			space = true
		}
	}
	return b.String()
}

// jaccard computes word-set overlap on normalized text.
func jaccard(a, b string) float64 {
	wa := strings.Fields(a)
	wb := strings.Fields(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	set := make(map[string]bool, len(wa))
	for _, w := range wa {
		set[w] = true
	}
	union := make(map[string]bool, len(wa)+len(wb))
	for _, w := range wa {
		union[w] = true
	}
	inter := 0
	seen := make(map[string]bool, len(wb))
	for _, w := range wb {
		union[w] = true
		if set[w] && !seen[w] {
			inter++
			seen[w] = true
		}
	}
	return float64(inter) / float64(len(union))
}
