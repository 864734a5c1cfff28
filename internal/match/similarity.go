package match

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/pmezard/go-difflib/difflib"
)

// EditDistanceSimilarity returns 100 * (1 - distance/max(len(a), len(b))),
// with lengths counted in runes. Two empty strings are identical and score
// 100.
func EditDistanceSimilarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 100
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 100 * (1 - float64(distance)/float64(longest))
}

// DiffRatioSimilarity returns the matching-blocks ratio of a and b on a
// 0-100 scale: twice the number of matched runes over the total rune count.
func DiffRatioSimilarity(a, b string) float64 {
	m := difflib.NewMatcher(runes(a), runes(b))
	return 100 * m.Ratio()
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
