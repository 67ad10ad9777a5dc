package scoring

import (
	"math"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// jaccard is |a∩b| / |a∪b| over sorted distinct sets. Two empty sets score 0.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter, i, j := 0, 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			inter++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// overlaps reports whether two sorted sets share a member.
func overlaps(a, b []string) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			return true
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return false
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// fuzzy is the normalised Levenshtein similarity of two titles.
func fuzzy(a, b string) float64 {
	if a == "" && b == "" {
		return 0
	}
	n := utf8.RuneCountInString(a)
	if m := utf8.RuneCountInString(b); m > n {
		n = m
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(n)
}

// numberCompat compares the closest pair of thresholds. Two empty sets are
// neutral; one empty set is no evidence.
func numberCompat(a, b []float64) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0.5
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	best := 0.0
	for _, x := range a {
		for _, y := range b {
			if v := numberPair(x, y); v > best {
				best = v
			}
		}
	}
	return best
}

func numberPair(x, y float64) float64 {
	den := math.Max(math.Abs(x), math.Abs(y))
	if den == 0 {
		return 1
	}
	rel := math.Abs(x-y) / den
	switch {
	case rel <= 0.001:
		return 1
	case rel <= 0.01:
		return 0.9
	case rel <= 0.05:
		return 0.5
	default:
		return 0
	}
}
