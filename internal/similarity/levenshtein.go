// Package similarity computes edit-distance similarity between normalized
// page snapshots.
package similarity

import "unicode/utf8"

// Threshold is the ratio below which two snapshots count as significantly
// different.
const Threshold = 0.95

// Distance returns the Levenshtein edit distance between a and b, counted in
// runes. It runs in O(len(a)*len(b)) time and O(min) memory.
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Ratio returns (maxLen - distance) / maxLen in [0,1]. Two empty strings are
// identical by definition.
func Ratio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1.0
	}
	return float64(maxLen-Distance(a, b)) / float64(maxLen)
}

// RatioBounded behaves like Ratio but refuses the quadratic computation when
// either input exceeds maxRunes. Oversized inputs compare by equality only.
// A maxRunes of zero disables the bound.
func RatioBounded(a, b string, maxRunes int) float64 {
	if maxRunes > 0 && (utf8.RuneCountInString(a) > maxRunes || utf8.RuneCountInString(b) > maxRunes) {
		if a == b {
			return 1.0
		}
		return 0.0
	}
	return Ratio(a, b)
}

// Significant reports whether ratio crosses the change threshold.
func Significant(ratio float64) bool {
	return ratio < Threshold
}
