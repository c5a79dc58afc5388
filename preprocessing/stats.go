package preprocessing

import (
	"math"
	"sort"
)

// Median returns the median of values, averaging the two middle elements for an even
// count. It returns NaN for an empty slice. values is not modified.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Mode returns the most frequent level in counts. Ties go to the lexicographically
// smallest level. ok is false when counts is empty.
func Mode(counts map[string]int) (level string, ok bool) {
	best := -1
	for l, c := range counts {
		if c > best || (c == best && l < level) {
			level, best = l, c
		}
	}
	return level, best >= 0
}

// SortedLevels returns the keys of counts in ascending order.
func SortedLevels(counts map[string]int) []string {
	levels := make([]string, 0, len(counts))
	for l := range counts {
		levels = append(levels, l)
	}
	sort.Strings(levels)
	return levels
}
