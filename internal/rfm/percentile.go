package rfm

import "math"

// percentile returns the nearest-rank percentile of an ascending-sorted
// slice: the value at index ceil(p/100*n)-1, clamped to [0, n-1].
// An empty population short-circuits to 0.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}
