package report

import (
	"math"
	"sort"
)

// Percentile returns the p-th percentile (0..100) of sorted values using
// linear interpolation between order statistics at rank p/100·(n+1).
// Ranks that fall outside [1, n] clamp to the minimum or maximum.
// An empty input yields 0.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	h := p / 100 * float64(n+1)
	if h <= 1 {
		return sorted[0]
	}
	if h >= float64(n) {
		return sorted[n-1]
	}
	lo := math.Floor(h)
	i := int(lo)
	return sorted[i-1] + (h-lo)*(sorted[i]-sorted[i-1])
}

// Summarize computes count/mean/median/p95/p99/min/max of values.
// The input is not modified.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return Summary{
		Count:  len(sorted),
		Mean:   sum / float64(len(sorted)),
		Median: Percentile(sorted, 50),
		P95:    Percentile(sorted, 95),
		P99:    Percentile(sorted, 99),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
}
