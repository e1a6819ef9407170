// Package latency accumulates capture-to-host latency samples and reduces
// them to summary statistics.
package latency

import (
	"math"
	"slices"
	"time"
)

// Summary contains latency statistics for one test run, in milliseconds.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean_ms"`
	Min    float64 `json:"min_ms"`
	P50    float64 `json:"p50_ms"`
	P95    float64 `json:"p95_ms"`
	P99    float64 `json:"p99_ms"`
	Max    float64 `json:"max_ms"`
	StdDev float64 `json:"stddev_ms"`

	// FPS is the mean host-side frame rate over the measured frames.
	FPS float64 `json:"fps,omitempty"`
}

// Summarize computes statistics from latency samples in milliseconds.
// The input is not modified. ok is false for an empty input.
func Summarize(samples []float64) (s Summary, ok bool) {
	n := len(samples)
	if n == 0 {
		return Summary{}, false
	}

	var total float64
	for _, x := range samples {
		total += x
	}
	mean := total / float64(n)

	// population variance
	var sumSquares float64
	for _, x := range samples {
		d := x - mean
		sumSquares += d * d
	}

	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	return Summary{
		Count:  n,
		Mean:   mean,
		Min:    sorted[0],
		P50:    Percentile(sorted, 0.50),
		P95:    Percentile(sorted, 0.95),
		P99:    Percentile(sorted, 0.99),
		Max:    sorted[n-1],
		StdDev: math.Sqrt(sumSquares / float64(n)),
	}, true
}

// Percentile returns the sample at rank floor(p*(n-1)) of an ascending slice.
// p is a fraction in [0, 1] and is clamped to that range.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

// Millis converts a duration to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
