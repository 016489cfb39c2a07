// Package formulas holds the statistical helpers shared by the simulation
// and reporting layers. All functions are pure and treat empty input as zero.
package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Min returns the smallest value, or 0 for empty input.
func Min(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return floats.Min(data)
}

// Max returns the largest value, or 0 for empty input.
func Max(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return floats.Max(data)
}

// Sorted returns an ascending copy of data; the input is left untouched.
func Sorted(data []float64) []float64 {
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	return sorted
}

// Percentile returns the empirical quantile p (0..1) of data.
// p outside [0, 1] is clamped.
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return PercentileSorted(Sorted(data), p)
}

// PercentileSorted is Percentile for input that is already sorted ascending.
func PercentileSorted(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	p = math.Max(0, math.Min(1, p))
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// FractionBelow returns the share of values strictly below threshold.
func FractionBelow(data []float64, threshold float64) float64 {
	if len(data) == 0 {
		return 0
	}
	count := 0
	for _, v := range data {
		if v < threshold {
			count++
		}
	}
	return float64(count) / float64(len(data))
}
