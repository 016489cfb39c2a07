package formulas

import (
	"math"
)

// CalculateCVaR calculates Conditional Value at Risk (CVaR) at the specified confidence level.
// CVaR is the mean of the worst (1 - confidence) share of outcomes.
//
// Args:
//   - returns: Simulated or historical returns (negative for losses)
//   - confidence: Confidence level (e.g., 0.95 for 95%)
//
// Returns:
//   - CVaR value (negative for losses, positive for gains in tail)
func CalculateCVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}
	if len(returns) == 1 {
		return returns[0]
	}

	sorted := Sorted(returns)

	// Tolerance keeps 1-0.95 from rounding up an exact tail size
	tailCount := int(math.Ceil(float64(len(sorted))*(1.0-confidence) - 1e-9))
	if tailCount == 0 {
		tailCount = 1
	}
	if tailCount > len(sorted) {
		tailCount = len(sorted)
	}

	return Mean(sorted[:tailCount])
}
