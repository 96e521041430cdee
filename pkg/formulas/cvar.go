package formulas

import (
	"math"
	"sort"
)

// CalculateCVaR calculates Conditional Value at Risk (CVaR) at the specified
// confidence level. CVaR is the expected loss given that the loss exceeds the
// VaR threshold.
//
// Args:
//   - returns: Historical returns (can be negative for losses)
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

	// Sort returns in ascending order (worst first)
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	// For 95% confidence, the tail is the worst 5% of returns. The small
	// tolerance keeps exact boundaries (e.g. 20 * 0.05) from rounding up
	// through floating-point noise in 1 - confidence.
	tailProbability := 1.0 - confidence
	tailCount := int(math.Ceil(float64(len(sorted))*tailProbability - 1e-9))

	if tailCount == 0 {
		tailCount = 1
	}
	if tailCount > len(sorted) {
		tailCount = len(sorted)
	}

	tailReturns := sorted[:tailCount]
	sum := 0.0
	for _, r := range tailReturns {
		sum += r
	}

	return sum / float64(len(tailReturns))
}

// CalculatePortfolioCVaR calculates portfolio-level CVaR from the weighted
// portfolio return series.
func CalculatePortfolioCVaR(weights map[string]float64, returns map[string][]float64, confidence float64) float64 {
	if len(weights) == 0 {
		return 0.0
	}

	var length int
	for symbol := range weights {
		if rets, ok := returns[symbol]; ok {
			length = len(rets)
			break
		}
	}
	if length == 0 {
		return 0.0
	}

	series := make([]float64, length)
	for symbol, weight := range weights {
		rets, ok := returns[symbol]
		if !ok || len(rets) != length {
			continue
		}
		for t, r := range rets {
			series[t] += weight * r
		}
	}

	return CalculateCVaR(series, confidence)
}
