// Package formulas provides shared statistical calculations used across
// the allocation, regime, and risk modules.
package formulas

import (
	"math"
	"sort"

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

// Variance calculates the sample variance of a slice of float64 values
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}

// Correlation calculates the Pearson correlation coefficient between two series.
// Returns 0 for mismatched or empty inputs, and clamps the result to [-1, 1]
// to guard against floating-point overshoot.
func Correlation(x, y []float64) float64 {
	if len(x) == 0 || len(y) == 0 || len(x) != len(y) {
		return 0
	}
	corr := stat.Correlation(x, y, nil)
	if math.IsNaN(corr) {
		return 0
	}
	return math.Max(-1.0, math.Min(1.0, corr))
}

// Covariance calculates the sample covariance between two series
func Covariance(x, y []float64) float64 {
	if len(x) == 0 || len(y) == 0 || len(x) != len(y) {
		return 0
	}
	return stat.Covariance(x, y, nil)
}

// CalculateReturns converts prices to simple periodic returns.
// Returns[i] = (Price[i] - Price[i-1]) / Price[i-1]
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}

	return returns
}

// AnnualizedVolatility calculates annualized volatility from periodic returns.
// tradingDays is the annualization convention (252 for equities, 365 for crypto).
func AnnualizedVolatility(returns []float64, tradingDays int) float64 {
	if len(returns) < 2 || tradingDays <= 0 {
		return 0
	}
	return StdDev(returns) * math.Sqrt(float64(tradingDays))
}

// Percentile returns the p-th percentile (0-100) of the data using linear
// interpolation between closest ranks, matching numpy's default behaviour.
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// CovarianceMatrix builds the sample covariance matrix for the ordered symbols.
// Each returns series must have the same length. scale multiplies every entry
// (used for annualization by the trading-day convention).
func CovarianceMatrix(returns map[string][]float64, symbols []string, scale float64) [][]float64 {
	n := len(symbols)
	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			c := Covariance(returns[symbols[i]], returns[symbols[j]]) * scale
			cov[i][j] = c
			if i != j {
				cov[j][i] = c
			}
		}
	}

	return cov
}

// CorrelationMatrix builds the Pearson correlation matrix for the ordered symbols.
func CorrelationMatrix(returns map[string][]float64, symbols []string) [][]float64 {
	n := len(symbols)
	corr := make([][]float64, n)
	for i := range corr {
		corr[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		corr[i][i] = 1.0
		for j := i + 1; j < n; j++ {
			c := Correlation(returns[symbols[i]], returns[symbols[j]])
			corr[i][j] = c
			corr[j][i] = c
		}
	}

	return corr
}

// CorrelationToDistance converts a correlation matrix to the distance matrix
// used for hierarchical clustering: d_ij = sqrt(0.5 * (1 - rho_ij))
func CorrelationToDistance(corrMatrix [][]float64) [][]float64 {
	n := len(corrMatrix)
	distMatrix := make([][]float64, n)

	for i := 0; i < n; i++ {
		distMatrix[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			corr := math.Max(-1.0, math.Min(1.0, corrMatrix[i][j]))
			distMatrix[i][j] = math.Sqrt(0.5 * (1.0 - corr))
		}
	}

	return distMatrix
}
