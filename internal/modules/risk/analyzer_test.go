package risk

import (
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/risklens/internal/marketdata"
)

func testMarketData(t *testing.T, observations int) *marketdata.MarketData {
	t.Helper()

	rng := rand.New(rand.NewSource(7))
	symbols := []string{"AAA", "BBB", "CCC"}
	returns := make(map[string][]float64, len(symbols))
	for _, symbol := range symbols {
		series := make([]float64, observations)
		for i := range series {
			series[i] = 0.0003 + rng.NormFloat64()*0.012
		}
		returns[symbol] = series
	}

	return &marketdata.MarketData{
		Symbols:     symbols,
		Returns:     returns,
		TradingDays: 252,
	}
}

func equalWeights(symbols []string) map[string]float64 {
	w := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		w[symbol] = 1.0 / float64(len(symbols))
	}
	return w
}

func TestAnalyzeProducesFiniteMetrics(t *testing.T) {
	md := testMarketData(t, 300)
	analyzer := NewAnalyzer(zerolog.Nop())

	report := analyzer.Analyze(md, equalWeights(md.Symbols))

	assert.False(t, math.IsNaN(report.Volatility))
	assert.GreaterOrEqual(t, report.Volatility, 0.0)
	assert.GreaterOrEqual(t, report.VaR95, 0.0)
	assert.GreaterOrEqual(t, report.ES95, report.VaR95-1e-9)
}

func TestAnalyzeDiversificationRatioAboveOne(t *testing.T) {
	// Independent assets with similar volatility must diversify.
	md := testMarketData(t, 300)
	analyzer := NewAnalyzer(zerolog.Nop())

	report := analyzer.Analyze(md, equalWeights(md.Symbols))

	assert.GreaterOrEqual(t, report.DiversificationRatio, 1.0)
}

func TestAnalyzeHighCorrelationDiversificationNearOne(t *testing.T) {
	// With pairwise correlation near 0.9 diversification buys little, so
	// the ratio sits just above 1.
	rng := rand.New(rand.NewSource(99))
	symbols := []string{"AAA", "BBB", "CCC"}
	factor := make([]float64, 500)
	for i := range factor {
		factor[i] = rng.NormFloat64()
	}
	returns := make(map[string][]float64, len(symbols))
	for _, symbol := range symbols {
		series := make([]float64, len(factor))
		for i := range series {
			series[i] = 0.01 * (math.Sqrt(0.9)*factor[i] + math.Sqrt(0.1)*rng.NormFloat64())
		}
		returns[symbol] = series
	}
	md := &marketdata.MarketData{Symbols: symbols, Returns: returns, TradingDays: 252}
	analyzer := NewAnalyzer(zerolog.Nop())

	report := analyzer.Analyze(md, equalWeights(symbols))

	assert.GreaterOrEqual(t, report.DiversificationRatio, 1.0)
	assert.LessOrEqual(t, report.DiversificationRatio, 1.3)
}

func TestAnalyzeRiskContributionSumsToOne(t *testing.T) {
	md := testMarketData(t, 300)
	analyzer := NewAnalyzer(zerolog.Nop())

	report := analyzer.Analyze(md, map[string]float64{"AAA": 0.5, "BBB": 0.3, "CCC": 0.2})

	total := 0.0
	for _, rc := range report.RiskContribution {
		total += rc
	}
	assert.InDelta(t, 1.0, total, 1e-3)
	assert.Len(t, report.RiskContribution, 3)
}

func TestAnalyzeNearConstantSeriesFallsBack(t *testing.T) {
	// A near-constant series starves the volatility model; the analyzer
	// must degrade to historical metrics without raising.
	symbols := []string{"AAA", "BBB"}
	flat := make([]float64, 120)
	for i := range flat {
		flat[i] = 1e-12
	}
	md := &marketdata.MarketData{
		Symbols:     symbols,
		Returns:     map[string][]float64{"AAA": flat, "BBB": flat},
		TradingDays: 252,
	}
	analyzer := NewAnalyzer(zerolog.Nop())

	report := analyzer.Analyze(md, equalWeights(symbols))

	assert.False(t, math.IsNaN(report.Volatility))
	assert.GreaterOrEqual(t, report.Volatility, 0.0)
	assert.GreaterOrEqual(t, report.VaR95, 0.0)
	assert.GreaterOrEqual(t, report.ES95, 0.0)
	assert.InDelta(t, 1.0, report.DiversificationRatio, 1e-9)
}

func TestHistoricalMetrics(t *testing.T) {
	series := []float64{-3, -2, -1, 0, 1, 2, 3, 4, 5, 6,
		-3, -2, -1, 0, 1, 2, 3, 4, 5, 6}

	volatility, var95, es95 := historicalMetrics(series)

	assert.Greater(t, volatility, 0.0)
	assert.Greater(t, var95, 0.0)
	assert.GreaterOrEqual(t, es95, var95)
}

func TestHistoricalMetricsEmptySeries(t *testing.T) {
	volatility, var95, es95 := historicalMetrics(nil)
	assert.Zero(t, volatility)
	assert.Zero(t, var95)
	assert.Zero(t, es95)
}

func TestFitGJRGARCHOnSimulatedSeries(t *testing.T) {
	// Simulate a GJR process so the likelihood surface has a real optimum.
	rng := rand.New(rand.NewSource(11))
	n := 1000
	series := make([]float64, n)
	sigma2 := 1.0
	omega, alpha, gamma, beta := 0.05, 0.05, 0.10, 0.85
	for i := 0; i < n; i++ {
		e := math.Sqrt(sigma2) * rng.NormFloat64()
		series[i] = e
		next := omega + alpha*e*e + beta*sigma2
		if e < 0 {
			next += gamma * e * e
		}
		sigma2 = next
	}

	fit, err := fitGJRGARCH(series)
	require.NoError(t, err)

	assert.Greater(t, fit.forecastSigma, 0.0)
	assert.Greater(t, fit.nu, 2.0)

	var95, es95 := fit.tailMetrics()
	assert.Greater(t, var95, 0.0)
	assert.Greater(t, es95, var95)
}

func TestFitGJRGARCHRejectsShortSeries(t *testing.T) {
	_, err := fitGJRGARCH([]float64{0.1, -0.2, 0.05})
	assert.Error(t, err)
}

func TestFitGJRGARCHRejectsZeroVariance(t *testing.T) {
	flat := make([]float64, 100)
	_, err := fitGJRGARCH(flat)
	assert.Error(t, err)
}
