package regime

import (
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/risklens/internal/marketdata"
)

// dailyMarketData builds sequential daily price history starting at a
// Monday so weekly resampling has full weeks to work with.
func dailyMarketData(t *testing.T, symbols []string, days int, build func(symbol string, day int) float64) *marketdata.MarketData {
	t.Helper()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := make([]string, days)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i).Format("2006-01-02")
	}

	prices := make(map[string][]float64, len(symbols))
	returns := make(map[string][]float64, len(symbols))
	for _, symbol := range symbols {
		p := make([]float64, days)
		r := make([]float64, days-1)
		for i := range p {
			p[i] = build(symbol, i)
		}
		for i := 1; i < days; i++ {
			r[i-1] = (p[i] - p[i-1]) / p[i-1]
		}
		prices[symbol] = p
		returns[symbol] = r
	}

	return &marketdata.MarketData{
		Dates:       dates,
		Symbols:     symbols,
		Prices:      prices,
		Returns:     returns,
		TradingDays: 252,
	}
}

func TestClassifyProducesNonNegativeScore(t *testing.T) {
	rng := rand.New(rand.NewSource(19))
	md := dailyMarketData(t, []string{"AAA", "BBB"}, 180, func(_ string, day int) float64 {
		return 100 * (1 + 0.01*float64(day)/180) * (1 + rng.Float64()*0.02)
	})

	classifier := NewClassifier(12, 25, zerolog.Nop())
	status := classifier.Classify(md)

	assert.GreaterOrEqual(t, status.Score, 0.0)
	assert.Contains(t,
		[]string{ClassificationCalm, ClassificationChoppy, ClassificationTurbulent},
		status.Classification)
}

func TestClassifyThresholdMapping(t *testing.T) {
	cases := []struct {
		score float64
		want  string
		color string
	}{
		{5, ClassificationCalm, "Green"},
		{15, ClassificationChoppy, "Yellow"},
		{40, ClassificationTurbulent, "Red"},
	}

	for _, tc := range cases {
		classifier := NewClassifier(12, 25, zerolog.Nop())
		status := classifier.mapScore(tc.score)
		assert.Equal(t, tc.want, status.Classification, "score %v", tc.score)
		assert.Equal(t, tc.color, status.Color, "score %v", tc.score)
	}
}

func TestClassifyDegenerateCovariance(t *testing.T) {
	// One asset is perfectly flat so the covariance matrix is singular;
	// the pseudo-inverse path must still yield a finite score.
	rng := rand.New(rand.NewSource(23))
	md := dailyMarketData(t, []string{"AAA", "FLAT"}, 180, func(symbol string, day int) float64 {
		if symbol == "FLAT" {
			return 100
		}
		return 100 + rng.Float64()*5
	})

	classifier := NewClassifier(12, 25, zerolog.Nop())
	status := classifier.Classify(md)

	assert.GreaterOrEqual(t, status.Score, 0.0)
	assert.NotEmpty(t, status.Classification)
}

func TestClassifyDegradesToNeutralDefault(t *testing.T) {
	classifier := NewClassifier(12, 25, zerolog.Nop())

	status := classifier.Classify(&marketdata.MarketData{
		Symbols: nil,
		Returns: map[string][]float64{},
	})

	assert.Equal(t, 0.0, status.Score)
	assert.Equal(t, ClassificationCalm, status.Classification)
	assert.Equal(t, "Unknown", status.Color)
}

func TestClassifyShortHistoryFallsBackToDaily(t *testing.T) {
	// Under 3 ISO weeks of data the classifier scores daily returns.
	rng := rand.New(rand.NewSource(29))
	md := dailyMarketData(t, []string{"AAA", "BBB"}, 10, func(_ string, _ int) float64 {
		return 100 + rng.Float64()*3
	})

	classifier := NewClassifier(12, 25, zerolog.Nop())
	status := classifier.Classify(md)

	assert.GreaterOrEqual(t, status.Score, 0.0)
}

func TestPseudoInverseSingularMatrix(t *testing.T) {
	// Rank-1 matrix: plain inversion would fail.
	singular := [][]float64{
		{1, 1},
		{1, 1},
	}

	pinv, err := pseudoInverse(singular)
	require.NoError(t, err)

	// Moore-Penrose inverse of the all-ones 2x2 matrix has entries 0.25.
	assert.InDelta(t, 0.25, pinv.At(0, 0), 1e-9)
	assert.InDelta(t, 0.25, pinv.At(1, 1), 1e-9)
}
