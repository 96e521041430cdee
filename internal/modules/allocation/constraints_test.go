package allocation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnforceMinimumRaisesSmallPositions(t *testing.T) {
	weights := map[string]float64{
		"A": 0.01,
		"B": 0.49,
		"C": 0.50,
	}

	out := EnforceMinimum(weights, MinWeightFloor)

	assert.GreaterOrEqual(t, out["A"], MinWeightFloor-1e-12)
	assert.InDelta(t, 1.0, sumWeights(out), 1e-9)
	// Donors must not be pushed under the floor.
	assert.GreaterOrEqual(t, out["B"], MinWeightFloor)
	assert.GreaterOrEqual(t, out["C"], MinWeightFloor)
}

func TestEnforceMinimumNoChangeWhenSatisfied(t *testing.T) {
	weights := map[string]float64{"A": 0.4, "B": 0.6}

	out := EnforceMinimum(weights, MinWeightFloor)

	assert.InDelta(t, 0.4, out["A"], 1e-12)
	assert.InDelta(t, 0.6, out["B"], 1e-12)
}

func TestEnforceMinimumFundingProportionalToSurplus(t *testing.T) {
	weights := map[string]float64{
		"A": 0.00,
		"B": 0.25, // surplus 0.20
		"C": 0.75, // surplus 0.70
	}

	out := EnforceMinimum(weights, MinWeightFloor)

	// C holds 7/9 of the surplus so it funds 7/9 of the 0.05 deficit.
	assert.InDelta(t, MinWeightFloor, out["A"], 1e-12)
	assert.InDelta(t, 0.25-0.05*(0.20/0.90), out["B"], 1e-9)
	assert.InDelta(t, 0.75-0.05*(0.70/0.90), out["C"], 1e-9)
}

func TestEnforceMaximumCapsAndRedistributes(t *testing.T) {
	weights := map[string]float64{
		"A": 0.60,
		"B": 0.30,
		"C": 0.10,
	}

	out := EnforceMaximum(weights, MaxWeightCap)

	for symbol, w := range out {
		assert.LessOrEqualf(t, w, MaxWeightCap+1e-9, "weight for %s above cap", symbol)
	}
	assert.InDelta(t, 1.0, sumWeights(out), 1e-9)
}

func TestEnforceMaximumInfeasibleCapFallsBackToEqualWeight(t *testing.T) {
	weights := map[string]float64{"A": 0.9, "B": 0.1}

	out := EnforceMaximum(weights, MaxWeightCap)

	assert.InDelta(t, 0.5, out["A"], 1e-12)
	assert.InDelta(t, 0.5, out["B"], 1e-12)
}

func TestNormalizeSumsToExactlyOne(t *testing.T) {
	weights := map[string]float64{
		"A": 1.0,
		"B": 1.0,
		"C": 1.0,
	}

	out := Normalize(weights)

	// 1/3 rounds to 0.3333; the residual 0.0001 lands on one position so
	// the rounded weights still sum to exactly 1.
	assert.InDelta(t, 1.0, sumWeights(out), 1e-12)
	for _, w := range out {
		scaled := w * math.Pow(10, WeightPrecision)
		assert.InDelta(t, math.Round(scaled), scaled, 1e-9)
	}
}

func TestNormalizeEmptyOnNonPositiveTotal(t *testing.T) {
	out := Normalize(map[string]float64{"A": 0, "B": 0})
	assert.Empty(t, out)
}

func sumWeights(weights map[string]float64) float64 {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	return total
}
