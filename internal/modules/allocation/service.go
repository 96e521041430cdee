package allocation

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/risklens/internal/marketdata"
)

// Optimizer produces raw portfolio weights and a display order for the
// universe. Implementations must return weights that are finite and
// non-negative; they need not sum to one.
type Optimizer interface {
	Name() string
	Optimize(md *marketdata.MarketData, objective Objective, bounds Bounds) (map[string]float64, []string, error)
}

// Result is a finished allocation.
type Result struct {
	Weights      map[string]float64
	ClusterOrder []string
	Method       string
}

// Allocator runs an ordered cascade of optimizers per strategy objective
// and applies the constraint pipeline to the first success. When every
// attempt fails the caller receives an OptimizationFailureError; there is
// no equal-weight fallback.
type Allocator struct {
	log zerolog.Logger
}

// NewAllocator creates a portfolio allocator.
func NewAllocator(log zerolog.Logger) *Allocator {
	return &Allocator{log: log.With().Str("component", "allocation").Logger()}
}

// cascadeFor returns the optimizer sequence for the objective.
func cascadeFor(objective Objective) []Optimizer {
	switch objective {
	case ObjectiveSafetyFirst:
		return []Optimizer{
			NewHRPOptimizer(RiskCVaR, LinkageWard),
			NewMVOptimizer(TargetMinRisk),
		}
	case ObjectiveAggressiveGrowth:
		return []Optimizer{
			NewNCOOptimizer(TargetMaxRet, LinkageSingle),
			NewMVOptimizer(TargetMaxRet),
		}
	default: // ObjectiveSmartBalance
		return []Optimizer{
			NewNCOOptimizer(TargetSharpe, LinkageWard),
			NewMVOptimizer(TargetSharpe),
		}
	}
}

// Allocate computes portfolio weights for the universe under the objective.
func (a *Allocator) Allocate(md *marketdata.MarketData, objective Objective, forceMinWeight bool) (*Result, error) {
	bounds := BoundsFor(objective, forceMinWeight)
	attempts := make([]string, 0, 2)

	for _, opt := range cascadeFor(objective) {
		weights, order, err := opt.Optimize(md, objective, bounds)
		if err == nil {
			err = validateRawWeights(weights)
		}
		if err != nil {
			a.log.Warn().
				Str("optimizer", opt.Name()).
				Str("objective", string(objective)).
				Err(err).
				Msg("optimizer attempt failed, moving to next in cascade")
			attempts = append(attempts, opt.Name())
			continue
		}

		final := a.applyConstraints(weights, objective, forceMinWeight)
		a.log.Info().
			Str("optimizer", opt.Name()).
			Str("objective", string(objective)).
			Int("assets", len(final)).
			Msg("allocation complete")

		return &Result{Weights: final, ClusterOrder: order, Method: opt.Name()}, nil
	}

	return nil, &OptimizationFailureError{Attempts: attempts}
}

// applyConstraints runs the post-optimization pipeline: optional minimum
// floor, maximum cap for aggressive growth, then normalization.
func (a *Allocator) applyConstraints(weights map[string]float64, objective Objective, forceMinWeight bool) map[string]float64 {
	out := Normalize(weights)
	if forceMinWeight {
		out = EnforceMinimum(out, MinWeightFloor)
	}
	if objective == ObjectiveAggressiveGrowth {
		out = EnforceMaximum(out, MaxWeightCap)
	}
	return Normalize(out)
}

func validateRawWeights(weights map[string]float64) error {
	sum := 0.0
	for symbol, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return &invalidWeightError{symbol: symbol, weight: w}
		}
		sum += w
	}
	if sum <= 0 {
		return &invalidWeightError{symbol: "", weight: sum}
	}
	return nil
}

type invalidWeightError struct {
	symbol string
	weight float64
}

func (e *invalidWeightError) Error() string {
	if e.symbol == "" {
		return "optimizer produced a non-positive weight sum"
	}
	return "optimizer produced an invalid weight for " + e.symbol
}
