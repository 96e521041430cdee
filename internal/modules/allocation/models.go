// Package allocation implements the cascading portfolio allocation strategy:
// hierarchical-clustering-based risk allocation with a constrained
// mean-variance fallback and post-hoc weight-constraint enforcement.
package allocation

import (
	"fmt"
	"strings"
)

// Objective selects the allocation strategy.
type Objective string

const (
	ObjectiveSafetyFirst      Objective = "safety_first"
	ObjectiveSmartBalance     Objective = "smart_balance"
	ObjectiveAggressiveGrowth Objective = "aggressive_growth"
)

// ParseObjective validates and normalizes a strategy string.
func ParseObjective(s string) (Objective, error) {
	switch Objective(strings.ToLower(strings.TrimSpace(s))) {
	case ObjectiveSafetyFirst:
		return ObjectiveSafetyFirst, nil
	case ObjectiveSmartBalance, "":
		// smart_balance is the default objective
		return ObjectiveSmartBalance, nil
	case ObjectiveAggressiveGrowth:
		return ObjectiveAggressiveGrowth, nil
	default:
		return "", fmt.Errorf("unknown strategy %q (want safety_first, smart_balance or aggressive_growth)", s)
	}
}

const (
	// AnnualRiskFreeRate is the risk-free rate used by Sharpe-maximizing targets.
	AnnualRiskFreeRate = 0.04

	// MinWeightFloor applies when the caller forces a minimum allocation.
	MinWeightFloor = 0.05

	// MaxWeightCap applies to the aggressive growth objective.
	MaxWeightCap = 0.35

	// WeightPrecision is the display rounding for final weights.
	WeightPrecision = 4

	// maxCapPasses bounds the maximum-weight redistribution loop; capping can
	// push a previously-safe asset over the cap, so a few passes are needed.
	maxCapPasses = 3

	// riskFloor avoids division by zero on degenerate per-asset risk.
	riskFloor = 1e-10
)

// Bounds are per-asset box constraints on weights.
type Bounds struct {
	Min float64
	Max float64
}

// BoundsFor derives the box constraints from the objective and the
// force-minimum flag.
func BoundsFor(objective Objective, forceMinWeight bool) Bounds {
	b := Bounds{Min: 0, Max: 1.0}
	if forceMinWeight {
		b.Min = MinWeightFloor
	}
	if objective == ObjectiveAggressiveGrowth {
		b.Max = MaxWeightCap
	}
	return b
}

// OptimizationFailureError reports that every strategy in the cascade failed.
// There is intentionally no equal-weight fallback; a wrong-but-plausible
// answer is worse than an explicit failure.
type OptimizationFailureError struct {
	Attempts []string
}

func (e *OptimizationFailureError) Error() string {
	return "optimization failed to converge: " + strings.Join(e.Attempts, "; ")
}
