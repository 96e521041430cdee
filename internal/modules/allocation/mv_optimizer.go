package allocation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/risklens/internal/marketdata"
	"github.com/aristath/risklens/pkg/formulas"
)

// MVTarget selects the mean-variance objective.
type MVTarget string

const (
	// TargetMinRisk minimizes portfolio variance.
	TargetMinRisk MVTarget = "min_risk"
	// TargetSharpe maximizes (return - rf) / volatility.
	TargetSharpe MVTarget = "sharpe"
	// TargetMaxRet maximizes expected return.
	TargetMaxRet MVTarget = "max_ret"
)

const (
	penaltyWeight = 1000.0
	volFloor      = 1e-5
	solverBudget  = 2000 // iteration cap per solve attempt
)

// MVOptimizer performs constrained mean-variance portfolio optimization.
//
// Constraints are handled with a penalty method: weights are projected to
// their box bounds inside the objective and a quadratic penalty enforces
// sum(w) = 1. The solve starts from equal weights, tries Nelder-Mead first
// and retries with gradient-based BFGS on failure.
type MVOptimizer struct {
	target MVTarget
}

// NewMVOptimizer creates a mean-variance optimizer for the target.
func NewMVOptimizer(target MVTarget) *MVOptimizer {
	return &MVOptimizer{target: target}
}

// Name identifies the optimizer in cascade diagnostics.
func (mvo *MVOptimizer) Name() string {
	return fmt.Sprintf("mean_variance(%s)", mvo.target)
}

// TargetForObjective maps the strategy objective to its mean-variance target.
func TargetForObjective(objective Objective) MVTarget {
	switch objective {
	case ObjectiveSafetyFirst:
		return TargetMinRisk
	case ObjectiveAggressiveGrowth:
		return TargetMaxRet
	default:
		return TargetSharpe
	}
}

// Optimize satisfies the cascade optimizer contract. The cluster order
// defaults to universe order since no clustering is performed here.
func (mvo *MVOptimizer) Optimize(md *marketdata.MarketData, _ Objective, bounds Bounds) (map[string]float64, []string, error) {
	symbols := md.Symbols
	mu := make([]float64, len(symbols))
	for i, symbol := range symbols {
		mu[i] = formulas.Mean(md.Returns[symbol])
	}
	cov := formulas.CovarianceMatrix(md.Returns, symbols, 1)
	rf := AnnualRiskFreeRate / float64(md.TradingDays)

	raw, err := mvo.Solve(mu, cov, bounds, rf)
	if err != nil {
		return nil, nil, err
	}

	weights := make(map[string]float64, len(symbols))
	for i, symbol := range symbols {
		weights[symbol] = raw[i]
	}

	return weights, append([]string{}, symbols...), nil
}

// Solve runs the constrained solve over raw vectors. Exposed separately so
// the NCO optimizer can reuse it on cluster subsets.
func (mvo *MVOptimizer) Solve(mu []float64, cov [][]float64, bounds Bounds, rf float64) ([]float64, error) {
	n := len(mu)
	if n == 0 {
		return nil, fmt.Errorf("no assets provided")
	}
	if n == 1 {
		return []float64{1.0}, nil
	}
	if len(cov) != n {
		return nil, fmt.Errorf("covariance size %d does not match assets %d", len(cov), n)
	}

	lo := make([]float64, n)
	hi := make([]float64, n)
	for i := range lo {
		lo[i] = bounds.Min
		hi[i] = bounds.Max
	}

	objective := func(x []float64) float64 {
		w := project(x, lo, hi)
		ret, variance := portfolioMoments(w, mu, cov)

		var obj float64
		switch mvo.target {
		case TargetMinRisk:
			obj = variance
		case TargetMaxRet:
			obj = -ret
		default: // TargetSharpe
			vol := math.Max(math.Sqrt(math.Max(variance, 0)), volFloor)
			obj = -(ret - rf) / vol
		}

		sum := 0.0
		for _, wi := range w {
			sum += wi
		}
		obj += penaltyWeight * (sum - 1.0) * (sum - 1.0)
		return obj
	}

	// The gradient is evaluated at the projected point; the projection
	// itself is treated as constant, which is the penalty-method convention
	// used throughout the cascade.
	gradient := func(grad, x []float64) {
		w := project(x, lo, hi)
		ret, variance := portfolioMoments(w, mu, cov)

		switch mvo.target {
		case TargetMinRisk:
			for i := range grad {
				grad[i] = 0
				for j := range w {
					grad[i] += 2 * cov[i][j] * w[j]
				}
			}
		case TargetMaxRet:
			for i := range grad {
				grad[i] = -mu[i]
			}
		default: // TargetSharpe
			vol := math.Max(math.Sqrt(math.Max(variance, 0)), volFloor)
			for i := range grad {
				var sigmaW float64
				for j := range w {
					sigmaW += cov[i][j] * w[j]
				}
				grad[i] = -mu[i]/vol + (ret-rf)*sigmaW/(vol*vol*vol)
			}
		}

		sum := 0.0
		for _, wi := range w {
			sum += wi
		}
		for i := range grad {
			grad[i] += 2 * penaltyWeight * (sum - 1.0)
		}
	}

	problem := optimize.Problem{Func: objective, Grad: gradient}

	initial := make([]float64, n)
	for i := range initial {
		initial[i] = 1.0 / float64(n)
	}

	settings := &optimize.Settings{MajorIterations: solverBudget}

	result, err := optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
	if err != nil || !converged(result) {
		result, err = optimize.Minimize(problem, initial, settings, &optimize.BFGS{})
		if err != nil {
			return nil, fmt.Errorf("optimization failed: %w", err)
		}
		if !converged(result) {
			return nil, fmt.Errorf("optimization did not converge: status=%v", result.Status)
		}
	}

	w := project(result.X, lo, hi)
	sum := 0.0
	for _, wi := range w {
		sum += wi
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("optimization produced an invalid weight sum: %v", sum)
	}
	for i := range w {
		w[i] = math.Max(0, w[i]/sum)
	}

	return w, nil
}

func converged(result *optimize.Result) bool {
	if result == nil {
		return false
	}
	switch result.Status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence,
		optimize.StepConvergence, optimize.FunctionThreshold:
		return true
	default:
		return false
	}
}

// project clamps each coordinate to its box bounds.
func project(x, lo, hi []float64) []float64 {
	proj := make([]float64, len(x))
	for i := range x {
		proj[i] = math.Max(lo[i], math.Min(hi[i], x[i]))
	}
	return proj
}

// portfolioMoments computes mu'w and w'Sigma w.
func portfolioMoments(w, mu []float64, cov [][]float64) (ret, variance float64) {
	for i := range w {
		ret += mu[i] * w[i]
		for j := range w {
			variance += w[i] * w[j] * cov[i][j]
		}
	}
	return ret, variance
}
