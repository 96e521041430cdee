package allocation

import (
	"fmt"
	"math"

	"github.com/aristath/risklens/internal/marketdata"
	"github.com/aristath/risklens/pkg/formulas"
)

// RiskMeasure selects the risk statistic used inside the clustering models.
type RiskMeasure string

const (
	// RiskVariance uses return variance.
	RiskVariance RiskMeasure = "variance"
	// RiskCVaR uses 5% Conditional Value-at-Risk magnitude (tail focus).
	RiskCVaR RiskMeasure = "cvar"
)

const cvarConfidence = 0.95

// HRPOptimizer performs Hierarchical Risk Parity portfolio optimization.
//
// Algorithm steps:
//  1. Pairwise distance d_ij = sqrt(0.5 * (1 - rho_ij)) from Pearson correlation
//  2. Agglomerative clustering builds a dendrogram; its leaf order places
//     correlated assets adjacently and becomes the cluster order
//  3. Recursive bisection over the dendrogram: each split allocates capital
//     between the two branches inversely proportional to their risk
//
// HRP uses no expected-return estimate; weights sum to 1 by construction.
type HRPOptimizer struct {
	riskMeasure RiskMeasure
	linkage     Linkage
}

// NewHRPOptimizer creates an HRP optimizer with the given risk measure and linkage.
func NewHRPOptimizer(riskMeasure RiskMeasure, linkage Linkage) *HRPOptimizer {
	return &HRPOptimizer{riskMeasure: riskMeasure, linkage: linkage}
}

// Name identifies the optimizer in cascade diagnostics.
func (hrp *HRPOptimizer) Name() string {
	return fmt.Sprintf("hrp(%s,%s)", hrp.riskMeasure, hrp.linkage)
}

// Optimize solves the HRP allocation. Returns weights and the dendrogram
// leaf order.
func (hrp *HRPOptimizer) Optimize(md *marketdata.MarketData, _ Objective, _ Bounds) (map[string]float64, []string, error) {
	symbols := md.Symbols
	corr := formulas.CorrelationMatrix(md.Returns, symbols)
	dist := formulas.CorrelationToDistance(corr)

	root, err := buildDendrogram(dist, hrp.linkage)
	if err != nil {
		return nil, nil, fmt.Errorf("clustering failed: %w", err)
	}

	cov := formulas.CovarianceMatrix(md.Returns, symbols, 1)
	assetRisk, err := perAssetRisk(md.Returns, symbols, hrp.riskMeasure)
	if err != nil {
		return nil, nil, err
	}

	weights := make([]float64, len(symbols))
	bisect(root, 1.0, weights, cov, md.Returns, symbols, assetRisk, hrp.riskMeasure)

	result := make(map[string]float64, len(symbols))
	for i, symbol := range symbols {
		w := weights[i]
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return nil, nil, fmt.Errorf("HRP produced an invalid weight for %s: %v", symbol, w)
		}
		result[symbol] = w
	}

	return result, leafOrderSymbols(root, symbols), nil
}

// bisect walks the dendrogram, splitting capital between branches inversely
// proportional to branch risk, and recursing down to single assets.
func bisect(
	node *dendroNode,
	capital float64,
	weights []float64,
	cov [][]float64,
	returns map[string][]float64,
	symbols []string,
	assetRisk []float64,
	measure RiskMeasure,
) {
	if node.isLeaf() {
		weights[node.leaves[0]] += capital
		return
	}

	riskLeft := branchRisk(node.left.leaves, cov, returns, symbols, assetRisk, measure)
	riskRight := branchRisk(node.right.leaves, cov, returns, symbols, assetRisk, measure)

	alpha := 0.5
	if total := riskLeft + riskRight; total > 0 {
		alpha = 1.0 - riskLeft/total
	}

	bisect(node.left, capital*alpha, weights, cov, returns, symbols, assetRisk, measure)
	bisect(node.right, capital*(1-alpha), weights, cov, returns, symbols, assetRisk, measure)
}

// branchRisk computes the branch's risk under an inverse-risk-weighted
// intra-branch sub-allocation.
func branchRisk(
	leaves []int,
	cov [][]float64,
	returns map[string][]float64,
	symbols []string,
	assetRisk []float64,
	measure RiskMeasure,
) float64 {
	intra := inverseRiskWeights(leaves, assetRisk)

	switch measure {
	case RiskCVaR:
		// CVaR of the branch portfolio series under the intra weights.
		branchWeights := make(map[string]float64, len(leaves))
		for k, idx := range leaves {
			branchWeights[symbols[idx]] = intra[k]
		}
		cvar := formulas.CalculatePortfolioCVaR(branchWeights, returns, cvarConfidence)
		return math.Max(math.Abs(cvar), riskFloor)
	default:
		// Branch variance: w' Sigma w over the branch's sub-covariance.
		variance := 0.0
		for a, i := range leaves {
			for b, j := range leaves {
				variance += intra[a] * intra[b] * cov[i][j]
			}
		}
		return math.Max(variance, riskFloor)
	}
}

// inverseRiskWeights allocates within a branch inversely proportional to
// each asset's own risk.
func inverseRiskWeights(leaves []int, assetRisk []float64) []float64 {
	weights := make([]float64, len(leaves))
	total := 0.0
	for k, idx := range leaves {
		weights[k] = 1.0 / assetRisk[idx]
		total += weights[k]
	}
	for k := range weights {
		weights[k] /= total
	}
	return weights
}

// perAssetRisk computes each asset's standalone risk under the measure.
func perAssetRisk(returns map[string][]float64, symbols []string, measure RiskMeasure) ([]float64, error) {
	risks := make([]float64, len(symbols))
	for i, symbol := range symbols {
		series, ok := returns[symbol]
		if !ok {
			return nil, fmt.Errorf("missing returns for %s", symbol)
		}
		switch measure {
		case RiskCVaR:
			risks[i] = math.Max(math.Abs(formulas.CalculateCVaR(series, cvarConfidence)), riskFloor)
		default:
			risks[i] = math.Max(formulas.Variance(series), riskFloor)
		}
	}
	return risks, nil
}
