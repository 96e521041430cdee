package allocation

import (
	"fmt"

	"github.com/aristath/risklens/internal/marketdata"
	"github.com/aristath/risklens/pkg/formulas"
)

// NCOOptimizer implements nested clustered optimization: assets are split
// into top-level clusters by cutting the dendrogram at its root, each
// cluster is solved independently with mean-variance, and cluster budgets
// are set proportional to inverse cluster variance.
type NCOOptimizer struct {
	target  MVTarget
	linkage Linkage
}

// NewNCOOptimizer creates an NCO optimizer with the given intra-cluster
// target and linkage method.
func NewNCOOptimizer(target MVTarget, linkage Linkage) *NCOOptimizer {
	return &NCOOptimizer{target: target, linkage: linkage}
}

// Name identifies the optimizer in cascade diagnostics.
func (nco *NCOOptimizer) Name() string {
	return fmt.Sprintf("nco(%s,%s)", nco.target, nco.linkage)
}

// Optimize computes nested clustered weights for the universe.
func (nco *NCOOptimizer) Optimize(md *marketdata.MarketData, _ Objective, _ Bounds) (map[string]float64, []string, error) {
	symbols := md.Symbols
	corr := formulas.CorrelationMatrix(md.Returns, symbols)
	dist := formulas.CorrelationToDistance(corr)

	root, err := buildDendrogram(dist, nco.linkage)
	if err != nil {
		return nil, nil, err
	}
	order := leafOrderSymbols(root, symbols)

	clusters := topLevelClusters(root)
	cov := formulas.CovarianceMatrix(md.Returns, symbols, 1)
	index := make(map[string]int, len(symbols))
	for i, symbol := range symbols {
		index[symbol] = i
	}
	rf := AnnualRiskFreeRate / float64(md.TradingDays)
	mvo := NewMVOptimizer(nco.target)

	// Solve each cluster in isolation with wide-open bounds; the outer
	// constraint pipeline handles floors and caps afterwards.
	type clusterResult struct {
		symbols []string
		intra   []float64
		risk    float64
	}
	results := make([]clusterResult, 0, len(clusters))
	totalInverse := 0.0
	for _, leaves := range clusters {
		members := make([]string, len(leaves))
		for i, leaf := range leaves {
			members[i] = symbols[leaf]
		}

		var intra []float64
		if len(members) == 1 {
			intra = []float64{1.0}
		} else {
			mu := make([]float64, len(members))
			sub := subCovariance(cov, index, members)
			for i, symbol := range members {
				mu[i] = formulas.Mean(md.Returns[symbol])
			}
			intra, err = mvo.Solve(mu, sub, Bounds{Min: 0, Max: 1}, rf)
			if err != nil {
				return nil, nil, fmt.Errorf("cluster solve failed: %w", err)
			}
		}

		risk := clusterVariance(cov, index, members, intra)
		if risk < riskFloor {
			risk = riskFloor
		}
		results = append(results, clusterResult{symbols: members, intra: intra, risk: risk})
		totalInverse += 1.0 / risk
	}

	weights := make(map[string]float64, len(symbols))
	for _, cluster := range results {
		budget := (1.0 / cluster.risk) / totalInverse
		for i, symbol := range cluster.symbols {
			weights[symbol] = budget * cluster.intra[i]
		}
	}

	return weights, order, nil
}

// topLevelClusters cuts the dendrogram at its root into the two child leaf
// sets. A root that is itself a leaf yields a single one-member cluster.
func topLevelClusters(root *dendroNode) [][]int {
	if root.isLeaf() {
		return [][]int{root.leaves}
	}
	return [][]int{root.left.leaves, root.right.leaves}
}

// subCovariance extracts the covariance block for the member symbols.
func subCovariance(cov [][]float64, index map[string]int, members []string) [][]float64 {
	sub := make([][]float64, len(members))
	for i, a := range members {
		sub[i] = make([]float64, len(members))
		for j, b := range members {
			sub[i][j] = cov[index[a]][index[b]]
		}
	}
	return sub
}

// clusterVariance computes w'Sigma w for a cluster under its intra weights.
func clusterVariance(cov [][]float64, index map[string]int, members []string, intra []float64) float64 {
	variance := 0.0
	for i, a := range members {
		for j, b := range members {
			variance += intra[i] * intra[j] * cov[index[a]][index[b]]
		}
	}
	return variance
}
