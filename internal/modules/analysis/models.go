package analysis

import (
	"github.com/aristath/risklens/internal/modules/regime"
	"github.com/aristath/risklens/internal/modules/risk"
)

// Request is the analysis request body.
type Request struct {
	Tickers        []string `json:"tickers"`
	Strategy       string   `json:"strategy"`
	ForceMinWeight bool     `json:"force_min_weight"`
}

// CorrelationMatrix pairs the symbol labels with the dense value grid so
// clients can render it without re-deriving the ordering.
type CorrelationMatrix struct {
	Labels []string    `json:"labels"`
	Values [][]float64 `json:"values"`
}

// AssetStats carries per-asset diagnostics alongside the allocation.
type AssetStats struct {
	AnnualizedVol float64 `json:"annualized_vol"`
	RSI14         float64 `json:"rsi_14"`
	Trend         string  `json:"trend"`
}

// Response is the full analysis result.
type Response struct {
	RequestID         string                `json:"request_id"`
	MarketStatus      regime.Status         `json:"market_status"`
	Weights           map[string]float64    `json:"weights"`
	Method            string                `json:"method"`
	RiskMetrics       *risk.Report          `json:"risk_metrics"`
	ClusterOrder      []string              `json:"cluster_order"`
	CorrelationMatrix CorrelationMatrix     `json:"correlation_matrix"`
	AssetStats        map[string]AssetStats `json:"asset_stats"`
}
