package analysis

import (
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/risklens/internal/marketdata"
	"github.com/aristath/risklens/internal/modules/allocation"
	"github.com/aristath/risklens/internal/modules/regime"
	"github.com/aristath/risklens/internal/modules/risk"
	"github.com/aristath/risklens/pkg/formulas"
)

const (
	rsiLength = 14
	emaLength = 20
)

// MarketDataProvider supplies validated return matrices for an asset
// universe.
type MarketDataProvider interface {
	GetMarketData(tickers []string) (*marketdata.MarketData, error)
}

// Service orchestrates a full portfolio analysis: market data, regime
// read, allocation and risk metrics.
type Service struct {
	provider   MarketDataProvider
	classifier *regime.Classifier
	allocator  *allocation.Allocator
	analyzer   *risk.Analyzer
	log        zerolog.Logger
}

// NewService wires the analysis pipeline.
func NewService(
	provider MarketDataProvider,
	classifier *regime.Classifier,
	allocator *allocation.Allocator,
	analyzer *risk.Analyzer,
	log zerolog.Logger,
) *Service {
	return &Service{
		provider:   provider,
		classifier: classifier,
		allocator:  allocator,
		analyzer:   analyzer,
		log:        log.With().Str("component", "analysis").Logger(),
	}
}

// Analyze runs the pipeline for one request.
func (s *Service) Analyze(req Request) (*Response, error) {
	requestID := uuid.New().String()
	log := s.log.With().Str("request_id", requestID).Logger()

	objective, err := allocation.ParseObjective(req.Strategy)
	if err != nil {
		return nil, marketdata.NewDataError(err.Error(), err)
	}

	md, err := s.provider.GetMarketData(req.Tickers)
	if err != nil {
		return nil, err
	}

	status := s.classifier.Classify(md)

	result, err := s.allocator.Allocate(md, objective, req.ForceMinWeight)
	if err != nil {
		return nil, err
	}

	report := s.analyzer.Analyze(md, result.Weights)

	log.Info().
		Strs("tickers", md.Symbols).
		Str("objective", string(objective)).
		Str("method", result.Method).
		Str("regime", status.Classification).
		Msg("analysis complete")

	return &Response{
		RequestID:         requestID,
		MarketStatus:      status,
		Weights:           result.Weights,
		Method:            result.Method,
		RiskMetrics:       report,
		ClusterOrder:      result.ClusterOrder,
		CorrelationMatrix: correlationMatrix(md),
		AssetStats:        assetStats(md),
	}, nil
}

// correlationMatrix renders the pairwise correlation grid in universe
// order, rounded for display.
func correlationMatrix(md *marketdata.MarketData) CorrelationMatrix {
	corr := formulas.CorrelationMatrix(md.Returns, md.Symbols)
	values := make([][]float64, len(corr))
	for i, row := range corr {
		values[i] = make([]float64, len(row))
		for j, v := range row {
			values[i][j] = math.Round(v*10000) / 10000
		}
	}
	return CorrelationMatrix{
		Labels: append([]string{}, md.Symbols...),
		Values: values,
	}
}

// assetStats computes per-asset diagnostics from the price and return
// history. Indicators that cannot be computed are reported as zero values.
func assetStats(md *marketdata.MarketData) map[string]AssetStats {
	out := make(map[string]AssetStats, len(md.Symbols))
	for _, symbol := range md.Symbols {
		stats := AssetStats{
			AnnualizedVol: math.Round(formulas.AnnualizedVolatility(md.Returns[symbol], md.TradingDays)*10000) / 10000,
			Trend:         "flat",
		}

		prices := md.Prices[symbol]
		if rsi := formulas.CalculateRSI(prices, rsiLength); rsi != nil {
			stats.RSI14 = math.Round(*rsi*100) / 100
		}
		if ema := formulas.CalculateEMA(prices, emaLength); ema != nil && len(prices) > 0 {
			last := prices[len(prices)-1]
			switch {
			case last > *ema:
				stats.Trend = "uptrend"
			case last < *ema:
				stats.Trend = "downtrend"
			}
		}

		out[symbol] = stats
	}
	return out
}
