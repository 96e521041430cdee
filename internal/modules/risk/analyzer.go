package risk

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/risklens/internal/marketdata"
	"github.com/aristath/risklens/pkg/formulas"
)

// Report quantifies the forward-looking risk of a weighted portfolio.
// Volatility, VaR and ES are one-step-ahead figures in percent of
// portfolio value; risk contributions are normalized shares summing to 1.
type Report struct {
	Volatility           float64            `json:"volatility"`
	VaR95                float64            `json:"var_95"`
	ES95                 float64            `json:"es_95"`
	DiversificationRatio float64            `json:"diversification_ratio"`
	RiskContribution     map[string]float64 `json:"risk_contribution"`
}

// Analyzer computes portfolio risk metrics from a return matrix and a set
// of weights.
type Analyzer struct {
	log zerolog.Logger
}

// NewAnalyzer creates a risk analyzer.
func NewAnalyzer(log zerolog.Logger) *Analyzer {
	return &Analyzer{log: log.With().Str("component", "risk").Logger()}
}

// Analyze fits a conditional volatility model to the weighted portfolio
// return series and reports volatility, tail risk and diversification
// figures. A failed model fit falls back to historical simulation and is
// never surfaced to the caller.
func (a *Analyzer) Analyze(md *marketdata.MarketData, weights map[string]float64) *Report {
	series := portfolioSeries(md, weights)

	var volatility, var95, es95 float64
	fit, err := fitGJRGARCH(series)
	if err != nil {
		a.log.Debug().Err(err).Msg("volatility model fit failed, using historical fallback")
		volatility, var95, es95 = historicalMetrics(series)
	} else {
		volatility = fit.forecastSigma
		var95, es95 = fit.tailMetrics()
	}

	dr := diversificationRatio(md, weights)
	rc := riskContribution(md, weights)

	return &Report{
		Volatility:           round2(finite(volatility)),
		VaR95:                round2(finite(var95)),
		ES95:                 round2(finite(es95)),
		DiversificationRatio: round2(finite(dr)),
		RiskContribution:     rc,
	}
}

// portfolioSeries builds the weighted per-period portfolio return series,
// scaled by 100 for numerical stability in the model fit.
func portfolioSeries(md *marketdata.MarketData, weights map[string]float64) []float64 {
	n := 0
	for _, returns := range md.Returns {
		n = len(returns)
		break
	}

	series := make([]float64, n)
	for symbol, w := range weights {
		returns, ok := md.Returns[symbol]
		if !ok {
			continue
		}
		for i := 0; i < n && i < len(returns); i++ {
			series[i] += w * returns[i] * 100
		}
	}
	return series
}

// historicalMetrics is the simulation fallback: VaR is the absolute 5th
// percentile, ES the mean of the observations at or below -VaR, and
// volatility the sample standard deviation.
func historicalMetrics(series []float64) (volatility, var95, es95 float64) {
	if len(series) == 0 {
		return 0, 0, 0
	}

	var95 = math.Abs(formulas.Percentile(series, 5))

	tailSum := 0.0
	tailCount := 0
	for _, r := range series {
		if r <= -var95 {
			tailSum += r
			tailCount++
		}
	}
	if tailCount > 0 {
		es95 = math.Abs(tailSum / float64(tailCount))
	} else {
		es95 = var95
	}

	volatility = formulas.StdDev(series)
	return volatility, var95, es95
}

// diversificationRatio is sum(w_i * sigma_i) / sigma_portfolio over the
// annualized covariance. Returns 1 when the portfolio volatility is zero.
func diversificationRatio(md *marketdata.MarketData, weights map[string]float64) float64 {
	symbols := md.Symbols
	cov := formulas.CovarianceMatrix(md.Returns, symbols, float64(md.TradingDays))

	w := make([]float64, len(symbols))
	for i, symbol := range symbols {
		w[i] = weights[symbol]
	}

	weightedVol := 0.0
	for i := range symbols {
		weightedVol += w[i] * math.Sqrt(math.Max(cov[i][i], 0))
	}

	variance := 0.0
	for i := range w {
		for j := range w {
			variance += w[i] * w[j] * cov[i][j]
		}
	}
	portfolioVol := math.Sqrt(math.Max(variance, 0))
	if portfolioVol == 0 {
		return 1.0
	}
	return weightedVol / portfolioVol
}

// riskContribution computes each asset's normalized share of portfolio
// volatility. Degenerate portfolios get equal contributions.
func riskContribution(md *marketdata.MarketData, weights map[string]float64) map[string]float64 {
	symbols := append([]string{}, md.Symbols...)
	sort.Strings(symbols)

	cov := formulas.CovarianceMatrix(md.Returns, symbols, 1)
	w := make([]float64, len(symbols))
	for i, symbol := range symbols {
		w[i] = weights[symbol]
	}

	variance := 0.0
	covW := make([]float64, len(w))
	for i := range w {
		for j := range w {
			covW[i] += cov[i][j] * w[j]
		}
	}
	for i := range w {
		variance += w[i] * covW[i]
	}
	portfolioVol := math.Sqrt(math.Max(variance, 0))

	out := make(map[string]float64, len(symbols))
	if portfolioVol == 0 {
		for _, symbol := range symbols {
			out[symbol] = round4(1.0 / float64(len(symbols)))
		}
		return out
	}

	raw := make([]float64, len(w))
	total := 0.0
	for i := range w {
		raw[i] = w[i] * covW[i] / portfolioVol
		total += raw[i]
	}
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		for _, symbol := range symbols {
			out[symbol] = round4(1.0 / float64(len(symbols)))
		}
		return out
	}

	for i, symbol := range symbols {
		out[symbol] = round4(finite(raw[i] / total))
	}
	return out
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
