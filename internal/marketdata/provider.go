package marketdata

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/risklens/internal/clients/yahoo"
	"github.com/aristath/risklens/pkg/formulas"
)

// PriceSource fetches daily closes for a symbol over a lookback period.
// Satisfied by the Yahoo client; tests substitute a stub.
type PriceSource interface {
	GetHistoricalPrices(symbol string, period string) ([]yahoo.HistoricalPrice, error)
}

// Provider assembles validated MarketData for an asset universe. It owns the
// read path: cache -> history store -> price source.
type Provider struct {
	repo          *HistoryRepository
	source        PriceSource
	cache         *Cache
	lookbackYears int
	log           zerolog.Logger
	now           func() time.Time
}

// NewProvider creates a market data provider.
func NewProvider(
	repo *HistoryRepository,
	source PriceSource,
	cache *Cache,
	lookbackYears int,
	log zerolog.Logger,
) *Provider {
	return &Provider{
		repo:          repo,
		source:        source,
		cache:         cache,
		lookbackYears: lookbackYears,
		log:           log.With().Str("component", "marketdata_provider").Logger(),
		now:           time.Now,
	}
}

// GetMarketData returns a cleaned, validated MarketData for the tickers.
// All failures surface as DataError.
func (p *Provider) GetMarketData(tickers []string) (*MarketData, error) {
	universe, err := NormalizeUniverse(tickers)
	if err != nil {
		return nil, err
	}

	key := CacheKey(universe, p.lookbackYears)
	if cached := p.cache.Get(key); cached != nil {
		p.log.Debug().Str("key", key).Msg("Return matrix served from cache")
		return cached, nil
	}

	startDate := StartDateForLookback(p.now(), p.lookbackYears)

	if err := p.ensureHistory(universe, startDate); err != nil {
		return nil, err
	}

	series, err := p.repo.GetPriceHistory(universe, startDate)
	if err != nil {
		return nil, NewDataError("failed to read price history", err)
	}

	md, err := p.build(universe, series)
	if err != nil {
		return nil, err
	}

	p.cache.Put(key, md)
	return md, nil
}

// ensureHistory downloads and stores history for symbols with too little data.
func (p *Provider) ensureHistory(universe []string, startDate string) error {
	period := fmt.Sprintf("%dy", p.lookbackYears)

	for _, symbol := range universe {
		count, err := p.repo.CountObservations(symbol, startDate)
		if err != nil {
			return NewDataError("failed to inspect price history", err)
		}
		if count >= MinHistoryRows {
			continue
		}

		p.log.Info().
			Str("symbol", symbol).
			Int("stored_observations", count).
			Msg("Downloading price history")

		prices, err := p.source.GetHistoricalPrices(symbol, period)
		if err != nil {
			return NewDataError(fmt.Sprintf("failed to download data for %s", symbol), err)
		}
		if len(prices) == 0 {
			return NewDataError(fmt.Sprintf("no data found for %s", symbol), nil)
		}

		if err := p.repo.UpsertPrices(symbol, prices); err != nil {
			return NewDataError(fmt.Sprintf("failed to store prices for %s", symbol), err)
		}
	}

	return nil
}

// build aligns, gap-fills, and converts prices to the validated MarketData.
func (p *Provider) build(universe []string, series TimeSeriesData) (*MarketData, error) {
	filled := fillMissing(series)

	// Drop leading rows where any symbol still has no price (nothing to
	// forward-fill from). Mirrors ffill().dropna() on the raw frame.
	firstComplete := 0
	for i := range filled.Dates {
		complete := true
		for _, symbol := range universe {
			if math.IsNaN(filled.Data[symbol][i]) {
				complete = false
				break
			}
		}
		if complete {
			firstComplete = i
			break
		}
		if i == len(filled.Dates)-1 {
			return nil, NewDataError("no overlapping price history across assets", nil)
		}
	}

	dates := filled.Dates[firstComplete:]
	prices := make(map[string][]float64, len(universe))
	returns := make(map[string][]float64, len(universe))
	for _, symbol := range universe {
		cols := filled.Data[symbol][firstComplete:]
		prices[symbol] = cols
		returns[symbol] = formulas.CalculateReturns(cols)
	}

	md := &MarketData{
		Dates:     dates,
		Symbols:   universe,
		Prices:    prices,
		Returns:   returns,
		HasCrypto: hasCryptoSymbol(universe),
	}
	md.TradingDays = tradingDaysEquity
	if md.HasCrypto {
		md.TradingDays = tradingDaysCrypto
	}

	if err := md.Validate(); err != nil {
		return nil, err
	}

	return md, nil
}

// fillMissing forward-fills gaps in each symbol's prices. Leading gaps are
// left as NaN and dropped by the caller, matching ffill-then-dropna semantics.
func fillMissing(data TimeSeriesData) TimeSeriesData {
	filledData := TimeSeriesData{
		Dates: data.Dates,
		Data:  make(map[string][]float64, len(data.Data)),
	}

	for symbol, prices := range data.Data {
		filled := make([]float64, len(prices))
		copy(filled, prices)

		var lastValid float64
		hasLastValid := false
		for i := 0; i < len(filled); i++ {
			if math.IsNaN(filled[i]) {
				if hasLastValid {
					filled[i] = lastValid
				}
			} else {
				lastValid = filled[i]
				hasLastValid = true
			}
		}

		filledData.Data[symbol] = filled
	}

	return filledData
}
