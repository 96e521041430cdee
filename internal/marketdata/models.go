// Package marketdata builds cleaned, aligned return matrices for asset
// universes from stored price history, with an explicit bounded cache.
package marketdata

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

const (
	// MinUniverseSize and MaxUniverseSize bound the number of assets per request.
	MinUniverseSize = 2
	MaxUniverseSize = 10

	// MinHistoryRows is the minimum number of aligned price rows required
	// before a return matrix is considered usable.
	MinHistoryRows = 50

	cryptoSuffix = "-USD"

	tradingDaysEquity = 252
	tradingDaysCrypto = 365
)

// DataError indicates the request's market data is unusable (bad tickers,
// missing history, invariant violations). It maps to a client-side failure.
type DataError struct {
	Reason string
	Err    error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("data error: %s", e.Reason)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a DataError with the given reason.
func NewDataError(reason string, err error) *DataError {
	return &DataError{Reason: reason, Err: err}
}

// NormalizeUniverse cleans and validates a requested ticker list: trims
// whitespace, upper-cases, deduplicates, sorts, and enforces the 2-10 bound.
func NormalizeUniverse(tickers []string) ([]string, error) {
	seen := make(map[string]bool, len(tickers))
	universe := make([]string, 0, len(tickers))
	for _, t := range tickers {
		normalized := strings.ToUpper(strings.TrimSpace(t))
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		universe = append(universe, normalized)
	}
	sort.Strings(universe)

	if len(universe) < MinUniverseSize || len(universe) > MaxUniverseSize {
		return nil, NewDataError(
			fmt.Sprintf("please provide between %d and %d unique assets, got %d", MinUniverseSize, MaxUniverseSize, len(universe)),
			nil,
		)
	}

	return universe, nil
}

// TimeSeriesData holds aligned date-indexed values per symbol.
type TimeSeriesData struct {
	Dates []string             `msgpack:"dates"` // YYYY-MM-DD, ascending
	Data  map[string][]float64 `msgpack:"data"`
}

// MarketData is the cleaned, aligned market snapshot handed to the core
// components. It is treated as read-only once built.
type MarketData struct {
	Dates       []string             `msgpack:"dates"`   // price dates, ascending
	Symbols     []string             `msgpack:"symbols"` // the asset universe, sorted
	Prices      map[string][]float64 `msgpack:"prices"`  // len(Dates) rows per symbol
	Returns     map[string][]float64 `msgpack:"returns"` // len(Dates)-1 rows per symbol
	HasCrypto   bool                 `msgpack:"has_crypto"`
	TradingDays int                  `msgpack:"trading_days"`
}

// Validate enforces the return-matrix invariants. Violations yield a DataError.
func (md *MarketData) Validate() error {
	if len(md.Symbols) < MinUniverseSize {
		return NewDataError(fmt.Sprintf("need at least %d assets, got %d", MinUniverseSize, len(md.Symbols)), nil)
	}
	if len(md.Dates) < MinHistoryRows {
		return NewDataError(fmt.Sprintf("not enough historical data points after cleaning: %d < %d", len(md.Dates), MinHistoryRows), nil)
	}
	if len(md.Returns) != len(md.Symbols) {
		return NewDataError("return matrix columns do not match the asset universe", nil)
	}

	wantRows := len(md.Dates) - 1
	for _, symbol := range md.Symbols {
		rets, ok := md.Returns[symbol]
		if !ok {
			return NewDataError(fmt.Sprintf("missing returns for %s", symbol), nil)
		}
		if len(rets) != wantRows {
			return NewDataError(fmt.Sprintf("inconsistent return length for %s: %d != %d", symbol, len(rets), wantRows), nil)
		}
		for _, r := range rets {
			if math.IsNaN(r) || math.IsInf(r, 0) {
				return NewDataError(fmt.Sprintf("non-finite return for %s", symbol), nil)
			}
		}
	}

	return nil
}

// WeeklyReturns resamples prices to weekly frequency (last observation per ISO
// week) and percent-changes the result. Returns an error when fewer than three
// weekly observations are available; callers fall back to daily returns.
func (md *MarketData) WeeklyReturns() (map[string][]float64, error) {
	if len(md.Dates) == 0 {
		return nil, fmt.Errorf("no price history")
	}

	// Index of the last trading day in each ISO week, in date order.
	lastOfWeek := make([]int, 0)
	prevKey := ""
	for i, d := range md.Dates {
		ts, err := time.Parse("2006-01-02", d)
		if err != nil {
			return nil, fmt.Errorf("bad date %q: %w", d, err)
		}
		year, week := ts.ISOWeek()
		key := fmt.Sprintf("%d-%02d", year, week)
		if key != prevKey {
			lastOfWeek = append(lastOfWeek, i)
			prevKey = key
		} else {
			lastOfWeek[len(lastOfWeek)-1] = i
		}
	}

	if len(lastOfWeek) < 3 {
		return nil, fmt.Errorf("insufficient history for weekly resampling: %d weeks", len(lastOfWeek))
	}

	weekly := make(map[string][]float64, len(md.Symbols))
	for _, symbol := range md.Symbols {
		prices := md.Prices[symbol]
		rets := make([]float64, 0, len(lastOfWeek)-1)
		for w := 1; w < len(lastOfWeek); w++ {
			prev := prices[lastOfWeek[w-1]]
			curr := prices[lastOfWeek[w]]
			if prev != 0 {
				rets = append(rets, (curr-prev)/prev)
			} else {
				rets = append(rets, 0)
			}
		}
		weekly[symbol] = rets
	}

	return weekly, nil
}

// hasCryptoSymbol reports whether any ticker is a crypto instrument.
func hasCryptoSymbol(symbols []string) bool {
	for _, s := range symbols {
		if strings.HasSuffix(s, cryptoSuffix) {
			return true
		}
	}
	return false
}
