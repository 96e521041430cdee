package marketdata

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/risklens/internal/clients/yahoo"
)

type stubSource struct {
	calls  int
	err    error
	series map[string][]yahoo.HistoricalPrice
}

func (s *stubSource) GetHistoricalPrices(symbol string, _ string) ([]yahoo.HistoricalPrice, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.series[symbol], nil
}

func stubSeries(symbols []string, start time.Time, days int) map[string][]yahoo.HistoricalPrice {
	rng := rand.New(rand.NewSource(5))
	out := make(map[string][]yahoo.HistoricalPrice, len(symbols))
	for _, symbol := range symbols {
		prices := make([]yahoo.HistoricalPrice, days)
		last := 100.0
		for i := range prices {
			last *= 1 + 0.0005 + rng.NormFloat64()*0.01
			prices[i] = yahoo.HistoricalPrice{
				Date:  start.AddDate(0, 0, i).Format("2006-01-02"),
				Close: last,
			}
		}
		out[symbol] = prices
	}
	return out
}

func newTestProvider(t *testing.T, source PriceSource) *Provider {
	t.Helper()

	repo := memoryHistoryRepo(t)
	cache, err := NewCache(4, nil, zerolog.Nop())
	require.NoError(t, err)

	provider := NewProvider(repo, source, cache, 1, zerolog.Nop())
	provider.now = func() time.Time {
		return time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	}
	return provider
}

func TestGetMarketDataDownloadsBuildsAndValidates(t *testing.T) {
	symbols := []string{"AAA", "BBB"}
	start := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	source := &stubSource{series: stubSeries(symbols, start, 200)}
	provider := newTestProvider(t, source)

	md, err := provider.GetMarketData([]string{"aaa", "BBB "})
	require.NoError(t, err)

	assert.Equal(t, symbols, md.Symbols)
	assert.GreaterOrEqual(t, len(md.Dates), MinHistoryRows)
	assert.Len(t, md.Returns["AAA"], len(md.Dates)-1)
	assert.Equal(t, 252, md.TradingDays)
	assert.NoError(t, md.Validate())
}

func TestGetMarketDataServesSecondCallFromCache(t *testing.T) {
	symbols := []string{"AAA", "BBB"}
	start := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	source := &stubSource{series: stubSeries(symbols, start, 200)}
	provider := newTestProvider(t, source)

	_, err := provider.GetMarketData(symbols)
	require.NoError(t, err)
	downloads := source.calls

	_, err = provider.GetMarketData(symbols)
	require.NoError(t, err)

	assert.Equal(t, downloads, source.calls, "second request should not hit the price source")
}

func TestGetMarketDataRejectsSmallUniverse(t *testing.T) {
	provider := newTestProvider(t, &stubSource{})

	_, err := provider.GetMarketData([]string{"AAA"})
	require.Error(t, err)

	var dataErr *DataError
	assert.ErrorAs(t, err, &dataErr)
}

func TestGetMarketDataWrapsSourceFailure(t *testing.T) {
	provider := newTestProvider(t, &stubSource{err: errors.New("upstream down")})

	_, err := provider.GetMarketData([]string{"AAA", "BBB"})
	require.Error(t, err)

	var dataErr *DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Contains(t, dataErr.Reason, "failed to download")
}

func TestGetMarketDataCryptoSwitchesConvention(t *testing.T) {
	symbols := []string{"AAA", "BTC-USD"}
	start := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	source := &stubSource{series: stubSeries(symbols, start, 200)}
	provider := newTestProvider(t, source)

	md, err := provider.GetMarketData(symbols)
	require.NoError(t, err)

	assert.True(t, md.HasCrypto)
	assert.Equal(t, 365, md.TradingDays)
}
