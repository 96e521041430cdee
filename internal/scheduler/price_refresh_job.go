package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/risklens/internal/clients/yahoo"
	"github.com/aristath/risklens/internal/marketdata"
)

// refreshPeriod covers enough recent sessions to close any gap since the
// last successful run.
const refreshPeriod = "1mo"

// PriceRefreshJob tops up recent daily closes for every symbol already
// known to the history store, keeping cached analyses fresh without
// blocking request paths on downloads.
type PriceRefreshJob struct {
	repo   *marketdata.HistoryRepository
	client *yahoo.Client
	log    zerolog.Logger
}

// NewPriceRefreshJob creates the refresh job
func NewPriceRefreshJob(repo *marketdata.HistoryRepository, client *yahoo.Client, log zerolog.Logger) *PriceRefreshJob {
	return &PriceRefreshJob{
		repo:   repo,
		client: client,
		log:    log.With().Str("component", "price_refresh").Logger(),
	}
}

// Name identifies the job in scheduler logs
func (j *PriceRefreshJob) Name() string {
	return "price_refresh"
}

// Run refreshes recent history for all stored symbols. A failed symbol is
// logged and skipped; the job only fails when every symbol fails.
func (j *PriceRefreshJob) Run() error {
	symbols, err := j.repo.Symbols()
	if err != nil {
		return fmt.Errorf("failed to list stored symbols: %w", err)
	}
	if len(symbols) == 0 {
		j.log.Debug().Msg("No symbols stored yet, nothing to refresh")
		return nil
	}

	failures := 0
	for _, symbol := range symbols {
		prices, err := j.client.GetHistoricalPrices(symbol, refreshPeriod)
		if err != nil {
			j.log.Warn().Err(err).Str("symbol", symbol).Msg("Price refresh failed for symbol")
			failures++
			continue
		}
		if err := j.repo.UpsertPrices(symbol, prices); err != nil {
			j.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to store refreshed prices")
			failures++
		}
	}

	if failures == len(symbols) {
		return fmt.Errorf("price refresh failed for all %d symbols", len(symbols))
	}

	j.log.Info().
		Int("symbols", len(symbols)).
		Int("failures", failures).
		Msg("Price refresh complete")

	return nil
}
