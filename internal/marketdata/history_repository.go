package marketdata

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/risklens/internal/clients/yahoo"
)

// HistoryRepository stores and retrieves daily close prices.
type HistoryRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryRepository creates the repository and ensures its schema exists.
func NewHistoryRepository(db *sql.DB, log zerolog.Logger) (*HistoryRepository, error) {
	repo := &HistoryRepository{
		db:  db,
		log: log.With().Str("component", "history_repository").Logger(),
	}
	if err := repo.ensureSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize price history schema: %w", err)
	}
	return repo, nil
}

func (r *HistoryRepository) ensureSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS daily_prices (
			symbol TEXT NOT NULL,
			date   TEXT NOT NULL,
			close  REAL NOT NULL,
			PRIMARY KEY (symbol, date)
		);
		CREATE INDEX IF NOT EXISTS idx_daily_prices_date ON daily_prices(date);
	`)
	return err
}

// UpsertPrices inserts or replaces daily closes for a symbol.
func (r *HistoryRepository) UpsertPrices(symbol string, prices []yahoo.HistoricalPrice) error {
	if len(prices) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO daily_prices (symbol, date, close)
		VALUES (?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET close = excluded.close
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range prices {
		if _, err := stmt.Exec(symbol, p.Date, p.Close); err != nil {
			return fmt.Errorf("failed to upsert price for %s on %s: %w", symbol, p.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit price upsert: %w", err)
	}

	r.log.Debug().
		Str("symbol", symbol).
		Int("num_prices", len(prices)).
		Msg("Stored daily prices")

	return nil
}

// GetPriceHistory fetches historical prices for the symbols since startDate.
// Missing observations are marked NaN; callers are expected to gap-fill.
func (r *HistoryRepository) GetPriceHistory(symbols []string, startDate string) (TimeSeriesData, error) {
	if len(symbols) == 0 {
		return TimeSeriesData{}, fmt.Errorf("no symbols provided")
	}

	query := `
		SELECT symbol, date, close
		FROM daily_prices
		WHERE symbol IN (` + placeholders(len(symbols)) + `)
			AND date >= ?
		ORDER BY date ASC
	`

	args := make([]interface{}, 0, len(symbols)+1)
	for _, symbol := range symbols {
		args = append(args, symbol)
	}
	args = append(args, startDate)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return TimeSeriesData{}, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	pricesBySymbol := make(map[string]map[string]float64)
	dateSet := make(map[string]bool)

	for rows.Next() {
		var symbol, date string
		var price float64

		if err := rows.Scan(&symbol, &date, &price); err != nil {
			return TimeSeriesData{}, fmt.Errorf("failed to scan row: %w", err)
		}

		if pricesBySymbol[symbol] == nil {
			pricesBySymbol[symbol] = make(map[string]float64)
		}
		pricesBySymbol[symbol][date] = price
		dateSet[date] = true
	}

	if err := rows.Err(); err != nil {
		return TimeSeriesData{}, fmt.Errorf("error iterating rows: %w", err)
	}

	dates := make([]string, 0, len(dateSet))
	for date := range dateSet {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	data := make(map[string][]float64, len(symbols))
	for _, symbol := range symbols {
		prices := make([]float64, len(dates))
		for i, date := range dates {
			if price, ok := pricesBySymbol[symbol][date]; ok {
				prices[i] = price
			} else {
				prices[i] = math.NaN()
			}
		}
		data[symbol] = prices
	}

	return TimeSeriesData{Dates: dates, Data: data}, nil
}

// CountObservations returns the number of stored closes for a symbol since startDate.
func (r *HistoryRepository) CountObservations(symbol string, startDate string) (int, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM daily_prices WHERE symbol = ? AND date >= ?`,
		symbol, startDate,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count observations for %s: %w", symbol, err)
	}
	return count, nil
}

// Symbols lists every symbol with stored history. Used by the refresh job.
func (r *HistoryRepository) Symbols() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT symbol FROM daily_prices ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}

// StartDateForLookback formats the query start date for a lookback window.
func StartDateForLookback(now time.Time, lookbackYears int) string {
	return now.AddDate(-lookbackYears, 0, 0).Format("2006-01-02")
}

// placeholders builds SQL placeholders for an IN clause.
func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
