// Package historical stores daily price history and turns it into price series for backtests.
package historical

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/utils"
	"github.com/rs/zerolog"
)

// HistoryDB provides access to historical price data
type HistoryDB struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryDB creates a new history database accessor
func NewHistoryDB(db *sql.DB, log zerolog.Logger) *HistoryDB {
	return &HistoryDB{
		db:  db,
		log: log.With().Str("component", "history_db").Logger(),
	}
}

// DailyPrice represents a daily OHLCV price point
type DailyPrice struct {
	Date     string  `json:"date"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	AdjClose float64 `json:"adj_close"`
	Volume   *int64  `json:"volume,omitempty"`
}

// SymbolInfo summarizes the stored history of one symbol
type SymbolInfo struct {
	Symbol    string `json:"symbol"`
	Source    string `json:"source"`
	Count     int    `json:"count"`
	FirstDate string `json:"first_date,omitempty"`
	LastDate  string `json:"last_date,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

// GetDailyPrices fetches the most recent daily prices for a symbol, newest first
func (h *HistoryDB) GetDailyPrices(symbol string, limit int) ([]DailyPrice, error) {
	query := `
		SELECT date, open, high, low, close, adjusted_close, volume
		FROM daily_prices
		WHERE symbol = ?
		ORDER BY date DESC
		LIMIT ?
	`

	rows, err := h.db.Query(query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	prices := make([]DailyPrice, 0)
	for rows.Next() {
		var p DailyPrice
		var dateUnix int64
		var volume sql.NullInt64

		if err := rows.Scan(&dateUnix, &p.Open, &p.High, &p.Low, &p.Close, &p.AdjClose, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}

		p.Date = time.Unix(dateUnix, 0).UTC().Format(domain.DateLayout)
		if volume.Valid {
			p.Volume = &volume.Int64
		}

		prices = append(prices, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	return prices, nil
}

// LoadSeries reads the history of a symbol in ascending date order.
// A zero from or to leaves that side of the range open.
func (h *HistoryDB) LoadSeries(symbol string, from, to time.Time) (*domain.PriceSeries, error) {
	query := `
		SELECT date, open, high, low, close, adjusted_close, volume
		FROM daily_prices
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`

	fromUnix := int64(0)
	if !from.IsZero() {
		fromUnix = utils.Midnight(from).Unix()
	}
	toUnix := int64(1<<62 - 1)
	if !to.IsZero() {
		toUnix = utils.Midnight(to).Unix()
	}

	rows, err := h.db.Query(query, symbol, fromUnix, toUnix)
	if err != nil {
		return nil, fmt.Errorf("failed to query price series: %w", err)
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		var p domain.PricePoint
		var dateUnix int64
		var volume sql.NullInt64

		if err := rows.Scan(&dateUnix, &p.Open, &p.High, &p.Low, &p.Close, &p.AdjClose, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		p.Date = time.Unix(dateUnix, 0).UTC()
		p.Volume = volume.Int64

		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price series: %w", err)
	}

	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrSeriesNotFound, symbol)
	}

	return domain.NewPriceSeries(symbol, points)
}

// ListSymbols returns every symbol with stored prices
func (h *HistoryDB) ListSymbols() ([]SymbolInfo, error) {
	query := `
		SELECT s.symbol, s.source, s.updated_at,
		       COUNT(p.date), MIN(p.date), MAX(p.date)
		FROM symbols s
		LEFT JOIN daily_prices p ON p.symbol = s.symbol
		GROUP BY s.symbol
		ORDER BY s.symbol
	`

	rows, err := h.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	symbols := make([]SymbolInfo, 0)
	for rows.Next() {
		var info SymbolInfo
		var updatedAt int64
		var first, last sql.NullInt64

		if err := rows.Scan(&info.Symbol, &info.Source, &updatedAt, &info.Count, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}

		info.UpdatedAt = time.Unix(updatedAt, 0).UTC().Format(time.RFC3339)
		if first.Valid {
			info.FirstDate = time.Unix(first.Int64, 0).UTC().Format(domain.DateLayout)
		}
		if last.Valid {
			info.LastDate = time.Unix(last.Int64, 0).UTC().Format(domain.DateLayout)
		}

		symbols = append(symbols, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}

	return symbols, nil
}

// SyncHistoricalPrices writes historical price data to the database.
// Existing rows for the same symbol and date are replaced, all in one transaction.
func (h *HistoryDB) SyncHistoricalPrices(symbol, source string, prices []DailyPrice) error {
	if symbol == "" {
		return fmt.Errorf("%w: symbol is required", domain.ErrInvalidConfiguration)
	}
	defer utils.OperationTimer("sync_historical_prices", h.log.With().Str("symbol", symbol).Logger())()

	tx, err := h.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Will be no-op if Commit succeeds

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO daily_prices
		(symbol, date, open, high, low, close, adjusted_close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, price := range prices {
		volume := sql.NullInt64{}
		if price.Volume != nil {
			volume.Int64 = *price.Volume
			volume.Valid = true
		}

		adjustedClose := price.AdjClose
		if adjustedClose == 0 {
			adjustedClose = price.Close // Use close as adjusted_close if not provided
		}

		dateUnix, err := utils.DateToUnix(price.Date)
		if err != nil {
			return fmt.Errorf("failed to parse date %s: %w", price.Date, err)
		}

		_, err = stmt.Exec(symbol, dateUnix, price.Open, price.High, price.Low, price.Close, adjustedClose, volume)
		if err != nil {
			return fmt.Errorf("failed to insert daily price for %s: %w", price.Date, err)
		}
	}

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO symbols (symbol, source, updated_at)
		VALUES (?, ?, ?)
	`, symbol, source, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record symbol %s: %w", symbol, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	h.log.Info().
		Str("symbol", symbol).
		Int("count", len(prices)).
		Msg("Synced historical prices")

	return nil
}
