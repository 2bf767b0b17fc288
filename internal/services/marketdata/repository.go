// Package marketdata provides cached access to external price and FX sources.
package marketdata

import (
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/weihanlu/investrack/internal/database"
	"github.com/weihanlu/investrack/internal/domain"
)

// PriceEntry is one cached price lookup. A row with IsNotAvailable set is a
// negative marker: the source was asked and had nothing, so don't ask again.
type PriceEntry struct {
	Symbol         string
	Market         domain.StockMarket
	Date           string
	Price          decimal.Decimal
	Currency       domain.Currency
	ActualDate     string
	IsNotAvailable bool
}

// RateEntry is one cached FX lookup.
type RateEntry struct {
	From           domain.Currency
	To             domain.Currency
	Date           string
	Rate           decimal.Decimal
	ActualDate     string
	IsNotAvailable bool
}

// Repository persists the three market-data caches.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a market-data cache repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "marketdata").Logger(),
	}
}

// GetPrice returns the cached entry for (symbol, market, date), or nil on a
// cache miss.
func (r *Repository) GetPrice(symbol string, market domain.StockMarket, date string) (*PriceEntry, error) {
	query := r.db.Rebind(`
		SELECT price, currency, actual_date, is_not_available
		FROM price_cache WHERE symbol = ? AND market = ? AND date = ?
	`)

	var (
		price    sql.NullString
		currency string
		actual   string
		negative int
	)
	err := r.db.Conn().QueryRow(query, symbol, string(market), date).Scan(&price, &currency, &actual, &negative)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read price cache: %w", err)
	}

	entry := &PriceEntry{
		Symbol:         symbol,
		Market:         market,
		Date:           date,
		Currency:       domain.Currency(currency),
		ActualDate:     actual,
		IsNotAvailable: negative != 0,
	}
	if price.Valid {
		if entry.Price, err = decimal.NewFromString(price.String); err != nil {
			return nil, fmt.Errorf("invalid cached price %q: %w", price.String, err)
		}
	}
	return entry, nil
}

// PutPrice upserts a price entry; the unique key keeps concurrent writers
// from creating duplicates.
func (r *Repository) PutPrice(e *PriceEntry) error {
	query := r.db.Rebind(`
		INSERT INTO price_cache (symbol, market, date, price, currency, actual_date, is_not_available, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, market, date) DO UPDATE SET
			price = excluded.price,
			currency = excluded.currency,
			actual_date = excluded.actual_date,
			is_not_available = excluded.is_not_available
	`)

	var price interface{}
	if !e.IsNotAvailable {
		price = e.Price.String()
	}
	negative := 0
	if e.IsNotAvailable {
		negative = 1
	}

	_, err := r.db.Conn().Exec(query,
		e.Symbol, string(e.Market), e.Date, price, string(e.Currency),
		e.ActualDate, negative, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to write price cache: %w", err)
	}
	return nil
}

// GetRate returns the cached FX entry for (from, to, date), or nil on miss.
func (r *Repository) GetRate(from, to domain.Currency, date string) (*RateEntry, error) {
	query := r.db.Rebind(`
		SELECT rate, actual_date, is_not_available
		FROM fx_rate_cache WHERE from_currency = ? AND to_currency = ? AND date = ?
	`)

	var (
		rate     sql.NullString
		actual   string
		negative int
	)
	err := r.db.Conn().QueryRow(query, string(from), string(to), date).Scan(&rate, &actual, &negative)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fx cache: %w", err)
	}

	entry := &RateEntry{
		From:           from,
		To:             to,
		Date:           date,
		ActualDate:     actual,
		IsNotAvailable: negative != 0,
	}
	if rate.Valid {
		if entry.Rate, err = decimal.NewFromString(rate.String); err != nil {
			return nil, fmt.Errorf("invalid cached rate %q: %w", rate.String, err)
		}
	}
	return entry, nil
}

// PutRate upserts an FX entry.
func (r *Repository) PutRate(e *RateEntry) error {
	query := r.db.Rebind(`
		INSERT INTO fx_rate_cache (from_currency, to_currency, date, rate, actual_date, is_not_available, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (from_currency, to_currency, date) DO UPDATE SET
			rate = excluded.rate,
			actual_date = excluded.actual_date,
			is_not_available = excluded.is_not_available
	`)

	var rate interface{}
	if !e.IsNotAvailable {
		rate = e.Rate.String()
	}
	negative := 0
	if e.IsNotAvailable {
		negative = 1
	}

	_, err := r.db.Conn().Exec(query,
		string(e.From), string(e.To), e.Date, rate, e.ActualDate, negative, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to write fx cache: %w", err)
	}
	return nil
}

// monthlyPayload is the msgpack structure stored for a month of closes.
// Prices are serialized as strings to preserve decimal exactness.
type monthlyPayload struct {
	Closes map[string]string `msgpack:"closes"`
}

// GetMonthly returns a month of daily closes for a market key like
// "TW:2330". found reports a cache hit; notAvailable a negative marker.
func (r *Repository) GetMonthly(marketKey, yearMonth string) (closes map[string]decimal.Decimal, notAvailable, found bool, err error) {
	query := r.db.Rebind(`
		SELECT payload, is_not_available
		FROM monthly_price_cache WHERE market_key = ? AND year_month = ?
	`)

	var (
		payload  sql.NullString
		negative int
	)
	err = r.db.Conn().QueryRow(query, marketKey, yearMonth).Scan(&payload, &negative)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, false, nil
	}
	if err != nil {
		return nil, false, false, fmt.Errorf("failed to read monthly cache: %w", err)
	}

	if negative != 0 {
		return nil, true, true, nil
	}
	if !payload.Valid {
		return nil, false, false, nil
	}

	raw, err := base64.StdEncoding.DecodeString(payload.String)
	if err != nil {
		return nil, false, false, fmt.Errorf("corrupt monthly cache payload: %w", err)
	}
	var decoded monthlyPayload
	if err := msgpack.Unmarshal(raw, &decoded); err != nil {
		return nil, false, false, fmt.Errorf("corrupt monthly cache payload: %w", err)
	}

	closes = make(map[string]decimal.Decimal, len(decoded.Closes))
	for date, s := range decoded.Closes {
		price, err := decimal.NewFromString(s)
		if err != nil {
			return nil, false, false, fmt.Errorf("invalid cached price %q: %w", s, err)
		}
		closes[date] = price
	}
	return closes, false, true, nil
}

// PutMonthly upserts a month of closes. A nil map writes a negative marker.
func (r *Repository) PutMonthly(marketKey, yearMonth string, closes map[string]decimal.Decimal) error {
	var (
		payload  interface{}
		negative = 1
	)
	if closes != nil {
		encoded := monthlyPayload{Closes: make(map[string]string, len(closes))}
		for date, price := range closes {
			encoded.Closes[date] = price.String()
		}
		raw, err := msgpack.Marshal(&encoded)
		if err != nil {
			return fmt.Errorf("failed to encode monthly payload: %w", err)
		}
		payload = base64.StdEncoding.EncodeToString(raw)
		negative = 0
	}

	query := r.db.Rebind(`
		INSERT INTO monthly_price_cache (market_key, year_month, payload, is_not_available, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (market_key, year_month) DO UPDATE SET
			payload = excluded.payload,
			is_not_available = excluded.is_not_available
	`)

	_, err := r.db.Conn().Exec(query, marketKey, yearMonth, payload, negative, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write monthly cache: %w", err)
	}
	return nil
}
