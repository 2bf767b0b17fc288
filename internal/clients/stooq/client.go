// Package stooq fetches historical daily prices for non-Taiwan tickers.
package stooq

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/weihanlu/investrack/internal/domain"
)

// Client for the stooq.com daily CSV endpoint.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a stooq client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		baseURL: "https://stooq.com/q/d/l/",
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("client", "stooq").Logger(),
	}
}

// DailyClose is one trading day's closing price.
type DailyClose struct {
	Date  string
	Close decimal.Decimal
}

// ErrNoData is returned when stooq has no rows for the range, which
// callers persist as a negative marker.
var ErrNoData = fmt.Errorf("stooq: no data for range")

// marketSuffix maps a market to the stooq symbol suffix.
func marketSuffix(market domain.StockMarket) string {
	switch market {
	case domain.MarketUS:
		return ".us"
	case domain.MarketUK:
		return ".uk"
	case domain.MarketEU:
		return ".de"
	default:
		return ""
	}
}

// GetDailyCloses fetches daily closes for symbol between from and to
// (YYYY-MM-DD, inclusive), oldest first.
func (c *Client) GetDailyCloses(ctx context.Context, symbol string, market domain.StockMarket, from, to string) ([]DailyClose, error) {
	stooqSymbol := strings.ToLower(symbol) + marketSuffix(market)
	url := fmt.Sprintf("%s?s=%s&d1=%s&d2=%s&i=d",
		c.baseURL, stooqSymbol,
		strings.ReplaceAll(from, "-", ""),
		strings.ReplaceAll(to, "-", ""))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	c.log.Debug().Str("symbol", stooqSymbol).Str("from", from).Str("to", to).Msg("Fetching daily closes")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stooq request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stooq returned status %d", resp.StatusCode)
	}

	reader := csv.NewReader(resp.Body)
	header, err := reader.Read()
	if err != nil || len(header) < 5 {
		return nil, ErrNoData
	}

	var closes []DailyClose
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse stooq CSV: %w", err)
		}
		if len(record) < 5 {
			continue
		}
		price, err := decimal.NewFromString(strings.TrimSpace(record[4]))
		if err != nil {
			continue
		}
		closes = append(closes, DailyClose{Date: record[0], Close: price})
	}

	if len(closes) == 0 {
		return nil, ErrNoData
	}

	return closes, nil
}
