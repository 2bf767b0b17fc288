// Package twse fetches Taiwan Stock Exchange daily closing prices.
package twse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Client for the TWSE exchange-report API. One request returns a whole
// month of daily closes for a stock, so callers cache per (symbol, month).
type Client struct {
	baseURL string
	client  *http.Client
	limiter *DailyLimiter
	log     zerolog.Logger
}

// NewClient creates a TWSE client sharing the given daily limiter.
func NewClient(limiter *DailyLimiter, log zerolog.Logger) *Client {
	return &Client{
		baseURL: "https://www.twse.com.tw/en/exchangeReport/STOCK_DAY",
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: limiter,
		log:     log.With().Str("client", "twse").Logger(),
	}
}

// stockDayResponse is the TWSE STOCK_DAY payload. Data rows are positional:
// index 0 is the ROC-calendar date, index 6 the closing price.
type stockDayResponse struct {
	Stat string     `json:"stat"`
	Data [][]string `json:"data"`
}

// ErrNoData is returned when the exchange has no rows for the month, which
// callers persist as a negative marker.
var ErrNoData = fmt.Errorf("twse: no data for month")

// GetMonthlyCloses fetches the daily closing prices of a stock for the
// month containing date (YYYY-MM-DD). The result maps YYYY-MM-DD dates to
// closing prices.
func (c *Client) GetMonthlyCloses(ctx context.Context, stockNo, date string) (map[string]decimal.Decimal, error) {
	if err := c.limiter.Allow(); err != nil {
		return nil, fmt.Errorf("twse quota exhausted: %w", err)
	}

	queryDate := strings.ReplaceAll(date, "-", "")
	url := fmt.Sprintf("%s?response=json&date=%s&stockNo=%s", c.baseURL, queryDate, stockNo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	c.log.Debug().Str("stock", stockNo).Str("date", date).Msg("Fetching monthly closes")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twse request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twse returned status %d", resp.StatusCode)
	}

	var payload stockDayResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode twse response: %w", err)
	}

	if payload.Stat != "OK" || len(payload.Data) == 0 {
		return nil, ErrNoData
	}

	closes := make(map[string]decimal.Decimal, len(payload.Data))
	for _, row := range payload.Data {
		if len(row) < 7 {
			continue
		}
		d, err := parseROCDate(row[0])
		if err != nil {
			continue
		}
		raw := strings.ReplaceAll(strings.TrimSpace(row[6]), ",", "")
		if raw == "" || raw == "--" {
			continue
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		closes[d] = price
	}

	if len(closes) == 0 {
		return nil, ErrNoData
	}

	return closes, nil
}

// parseROCDate converts a Republic-of-China calendar date like "113/01/04"
// into 2024-01-04. The English endpoint sometimes returns Gregorian dates
// already; both forms are accepted.
func parseROCDate(s string) (string, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return "", fmt.Errorf("unexpected date %q", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return "", fmt.Errorf("unexpected date %q", s)
	}
	if year < 1000 {
		year += 1911
	}
	return fmt.Sprintf("%04d-%s-%s", year, parts[1], parts[2]), nil
}
