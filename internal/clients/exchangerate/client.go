// Package exchangerate fetches historical FX rates.
package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Client for the exchangerate.host historical FX API. The endpoint is
// date-addressable and answers with the nearest prior banking day, which
// matches the actual-date semantics the cache wants.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates an FX client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		baseURL: "https://api.exchangerate.host",
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("client", "exchangerate").Logger(),
	}
}

type rateResponse struct {
	Date  string                     `json:"date"`
	Rates map[string]json.Number     `json:"rates"`
}

// ErrNoData is returned when the source has no rate for the pair.
var ErrNoData = fmt.Errorf("exchangerate: no rate available")

// GetRate fetches the from→to rate on date (YYYY-MM-DD). The returned
// actual date is the banking day the rate belongs to, which can be earlier
// than requested on weekends and holidays.
func (c *Client) GetRate(ctx context.Context, from, to, date string) (decimal.Decimal, string, error) {
	if from == to {
		return decimal.NewFromInt(1), date, nil
	}

	url := fmt.Sprintf("%s/%s?base=%s&symbols=%s", c.baseURL, date, from, to)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("failed to build request: %w", err)
	}

	c.log.Debug().Str("from", from).Str("to", to).Str("date", date).Msg("Fetching FX rate")

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("fx request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return decimal.Zero, "", ErrNoData
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, "", fmt.Errorf("fx source returned status %d", resp.StatusCode)
	}

	var payload rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, "", fmt.Errorf("failed to decode fx response: %w", err)
	}

	raw, ok := payload.Rates[to]
	if !ok {
		return decimal.Zero, "", ErrNoData
	}
	rate, err := decimal.NewFromString(raw.String())
	if err != nil || !rate.IsPositive() {
		return decimal.Zero, "", ErrNoData
	}

	return rate, payload.Date, nil
}
