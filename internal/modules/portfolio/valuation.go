package portfolio

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/weihanlu/investrack/internal/domain"
	"github.com/weihanlu/investrack/internal/modules/ledger"
	"github.com/weihanlu/investrack/internal/modules/positions"
	"github.com/weihanlu/investrack/internal/services/marketdata"
)

// MarketDataProvider is the slice of the market-data facade valuation needs.
type MarketDataProvider interface {
	GetPrice(ctx context.Context, symbol string, market domain.StockMarket, date string) (*marketdata.Price, error)
	GetRate(ctx context.Context, from, to domain.Currency, date string) (decimal.Decimal, string, error)
}

// PriceOverride is a user-supplied price for one ticker, used by year
// reports where the user fills in prices the sources cannot provide.
type PriceOverride struct {
	Price        decimal.Decimal `json:"price"`
	ExchangeRate decimal.Decimal `json:"exchangeRate"`
	Date         string          `json:"date"`
}

// MissingPrice identifies a price the valuation could not resolve.
type MissingPrice struct {
	Ticker    string           `json:"ticker"`
	Date      string           `json:"date"`
	PriceType domain.PriceType `json:"priceType"`
}

// Valuation is a portfolio value at one instant, in both currencies.
// A non-empty Missing list means the values are incomplete.
type Valuation struct {
	ValueHome   decimal.Decimal `json:"valueHome"`
	ValueSource decimal.Decimal `json:"valueSource"`
	Missing     []MissingPrice  `json:"missing,omitempty"`
}

// ValueOptions tunes a valuation run.
type ValueOptions struct {
	// Overrides supplies prices by ticker, consulted before the market
	// data facade.
	Overrides map[string]PriceOverride
	// FallbackToCost values positions with unresolvable prices at their
	// average cost instead of reporting them missing. Snapshot recording
	// uses this so a market-data outage never blocks a write.
	FallbackToCost bool
	// PriceType labels missing prices for the caller's report.
	PriceType domain.PriceType
}

// Valuator computes portfolio values from positions, the bound ledger, and
// market data. The closed-loop rule: portfolio value is stock market value
// plus the bound ledger's cash balance, negative balances included.
type Valuator struct {
	positions  *positions.Calculator
	ledgerRepo *ledger.Repository
	market     MarketDataProvider
	log        zerolog.Logger
}

// NewValuator creates a valuator.
func NewValuator(pos *positions.Calculator, ledgerRepo *ledger.Repository, market MarketDataProvider, log zerolog.Logger) *Valuator {
	return &Valuator{
		positions:  pos,
		ledgerRepo: ledgerRepo,
		market:     market,
		log:        log.With().Str("service", "valuation").Logger(),
	}
}

// ValueAt computes the portfolio's value as of date (YYYY-MM-DD).
func (v *Valuator) ValueAt(ctx context.Context, p *Portfolio, date string, opts ValueOptions) (*Valuation, error) {
	return v.ValueAtPriced(ctx, p, date, date, opts)
}

// ValueAtPriced values the holdings and cash the portfolio had at the end
// of holdingsDate using prices prevailing on priceDate. Day-start values
// use yesterday's holdings at today's prices, so an intraday event chain
// measures only the events, not overnight price moves.
func (v *Valuator) ValueAtPriced(ctx context.Context, p *Portfolio, holdingsDate, priceDate string, opts ValueOptions) (*Valuation, error) {
	holdings, err := v.positions.HoldingsAt(p.ID, holdingsDate)
	if err != nil {
		return nil, err
	}

	result := &Valuation{
		ValueHome:   decimal.Zero,
		ValueSource: decimal.Zero,
	}

	for i := range holdings {
		pos := &holdings[i]
		price, fxHome, ok := v.resolvePrice(ctx, pos, p.HomeCurrency, priceDate, opts, result)
		if !ok {
			continue
		}

		marketValue := pos.TotalShares.Mul(price) // in the position's currency
		result.ValueHome = result.ValueHome.Add(marketValue.Mul(fxHome))

		sourceValue, ok := v.toCurrency(ctx, marketValue, pos.Currency, p.BaseCurrency, priceDate)
		if !ok {
			// Source-side conversion shares the missing-price report.
			result.Missing = appendMissing(result.Missing, MissingPrice{
				Ticker: pos.Ticker, Date: priceDate, PriceType: opts.PriceType,
			})
			continue
		}
		result.ValueSource = result.ValueSource.Add(sourceValue)
	}

	if p.BoundCurrencyLedgerID != "" {
		if err := v.addLedgerBalance(ctx, p, holdingsDate, priceDate, opts, result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// resolvePrice finds the position's per-share price in its own currency and
// the FX rate from that currency to home. Overrides win; otherwise the
// market facade; otherwise the cost-basis fallback when allowed.
func (v *Valuator) resolvePrice(ctx context.Context, pos *positions.Position, home domain.Currency, date string, opts ValueOptions, result *Valuation) (price, fxHome decimal.Decimal, ok bool) {
	if o, found := opts.Overrides[pos.Ticker]; found {
		rate := o.ExchangeRate
		if !rate.IsPositive() {
			rate = decimal.NewFromInt(1)
		}
		return o.Price, rate, true
	}

	quote, err := v.market.GetPrice(ctx, pos.Ticker, pos.Market, date)
	if err == nil {
		// Use the FX rate of the day the price belongs to, so weekend
		// valuations don't pair Friday's close with a stale rate request.
		rate, _, rateErr := v.market.GetRate(ctx, pos.Currency, home, quote.ActualDate)
		if rateErr == nil {
			return quote.Price, rate, true
		}
		err = rateErr
	}

	if opts.FallbackToCost {
		v.log.Debug().
			Str("ticker", pos.Ticker).
			Str("date", date).
			Err(err).
			Msg("Valuing position at cost; market data unavailable")
		if pos.TotalShares.IsPositive() {
			price := pos.CostSource.Div(pos.TotalShares)
			fx := decimal.NewFromInt(1)
			if !pos.CostSource.IsZero() {
				fx = pos.CostHome.Div(pos.CostSource)
			}
			return price, fx, true
		}
	}

	result.Missing = appendMissing(result.Missing, MissingPrice{
		Ticker: pos.Ticker, Date: date, PriceType: opts.PriceType,
	})
	return decimal.Zero, decimal.Zero, false
}

// toCurrency converts amount from one currency to another at date.
func (v *Valuator) toCurrency(ctx context.Context, amount decimal.Decimal, from, to domain.Currency, date string) (decimal.Decimal, bool) {
	if from == to || amount.IsZero() {
		return amount, true
	}
	rate, _, err := v.market.GetRate(ctx, from, to, date)
	if err != nil {
		return decimal.Zero, false
	}
	return amount.Mul(rate), true
}

// Convert is the exported form of toCurrency for collaborating modules.
func (v *Valuator) Convert(ctx context.Context, amount decimal.Decimal, from, to domain.Currency, date string) (decimal.Decimal, bool) {
	return v.toCurrency(ctx, amount, from, to, date)
}

// addLedgerBalance adds the bound ledger's cash balance to both totals.
// The balance is never floored: a margin ledger subtracts from the value.
func (v *Valuator) addLedgerBalance(ctx context.Context, p *Portfolio, balanceDate, priceDate string, opts ValueOptions, result *Valuation) error {
	l, err := v.ledgerRepo.GetLedger(p.BoundCurrencyLedgerID)
	if err != nil {
		return err
	}
	txs, err := v.ledgerRepo.ListCurrencyTxsUntil(l.ID, balanceDate)
	if err != nil {
		return err
	}
	proj := ledger.Project(txs)

	balanceHome, ok := v.ledgerToHome(ctx, proj, l, priceDate)
	if !ok {
		if !opts.FallbackToCost {
			result.Missing = appendMissing(result.Missing, MissingPrice{
				Ticker: string(l.CurrencyCode), Date: priceDate, PriceType: opts.PriceType,
			})
			return nil
		}
		balanceHome = proj.Balance // last resort: treat the rate as 1
	}
	result.ValueHome = result.ValueHome.Add(balanceHome)

	balanceSource, ok := v.toCurrency(ctx, proj.Balance, l.CurrencyCode, p.BaseCurrency, priceDate)
	if ok {
		result.ValueSource = result.ValueSource.Add(balanceSource)
	} else {
		result.ValueSource = result.ValueSource.Add(proj.Balance)
	}

	return nil
}

// ledgerToHome converts a ledger balance into home currency: rate 1 for a
// home ledger, the market rate when available, and the weighted average
// rate of the surviving LIFO layers as a cost-based fallback.
func (v *Valuator) ledgerToHome(ctx context.Context, proj ledger.Projection, l *ledger.CurrencyLedger, date string) (decimal.Decimal, bool) {
	if l.IsHomeCurrency() {
		return proj.Balance, true
	}

	rate, _, err := v.market.GetRate(ctx, l.CurrencyCode, l.HomeCurrency, date)
	if err == nil && rate.IsPositive() {
		return proj.Balance.Mul(rate), true
	}

	var remaining, homeSum decimal.Decimal
	for _, layer := range proj.Layers {
		remaining = remaining.Add(layer.Remaining)
		homeSum = homeSum.Add(layer.Remaining.Mul(layer.ExchangeRate))
	}
	if remaining.IsPositive() {
		return proj.Balance.Mul(homeSum.Div(remaining)), true
	}

	return decimal.Zero, false
}

func appendMissing(list []MissingPrice, m MissingPrice) []MissingPrice {
	for _, existing := range list {
		if existing == m {
			return list
		}
	}
	return append(list, m)
}
