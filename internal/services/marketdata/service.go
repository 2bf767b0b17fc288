package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/weihanlu/investrack/internal/clients/exchangerate"
	"github.com/weihanlu/investrack/internal/clients/stooq"
	"github.com/weihanlu/investrack/internal/clients/twse"
	"github.com/weihanlu/investrack/internal/domain"
)

// ErrUnavailable means the datum cannot be produced right now: either a
// persisted negative marker or a transient source failure. Callers decide
// whether that is fatal; valuation paths report it as a missing price.
var ErrUnavailable = errors.New("market data is unavailable")

// maxLookbackDays bounds the walk from a requested date back to the
// nearest trading day. Ten days covers any holiday cluster.
const maxLookbackDays = 10

// TWSESource is the Taiwan exchange client contract.
type TWSESource interface {
	GetMonthlyCloses(ctx context.Context, stockNo, date string) (map[string]decimal.Decimal, error)
}

// StooqSource is the non-Taiwan price client contract.
type StooqSource interface {
	GetDailyCloses(ctx context.Context, symbol string, market domain.StockMarket, from, to string) ([]stooq.DailyClose, error)
}

// FXSource is the FX client contract.
type FXSource interface {
	GetRate(ctx context.Context, from, to, date string) (decimal.Decimal, string, error)
}

// Service is the facade over the price and FX sources. Every lookup
// writes through the persistent cache; definitive "no data" answers are
// stored as negative markers so they are never refetched, while transient
// failures (timeouts, transport errors) are not marked and will be retried.
type Service struct {
	cache *Repository
	tw    TWSESource
	stooq StooqSource
	fx    FXSource
	log   zerolog.Logger
}

// NewService creates the market-data facade.
func NewService(cache *Repository, tw TWSESource, st StooqSource, fx FXSource, log zerolog.Logger) *Service {
	return &Service{
		cache: cache,
		tw:    tw,
		stooq: st,
		fx:    fx,
		log:   log.With().Str("service", "marketdata").Logger(),
	}
}

// Price is a resolved price lookup. ActualDate is the trading day the
// price belongs to, at most maxLookbackDays before the requested date.
type Price struct {
	Price      decimal.Decimal
	Currency   domain.Currency
	ActualDate string
}

// GetPrice resolves the closing price of (symbol, market) on the nearest
// trading day at or before date.
func (s *Service) GetPrice(ctx context.Context, symbol string, market domain.StockMarket, date string) (*Price, error) {
	cached, err := s.cache.GetPrice(symbol, market, date)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		if cached.IsNotAvailable {
			return nil, fmt.Errorf("%w: no price for %s/%s at %s", ErrUnavailable, symbol, market, date)
		}
		return &Price{Price: cached.Price, Currency: cached.Currency, ActualDate: cached.ActualDate}, nil
	}

	var result *Price
	if market == domain.MarketTW {
		result, err = s.fetchTWPrice(ctx, symbol, date)
	} else {
		result, err = s.fetchStooqPrice(ctx, symbol, market, date)
	}
	if err != nil {
		return nil, err
	}

	entry := &PriceEntry{
		Symbol:     symbol,
		Market:     market,
		Date:       date,
		Price:      result.Price,
		Currency:   result.Currency,
		ActualDate: result.ActualDate,
	}
	if err := s.cache.PutPrice(entry); err != nil {
		return nil, err
	}
	return result, nil
}

// fetchTWPrice walks back from date through the monthly TWSE cache,
// fetching at most one exchange request per month touched.
func (s *Service) fetchTWPrice(ctx context.Context, symbol, date string) (*Price, error) {
	day, err := domain.ParseDate(date)
	if err != nil {
		return nil, domain.BusinessRulef("invalid date %q", date)
	}

	marketKey := "TW:" + symbol
	for i := 0; i <= maxLookbackDays; i++ {
		candidate := day.AddDate(0, 0, -i)
		candidateDate := candidate.Format(domain.DateFormat)
		yearMonth := candidate.Format("2006-01")

		closes, notAvailable, found, err := s.cache.GetMonthly(marketKey, yearMonth)
		if err != nil {
			return nil, err
		}
		if !found {
			closes, err = s.tw.GetMonthlyCloses(ctx, symbol, candidateDate)
			switch {
			case errors.Is(err, twse.ErrNoData):
				// Definitive no-data for the month: persist a marker.
				if err := s.cache.PutMonthly(marketKey, yearMonth, nil); err != nil {
					return nil, err
				}
				notAvailable = true
			case errors.Is(err, domain.ErrRateLimitExceeded):
				return nil, err
			case err != nil:
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			default:
				if err := s.cache.PutMonthly(marketKey, yearMonth, closes); err != nil {
					return nil, err
				}
			}
		}

		if notAvailable {
			continue
		}
		if price, ok := closes[candidateDate]; ok {
			return &Price{Price: price, Currency: domain.CurrencyTWD, ActualDate: candidateDate}, nil
		}
	}

	s.markPriceUnavailable(symbol, domain.MarketTW, date)
	return nil, fmt.Errorf("%w: no TW price for %s near %s", ErrUnavailable, symbol, date)
}

func (s *Service) fetchStooqPrice(ctx context.Context, symbol string, market domain.StockMarket, date string) (*Price, error) {
	day, err := domain.ParseDate(date)
	if err != nil {
		return nil, domain.BusinessRulef("invalid date %q", date)
	}
	from := day.AddDate(0, 0, -maxLookbackDays).Format(domain.DateFormat)

	closes, err := s.stooq.GetDailyCloses(ctx, symbol, market, from, date)
	if errors.Is(err, stooq.ErrNoData) {
		s.markPriceUnavailable(symbol, market, date)
		return nil, fmt.Errorf("%w: no price for %s/%s near %s", ErrUnavailable, symbol, market, date)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Rows are oldest-first; the last one at or before date wins.
	var best *stooq.DailyClose
	for i := range closes {
		if closes[i].Date <= date {
			best = &closes[i]
		}
	}
	if best == nil {
		s.markPriceUnavailable(symbol, market, date)
		return nil, fmt.Errorf("%w: no price for %s/%s near %s", ErrUnavailable, symbol, market, date)
	}

	return &Price{Price: best.Close, Currency: currencyForMarket(market), ActualDate: best.Date}, nil
}

func (s *Service) markPriceUnavailable(symbol string, market domain.StockMarket, date string) {
	err := s.cache.PutPrice(&PriceEntry{
		Symbol:         symbol,
		Market:         market,
		Date:           date,
		IsNotAvailable: true,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to write negative price marker")
	}
}

// GetRate resolves the from→to FX rate for date, returning the actual
// banking date the rate belongs to. Satisfies the ledger module's
// MarketRateProvider contract.
func (s *Service) GetRate(ctx context.Context, from, to domain.Currency, date string) (decimal.Decimal, string, error) {
	if from == to {
		return decimal.NewFromInt(1), date, nil
	}

	cached, err := s.cache.GetRate(from, to, date)
	if err != nil {
		return decimal.Zero, "", err
	}
	if cached != nil {
		if cached.IsNotAvailable {
			return decimal.Zero, "", fmt.Errorf("%w: no rate %s→%s at %s", ErrUnavailable, from, to, date)
		}
		return cached.Rate, cached.ActualDate, nil
	}

	deadline, cancel := context.WithTimeout(ctx, 12*time.Second)
	defer cancel()

	rate, actualDate, err := s.fx.GetRate(deadline, string(from), string(to), date)
	if err != nil {
		if isDefinitiveNoData(err) {
			if putErr := s.cache.PutRate(&RateEntry{From: from, To: to, Date: date, IsNotAvailable: true}); putErr != nil {
				s.log.Warn().Err(putErr).Msg("Failed to write negative fx marker")
			}
		}
		return decimal.Zero, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	entry := &RateEntry{From: from, To: to, Date: date, Rate: rate, ActualDate: actualDate}
	if err := s.cache.PutRate(entry); err != nil {
		return decimal.Zero, "", err
	}
	return rate, actualDate, nil
}

// isDefinitiveNoData distinguishes "the source answered and has nothing"
// from transient failures. Only the former earns a negative marker.
func isDefinitiveNoData(err error) bool {
	return errors.Is(err, twse.ErrNoData) ||
		errors.Is(err, stooq.ErrNoData) ||
		errors.Is(err, exchangerate.ErrNoData)
}

func currencyForMarket(market domain.StockMarket) domain.Currency {
	switch market {
	case domain.MarketTW:
		return domain.CurrencyTWD
	case domain.MarketUS:
		return domain.CurrencyUSD
	case domain.MarketUK:
		return domain.CurrencyGBP
	case domain.MarketEU:
		return domain.CurrencyEUR
	default:
		return ""
	}
}
