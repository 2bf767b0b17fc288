package performance

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/weihanlu/investrack/internal/domain"
	"github.com/weihanlu/investrack/internal/modules/ledger"
	"github.com/weihanlu/investrack/internal/modules/portfolio"
	"github.com/weihanlu/investrack/internal/modules/snapshots"
	"github.com/weihanlu/investrack/internal/modules/transactions"
)

// twrEpsilon guards sub-period return factors against nonpositive
// day-start values.
var twrEpsilon = decimal.New(1, -4)

// CurrencyPerformance is one year's numbers in a single currency.
type CurrencyPerformance struct {
	StartValue       decimal.Decimal  `json:"startValue"`
	EndValue         decimal.Decimal  `json:"endValue"`
	NetContributions decimal.Decimal  `json:"netContributions"`
	XIRR             *decimal.Decimal `json:"xirr,omitempty"`
	SimpleReturnPct  *decimal.Decimal `json:"simpleReturnPct,omitempty"`
	ModifiedDietzPct *decimal.Decimal `json:"modifiedDietzPct,omitempty"`
	TWRPct           *decimal.Decimal `json:"twrPct,omitempty"`
}

// YearPerformance is one portfolio's performance report for one year.
// When MissingPrices is non-empty the report is partial: values and rates
// are withheld so the UI can prompt for manual prices.
type YearPerformance struct {
	PortfolioID    string                   `json:"portfolioId"`
	Year           int                      `json:"year"`
	Home           CurrencyPerformance      `json:"home"`
	Source         CurrencyPerformance      `json:"source"`
	EarliestTxDate string                   `json:"earliestTxDate,omitempty"`
	MissingPrices  []portfolio.MissingPrice `json:"missingPrices,omitempty"`
	Partial        bool                     `json:"partial"`
}

// externalFlow is one Deposit/Withdraw/InitialBalance inside the report
// year, signed and converted to both currencies.
type externalFlow struct {
	date   time.Time
	home   decimal.Decimal
	source decimal.Decimal
}

// Service computes per-year and aggregate performance reports from the
// snapshot store and the transaction logs.
type Service struct {
	portfolios   *portfolio.Repository
	portfolioSvc *portfolio.Service
	txRepo       *transactions.Repository
	ledgerRepo   *ledger.Repository
	valuator     *portfolio.Valuator
	snapshots    *snapshots.Service
	log          zerolog.Logger
}

// NewService creates a performance service.
func NewService(
	portfolios *portfolio.Repository,
	portfolioSvc *portfolio.Service,
	txRepo *transactions.Repository,
	ledgerRepo *ledger.Repository,
	valuator *portfolio.Valuator,
	snaps *snapshots.Service,
	log zerolog.Logger,
) *Service {
	return &Service{
		portfolios:   portfolios,
		portfolioSvc: portfolioSvc,
		txRepo:       txRepo,
		ledgerRepo:   ledgerRepo,
		valuator:     valuator,
		snapshots:    snaps,
		log:          log.With().Str("service", "performance").Logger(),
	}
}

// PortfolioYear computes one portfolio's report for year. startPrices and
// endPrices are user-supplied overrides keyed by ticker; either may be nil.
func (s *Service) PortfolioYear(ctx context.Context, userID, portfolioID string, year int, startPrices, endPrices map[string]portfolio.PriceOverride) (*YearPerformance, error) {
	p, err := s.portfolioSvc.Get(userID, portfolioID)
	if err != nil {
		return nil, err
	}
	return s.portfolioYear(ctx, p, year, startPrices, endPrices)
}

func (s *Service) portfolioYear(ctx context.Context, p *portfolio.Portfolio, year int, startPrices, endPrices map[string]portfolio.PriceOverride) (*YearPerformance, error) {
	yearStart := domain.YearStart(year)
	yearEnd := domain.YearEnd(year, time.Now())
	startDate := yearStart.Format(domain.DateFormat)
	endDate := yearEnd.Format(domain.DateFormat)

	report := &YearPerformance{PortfolioID: p.ID, Year: year}

	// Performance reads snapshots verbatim; make sure the year is covered
	// before computing TWR factors.
	if err := s.snapshots.Backfill(ctx, p, startDate, endDate); err != nil {
		return nil, fmt.Errorf("failed to backfill snapshots: %w", err)
	}

	start, err := s.valuator.ValueAt(ctx, p, startDate, portfolio.ValueOptions{
		Overrides: startPrices,
		PriceType: domain.PriceTypeYearStart,
	})
	if err != nil {
		return nil, err
	}
	end, err := s.valuator.ValueAt(ctx, p, endDate, portfolio.ValueOptions{
		Overrides: endPrices,
		PriceType: domain.PriceTypeYearEnd,
	})
	if err != nil {
		return nil, err
	}

	report.MissingPrices = append(report.MissingPrices, start.Missing...)
	report.MissingPrices = append(report.MissingPrices, end.Missing...)
	if len(report.MissingPrices) > 0 {
		report.Partial = true
		return report, nil
	}

	flows, err := s.externalFlows(ctx, p, startDate, endDate)
	if err != nil {
		return nil, err
	}
	trades, earliest, err := s.yearTrades(p.ID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	report.EarliestTxDate = earliest

	snaps, err := s.snapshots.ListRange(p.ID, startDate, endDate)
	if err != nil {
		return nil, err
	}

	report.Home = computeCurrency(start.ValueHome, end.ValueHome, yearStart, yearEnd, flows, trades, snaps, true)
	report.Source = computeCurrency(start.ValueSource, end.ValueSource, yearStart, yearEnd, flows, trades, snaps, false)

	return report, nil
}

// tradeFlow is one Buy or Sell as an XIRR cash flow in both currencies.
type tradeFlow struct {
	date   time.Time
	home   decimal.Decimal
	source decimal.Decimal
}

// computeCurrency derives XIRR, simple return, Modified Dietz, and TWR for
// one currency side.
func computeCurrency(start, end decimal.Decimal, yearStart, yearEnd time.Time, flows []externalFlow, trades []tradeFlow, snaps []snapshots.Snapshot, home bool) CurrencyPerformance {
	pick := func(h, s decimal.Decimal) decimal.Decimal {
		if home {
			return h
		}
		return s
	}

	perf := CurrencyPerformance{StartValue: start, EndValue: end}

	for _, f := range flows {
		perf.NetContributions = perf.NetContributions.Add(pick(f.home, f.source))
	}

	var series []CashFlow
	if start.IsPositive() {
		series = append(series, CashFlow{Amount: start.Neg(), Date: yearStart})
	}
	for _, t := range trades {
		series = append(series, CashFlow{Amount: pick(t.home, t.source), Date: t.date})
	}
	if end.IsPositive() {
		series = append(series, CashFlow{Amount: end, Date: yearEnd})
	}
	perf.XIRR = XIRR(series)

	perf.SimpleReturnPct = simpleReturn(start, end, perf.NetContributions)
	perf.ModifiedDietzPct = modifiedDietz(start, end, yearStart, yearEnd, flows, pick)
	perf.TWRPct = timeWeightedReturn(snaps, home)

	return perf
}

// simpleReturn is (E-S-C)/S when the year began with value, otherwise the
// gain is measured against the contributions themselves.
func simpleReturn(start, end, contributions decimal.Decimal) *decimal.Decimal {
	gain := end.Sub(start).Sub(contributions)
	var base decimal.Decimal
	if start.IsPositive() {
		base = start
	} else if !contributions.IsZero() {
		base = contributions
	} else {
		return nil
	}
	pct := gain.Div(base).Mul(decimal.NewFromInt(100)).Round(domain.ScalePercent)
	return &pct
}

// modifiedDietz weights each external flow by the fraction of the period it
// was invested: (E - S - C) / (S + sum C_i * (T - t_i) / T).
func modifiedDietz(start, end decimal.Decimal, yearStart, yearEnd time.Time, flows []externalFlow, pick func(h, s decimal.Decimal) decimal.Decimal) *decimal.Decimal {
	periodDays := yearEnd.Sub(yearStart).Hours() / 24
	if periodDays <= 0 {
		return nil
	}

	var contributions, weighted decimal.Decimal
	for _, f := range flows {
		amount := pick(f.home, f.source)
		contributions = contributions.Add(amount)
		elapsed := f.date.Sub(yearStart).Hours() / 24
		weight := decimal.NewFromFloat((periodDays - elapsed) / periodDays)
		weighted = weighted.Add(amount.Mul(weight))
	}

	denominator := start.Add(weighted)
	if denominator.IsZero() {
		return nil
	}
	pct := end.Sub(start).Sub(contributions).
		Div(denominator).
		Mul(decimal.NewFromInt(100)).
		Round(domain.ScalePercent)
	return &pct
}

// timeWeightedReturn multiplies the chain-normalized sub-period factors.
// Normalized same-day snapshots carry before == after == dayEnd, so each
// day contributes exactly one non-unit factor.
func timeWeightedReturn(snaps []snapshots.Snapshot, home bool) *decimal.Decimal {
	if len(snaps) == 0 {
		return nil
	}

	product := decimal.NewFromInt(1)
	for i := range snaps {
		before, after := snaps[i].ValueBeforeSource, snaps[i].ValueAfterSource
		if home {
			before, after = snaps[i].ValueBeforeHome, snaps[i].ValueAfterHome
		}
		if before.LessThanOrEqual(decimal.Zero) {
			before = twrEpsilon
		}
		product = product.Mul(after.Div(before))
	}

	pct := product.Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100)).Round(domain.ScalePercent)
	return &pct
}

// externalFlows lists the year's Deposit/Withdraw/InitialBalance events on
// the bound ledger, signed and converted.
func (s *Service) externalFlows(ctx context.Context, p *portfolio.Portfolio, startDate, endDate string) ([]externalFlow, error) {
	if p.BoundCurrencyLedgerID == "" {
		return nil, nil
	}
	l, err := s.ledgerRepo.GetLedger(p.BoundCurrencyLedgerID)
	if err != nil {
		return nil, err
	}
	txs, err := s.ledgerRepo.ListCurrencyTxsUntil(l.ID, endDate)
	if err != nil {
		return nil, err
	}

	var flows []externalFlow
	for i := range txs {
		tx := &txs[i]
		if tx.Date < startDate || !tx.Type.IsExternalCashFlow() {
			continue
		}
		date, err := domain.ParseDate(tx.Date)
		if err != nil {
			continue
		}

		signed := tx.SignedAmount()
		home := signed
		if rate := tx.Rate(); rate.IsPositive() {
			home = signed.Mul(rate)
		} else if converted, ok := s.valuator.Convert(ctx, signed, l.CurrencyCode, l.HomeCurrency, tx.Date); ok {
			home = converted
		}
		source := signed
		if converted, ok := s.valuator.Convert(ctx, signed, l.CurrencyCode, p.BaseCurrency, tx.Date); ok {
			source = converted
		}

		flows = append(flows, externalFlow{date: date, home: home, source: source})
	}
	return flows, nil
}

// yearTrades lists the year's Buys and Sells as XIRR flows, and the
// portfolio's earliest transaction date overall.
func (s *Service) yearTrades(portfolioID, startDate, endDate string) ([]tradeFlow, string, error) {
	txs, err := s.txRepo.ListByPortfolio(portfolioID)
	if err != nil {
		return nil, "", err
	}

	var earliest string
	var trades []tradeFlow
	for i := range txs {
		tx := &txs[i]
		if tx.Type != domain.TransactionBuy && tx.Type != domain.TransactionSell {
			continue
		}
		if earliest == "" || tx.Date < earliest {
			earliest = tx.Date
		}
		if tx.Date < startDate || tx.Date > endDate {
			continue
		}
		date, err := domain.ParseDate(tx.Date)
		if err != nil {
			continue
		}

		source := tx.NetAmount()
		home := tx.NetAmountHome()
		if tx.Type == domain.TransactionBuy {
			source = source.Neg()
			home = home.Neg()
		}
		trades = append(trades, tradeFlow{date: date, home: home, source: source})
	}
	return trades, earliest, nil
}
