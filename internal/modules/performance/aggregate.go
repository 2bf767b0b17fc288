package performance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/weihanlu/investrack/internal/domain"
	"github.com/weihanlu/investrack/internal/modules/portfolio"
)

// aggregateConcurrency bounds the per-portfolio fan-out of an aggregate
// report so a user with many portfolios cannot saturate the database pool.
const aggregateConcurrency = 4

// AggregatePerformance combines every portfolio of a user for one year.
type AggregatePerformance struct {
	Year           int                      `json:"year"`
	PortfolioCount int                      `json:"portfolioCount"`
	Home           CurrencyPerformance      `json:"home"`
	Source         CurrencyPerformance      `json:"source"`
	Portfolios     []YearPerformance        `json:"portfolios"`
	MissingPrices  []portfolio.MissingPrice `json:"missingPrices,omitempty"`
	Partial        bool                     `json:"partial"`
}

// AggregateYear computes every portfolio's year report concurrently and
// combines them. Price overrides are shared across portfolios by ticker.
func (s *Service) AggregateYear(ctx context.Context, userID string, year int, startPrices, endPrices map[string]portfolio.PriceOverride) (*AggregatePerformance, error) {
	owned, err := s.portfolios.ListByUser(userID)
	if err != nil {
		return nil, err
	}

	reports := make([]*YearPerformance, len(owned))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(aggregateConcurrency)
	for i := range owned {
		i := i
		g.Go(func() error {
			report, err := s.portfolioYear(gctx, &owned[i], year, startPrices, endPrices)
			if err != nil {
				return err
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	agg := &AggregatePerformance{Year: year, PortfolioCount: len(owned)}
	for _, r := range reports {
		agg.Portfolios = append(agg.Portfolios, *r)
		if r.Partial {
			agg.Partial = true
			agg.MissingPrices = append(agg.MissingPrices, r.MissingPrices...)
		}
	}
	if agg.Partial {
		return agg, nil
	}

	yearStart := domain.YearStart(year)
	yearEnd := domain.YearEnd(year, time.Now())

	agg.Home = combine(reports, yearStart, yearEnd, true)
	agg.Source = combine(reports, yearStart, yearEnd, false)

	return agg, nil
}

// combine sums the per-portfolio numbers for one currency side and derives
// the aggregate rates.
func combine(reports []*YearPerformance, yearStart, yearEnd time.Time, home bool) CurrencyPerformance {
	side := func(r *YearPerformance) *CurrencyPerformance {
		if home {
			return &r.Home
		}
		return &r.Source
	}

	var agg CurrencyPerformance
	var series []CashFlow
	var flows []externalFlow
	var twrValues, twrWeights []float64

	for _, r := range reports {
		c := side(r)
		agg.StartValue = agg.StartValue.Add(c.StartValue)
		agg.EndValue = agg.EndValue.Add(c.EndValue)
		agg.NetContributions = agg.NetContributions.Add(c.NetContributions)

		// Each portfolio contributes a synthetic three-flow series: its
		// start value, its net contribution at the earliest in-year
		// transaction date, and its end value.
		if c.StartValue.IsPositive() {
			series = append(series, CashFlow{Amount: c.StartValue.Neg(), Date: yearStart})
		}
		if !c.NetContributions.IsZero() {
			date := contributionDate(r.EarliestTxDate, yearStart)
			series = append(series, CashFlow{Amount: c.NetContributions.Neg(), Date: date})
			flows = append(flows, externalFlow{date: date, home: c.NetContributions, source: c.NetContributions})
		}
		if c.EndValue.IsPositive() {
			series = append(series, CashFlow{Amount: c.EndValue, Date: yearEnd})
		}

		if c.TWRPct != nil {
			weight := c.StartValue
			if !weight.IsPositive() {
				weight = c.EndValue
			}
			if weight.IsPositive() {
				twrValues = append(twrValues, c.TWRPct.InexactFloat64())
				twrWeights = append(twrWeights, weight.InexactFloat64())
			}
		}
	}

	agg.XIRR = XIRR(series)
	agg.SimpleReturnPct = simpleReturn(agg.StartValue, agg.EndValue, agg.NetContributions)
	agg.ModifiedDietzPct = modifiedDietz(agg.StartValue, agg.EndValue, yearStart, yearEnd, flows,
		func(h, _ decimal.Decimal) decimal.Decimal { return h })

	if len(twrValues) > 0 {
		weighted := decimal.NewFromFloat(stat.Mean(twrValues, twrWeights)).Round(domain.ScalePercent)
		agg.TWRPct = &weighted
	}

	return agg
}

// contributionDate places a portfolio's net contribution at its earliest
// in-year transaction date, or the day after year start when it traded
// earlier or not at all.
func contributionDate(earliestTxDate string, yearStart time.Time) time.Time {
	fallback := yearStart.AddDate(0, 0, 1)
	if earliestTxDate == "" {
		return fallback
	}
	date, err := domain.ParseDate(earliestTxDate)
	if err != nil || date.Before(yearStart) {
		return fallback
	}
	return date
}

// AvailableYears is the union of every portfolio's earliest transaction
// year through the current year, newest first.
func (s *Service) AvailableYears(userID string) ([]int, error) {
	owned, err := s.portfolios.ListByUser(userID)
	if err != nil {
		return nil, err
	}

	currentYear := time.Now().In(domain.DisplayLocation).Year()
	earliestYear := currentYear

	for i := range owned {
		_, earliest, err := s.yearTrades(owned[i].ID, "", "")
		if err != nil {
			return nil, err
		}
		if earliest == "" {
			continue
		}
		if date, err := domain.ParseDate(earliest); err == nil && date.Year() < earliestYear {
			earliestYear = date.Year()
		}
	}

	years := make([]int, 0, currentYear-earliestYear+1)
	for y := currentYear; y >= earliestYear; y-- {
		years = append(years, y)
	}
	return years, nil
}
