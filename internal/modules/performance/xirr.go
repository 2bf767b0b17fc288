package performance

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// CashFlow is one dated flow in an XIRR series. Outflows are negative.
type CashFlow struct {
	Amount decimal.Decimal
	Date   time.Time
}

const (
	xirrTolerance  = 1e-7
	xirrMaxIters   = 100
	xirrInitial    = 0.1
	daysPerYear    = 365.0
	bisectionLow   = -0.999999
	bisectionHigh  = 10.0
)

// XIRR solves for the annualized internal rate of return of an irregular
// cash-flow series: the r where sum(cf_i / (1+r)^(years_i)) = 0.
// Newton-Raphson from 0.1, falling back to bisection when Newton diverges.
// Returns nil unless the series has at least one inflow and one outflow.
func XIRR(flows []CashFlow) *decimal.Decimal {
	if len(flows) < 2 || !hasBothSigns(flows) {
		return nil
	}

	amounts := make([]float64, len(flows))
	years := make([]float64, len(flows))
	t0 := flows[0].Date
	for i, f := range flows {
		amounts[i] = f.Amount.InexactFloat64()
		years[i] = f.Date.Sub(t0).Hours() / 24 / daysPerYear
	}

	if r, ok := newton(amounts, years); ok {
		result := decimal.NewFromFloat(r)
		return &result
	}
	if r, ok := bisect(amounts, years); ok {
		result := decimal.NewFromFloat(r)
		return &result
	}
	return nil
}

func hasBothSigns(flows []CashFlow) bool {
	var pos, neg bool
	for _, f := range flows {
		if f.Amount.IsPositive() {
			pos = true
		}
		if f.Amount.IsNegative() {
			neg = true
		}
	}
	return pos && neg
}

func npv(rate float64, amounts, years []float64) float64 {
	var sum float64
	for i := range amounts {
		sum += amounts[i] / math.Pow(1+rate, years[i])
	}
	return sum
}

func npvDerivative(rate float64, amounts, years []float64) float64 {
	var sum float64
	for i := range amounts {
		sum -= years[i] * amounts[i] / math.Pow(1+rate, years[i]+1)
	}
	return sum
}

func newton(amounts, years []float64) (float64, bool) {
	rate := xirrInitial
	for i := 0; i < xirrMaxIters; i++ {
		value := npv(rate, amounts, years)
		if math.Abs(value) < xirrTolerance {
			return rate, true
		}
		derivative := npvDerivative(rate, amounts, years)
		if derivative == 0 || math.IsNaN(derivative) || math.IsInf(derivative, 0) {
			return 0, false
		}
		next := rate - value/derivative
		if next <= -1 || math.IsNaN(next) || math.IsInf(next, 0) {
			return 0, false
		}
		if math.Abs(next-rate) < xirrTolerance {
			return next, true
		}
		rate = next
	}
	return 0, false
}

func bisect(amounts, years []float64) (float64, bool) {
	lo, hi := bisectionLow, bisectionHigh
	fLo := npv(lo, amounts, years)
	fHi := npv(hi, amounts, years)
	if fLo*fHi > 0 {
		return 0, false
	}
	for i := 0; i < xirrMaxIters; i++ {
		mid := (lo + hi) / 2
		fMid := npv(mid, amounts, years)
		if math.Abs(fMid) < xirrTolerance || (hi-lo)/2 < xirrTolerance {
			return mid, true
		}
		if fLo*fMid < 0 {
			hi = mid
		} else {
			lo = mid
			fLo = fMid
		}
	}
	return (lo + hi) / 2, true
}
