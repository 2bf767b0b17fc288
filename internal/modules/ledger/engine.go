package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/weihanlu/investrack/internal/domain"
)

// Projection is the folded state of a ledger's transaction log: current
// balance, the surviving LIFO cost layers (last element is the top of the
// stack), and the realized home-currency P&L accumulated by outflows.
// Projections are recomputed from the log on every read; there is no
// persisted cursor, which makes balance-at-past-date queries trivial.
type Projection struct {
	Balance         decimal.Decimal
	Layers          []Layer
	RealizedPnLHome decimal.Decimal
}

// Project folds a ledger's non-deleted transactions, already sorted by
// (date, createdAt), into a Projection.
//
// ExchangeBuy and InitialBalance push a layer at rate homeAmount/foreign.
// ExchangeSell and Spend drain layers newest-first; each drain realizes
// (txRate - layerRate) * consumed in home currency. Interest, Deposit and
// the other plain credits move the balance without touching the stack, so
// realized P&L over a complete buy/sell cycle is unaffected by them.
func Project(txs []CurrencyTransaction) Projection {
	p := Projection{
		Balance:         decimal.Zero,
		RealizedPnLHome: decimal.Zero,
	}

	for i := range txs {
		tx := &txs[i]
		p.Balance = p.Balance.Add(tx.SignedAmount())

		switch {
		case tx.Type.EstablishesLayer():
			if tx.HomeAmount == nil || !tx.ForeignAmount.IsPositive() {
				continue
			}
			p.Layers = append(p.Layers, Layer{
				Remaining:    tx.ForeignAmount,
				ExchangeRate: tx.HomeAmount.Div(tx.ForeignAmount),
				OriginDate:   tx.Date,
			})

		case tx.Type.ConsumesLayers():
			txRate := tx.Rate()
			need := tx.ForeignAmount
			for need.IsPositive() && len(p.Layers) > 0 {
				top := &p.Layers[len(p.Layers)-1]
				consumed := decimal.Min(need, top.Remaining)
				if txRate.IsPositive() {
					p.RealizedPnLHome = p.RealizedPnLHome.Add(
						txRate.Sub(top.ExchangeRate).Mul(consumed))
				}
				top.Remaining = top.Remaining.Sub(consumed)
				need = need.Sub(consumed)
				if !top.Remaining.IsPositive() {
					p.Layers = p.Layers[:len(p.Layers)-1]
				}
			}
		}
	}

	return p
}

// consumeLayers simulates draining amount from the stack without mutating
// it, returning the total consumed and the home-currency sum of the
// consumed portions.
func consumeLayers(layers []Layer, amount decimal.Decimal) (consumed, homeSum decimal.Decimal) {
	need := amount
	for i := len(layers) - 1; i >= 0 && need.IsPositive(); i-- {
		take := decimal.Min(need, layers[i].Remaining)
		consumed = consumed.Add(take)
		homeSum = homeSum.Add(take.Mul(layers[i].ExchangeRate))
		need = need.Sub(take)
	}
	return consumed, homeSum
}

// EffectiveRate answers what exchange rate a prospective purchase of amount
// on the projection's as-of date would carry. marketRate may be nil when no
// market quote is available.
//
// Full LIFO coverage yields the weighted average of the consumed layer
// rates. A positive but insufficient balance blends the LIFO portion with
// the market rate for the shortfall. With no LIFO depth the market rate is
// used alone; with neither, the rate is unavailable.
func EffectiveRate(p Projection, amount decimal.Decimal, marketRate *decimal.Decimal) (*RatePreview, error) {
	if !amount.IsPositive() {
		return nil, domain.BusinessRulef("amount must be greater than zero")
	}

	hasLayers := len(p.Layers) > 0

	if p.Balance.GreaterThanOrEqual(amount) && hasLayers {
		consumed, homeSum := consumeLayers(p.Layers, amount)
		if consumed.IsPositive() {
			// Non-layer credits (Interest, OtherIncome) can pad the balance
			// past the layer depth; the LIFO portion is what the stack
			// actually covers, not the requested amount.
			rate := homeSum.Div(consumed)
			return &RatePreview{
				Rate:        rate,
				Source:      domain.RateSourceLIFO,
				LifoRate:    &rate,
				LifoPortion: &consumed,
			}, nil
		}
	}

	if p.Balance.IsPositive() && p.Balance.LessThan(amount) && marketRate != nil && hasLayers {
		lifoConsumed, homeSum := consumeLayers(p.Layers, p.Balance)
		if lifoConsumed.IsPositive() {
			marketPortion := amount.Sub(lifoConsumed)
			lifoRate := homeSum.Div(lifoConsumed)
			rate := homeSum.Add(marketPortion.Mul(*marketRate)).Div(amount)
			return &RatePreview{
				Rate:          rate,
				Source:        domain.RateSourceBlended,
				LifoRate:      &lifoRate,
				MarketRate:    marketRate,
				LifoPortion:   &lifoConsumed,
				MarketPortion: &marketPortion,
			}, nil
		}
	}

	if marketRate != nil {
		return &RatePreview{
			Rate:       *marketRate,
			Source:     domain.RateSourceMarket,
			MarketRate: marketRate,
		}, nil
	}

	return nil, domain.RateUnavailablef(
		"no cost layers and no market rate available for amount %s", amount)
}
