package portfolio

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/weihanlu/investrack/internal/database"
	"github.com/weihanlu/investrack/internal/domain"
	"github.com/weihanlu/investrack/internal/modules/ledger"
	"github.com/weihanlu/investrack/internal/modules/transactions"
)

// StockSnapshotRecorder persists portfolio value snapshots for stock
// transaction events. Implemented by the snapshots module; defined here to
// avoid a circular dependency.
type StockSnapshotRecorder interface {
	RecordStockEvent(ctx context.Context, dbTx *sql.Tx, p *Portfolio, tx *transactions.StockTransaction, cash *LinkedCashChange) error
	RemoveStockEvent(ctx context.Context, dbTx *sql.Tx, p *Portfolio, tx *transactions.StockTransaction, cash *LinkedCashChange) error
}

// LinkedCashChange describes the ledger cash events written or soft-deleted
// in the same database transaction as a stock event. The recorder needs
// them spelled out because they are invisible to committed-state reads
// until the transaction commits.
type LinkedCashChange struct {
	Ledger     *ledger.CurrencyLedger
	Inserted   []*ledger.CurrencyTransaction
	RemovedIDs []string
}

// SnapshotBackfiller rebuilds snapshots for a date range from committed
// state. Used after bulk imports, where per-row recording cannot see the
// other uncommitted rows of the same day.
type SnapshotBackfiller interface {
	Backfill(ctx context.Context, p *Portfolio, from, to string) error
}

// StockTradeInput is the client-facing shape of a stock transaction write.
// The exchange rate is never accepted from the client; it is derived from
// the bound ledger's LIFO layers or the market.
type StockTradeInput struct {
	Date          string                         `json:"date"`
	Ticker        string                         `json:"ticker"`
	Market        domain.StockMarket             `json:"market"`
	Currency      domain.Currency                `json:"currency"`
	Type          domain.TransactionType         `json:"type"`
	Shares        decimal.Decimal                `json:"shares"`
	PricePerShare decimal.Decimal                `json:"price"`
	Fees          decimal.Decimal                `json:"fees"`
	BalanceAction domain.BalanceAction           `json:"balanceAction"`
	TopUpType     domain.CurrencyTransactionType `json:"topUpTransactionType"`
}

// TradingService creates, updates, and deletes stock transactions together
// with their linked ledger cash events, keeping both sides atomic.
type TradingService struct {
	db         *database.DB
	portfolios *Repository
	txRepo     *transactions.Repository
	ledgerRepo *ledger.Repository
	ledgerSvc  *ledger.Service
	rates      ledger.MarketRateProvider
	snapshot   StockSnapshotRecorder
	backfill   SnapshotBackfiller
	log        zerolog.Logger
}

// NewTradingService creates a trading service. rates may be nil in tests.
func NewTradingService(
	db *database.DB,
	portfolios *Repository,
	txRepo *transactions.Repository,
	ledgerRepo *ledger.Repository,
	ledgerSvc *ledger.Service,
	rates ledger.MarketRateProvider,
	log zerolog.Logger,
) *TradingService {
	return &TradingService{
		db:         db,
		portfolios: portfolios,
		txRepo:     txRepo,
		ledgerRepo: ledgerRepo,
		ledgerSvc:  ledgerSvc,
		rates:      rates,
		log:        log.With().Str("service", "trading").Logger(),
	}
}

// SetSnapshotRecorder wires the snapshot module in after construction.
func (s *TradingService) SetSnapshotRecorder(r StockSnapshotRecorder) {
	s.snapshot = r
}

// SetBackfiller wires the snapshot backfiller in after construction.
func (s *TradingService) SetBackfiller(b SnapshotBackfiller) {
	s.backfill = b
}

// Create inserts a stock transaction. A Buy whose currency matches the
// portfolio's bound ledger consumes from that ledger: the stock row, an
// optional top-up credit, and the Spend commit in one transaction.
func (s *TradingService) Create(ctx context.Context, userID, portfolioID string, in StockTradeInput) (*transactions.StockTransaction, error) {
	p, err := s.ownedPortfolio(userID, portfolioID)
	if err != nil {
		return nil, err
	}

	tx := &transactions.StockTransaction{
		PortfolioID:   p.ID,
		Date:          in.Date,
		Ticker:        in.Ticker,
		Market:        in.Market,
		Currency:      in.Currency,
		Type:          in.Type,
		Shares:        in.Shares,
		PricePerShare: in.PricePerShare,
		Fees:          in.Fees,
	}
	tx.Normalize()

	plan, err := s.planFunding(ctx, p, tx, in.BalanceAction, in.TopUpType, "")
	if err != nil {
		return nil, err
	}

	err = database.WithTransactionContext(ctx, s.db.Conn(), func(dbTx *sql.Tx) error {
		if err := s.txRepo.CreateTx(dbTx, tx); err != nil {
			return err
		}
		if err := s.createLinkedCashEvents(dbTx, plan, tx); err != nil {
			return err
		}
		if s.snapshot != nil {
			return s.snapshot.RecordStockEvent(ctx, dbTx, p, tx, plan.cashChange(nil))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Update mutates a stock transaction. The funding rules re-apply, and the
// linked Spend's amount, date, and rate are re-derived in the same
// transaction. If the date moved, both days' snapshots are rebuilt.
func (s *TradingService) Update(ctx context.Context, userID, txID string, in StockTradeInput) (*transactions.StockTransaction, error) {
	existing, err := s.txRepo.GetByID(txID)
	if err != nil {
		return nil, err
	}
	p, err := s.ownedPortfolio(userID, existing.PortfolioID)
	if err != nil {
		return nil, err
	}

	updated := *existing
	updated.Date = in.Date
	updated.Ticker = in.Ticker
	updated.Market = in.Market
	updated.Currency = in.Currency
	updated.Type = in.Type
	updated.Shares = in.Shares
	updated.PricePerShare = in.PricePerShare
	updated.Fees = in.Fees
	updated.FundSource = domain.FundSourceNone
	updated.CurrencyLedgerID = ""
	updated.Normalize()

	// Funding is planned against the ledger as if this transaction's old
	// cash events never happened; they are replaced below.
	plan, err := s.planFunding(ctx, p, &updated, in.BalanceAction, in.TopUpType, txID)
	if err != nil {
		return nil, err
	}

	linked, err := s.ledgerRepo.ListByRelatedStockTx(txID)
	if err != nil {
		return nil, err
	}
	linkedIDs := make([]string, 0, len(linked))
	for i := range linked {
		linkedIDs = append(linkedIDs, linked[i].ID)
	}

	dateMoved := existing.Date != updated.Date

	err = database.WithTransactionContext(ctx, s.db.Conn(), func(dbTx *sql.Tx) error {
		if err := s.txRepo.UpdateTx(dbTx, &updated); err != nil {
			return err
		}
		// Old cash events go away wholesale; the plan recreates what the
		// new shape of the transaction needs.
		for i := range linked {
			if err := s.ledgerRepo.SoftDeleteCurrencyTx(dbTx, linked[i].ID); err != nil {
				return err
			}
		}
		if err := s.createLinkedCashEvents(dbTx, plan, &updated); err != nil {
			return err
		}
		if s.snapshot != nil {
			if dateMoved {
				if err := s.snapshot.RemoveStockEvent(ctx, dbTx, p, existing, &LinkedCashChange{RemovedIDs: linkedIDs}); err != nil {
					return err
				}
			}
			return s.snapshot.RecordStockEvent(ctx, dbTx, p, &updated, plan.cashChange(linkedIDs))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete soft-deletes a stock transaction and cascades to its linked Spend
// and any top-up credit, restoring the ledger to its pre-trade state.
func (s *TradingService) Delete(ctx context.Context, userID, txID string) error {
	existing, err := s.txRepo.GetByID(txID)
	if err != nil {
		return err
	}
	p, err := s.ownedPortfolio(userID, existing.PortfolioID)
	if err != nil {
		return err
	}

	linked, err := s.ledgerRepo.ListByRelatedStockTx(txID)
	if err != nil {
		return err
	}

	return database.WithTransactionContext(ctx, s.db.Conn(), func(dbTx *sql.Tx) error {
		if err := s.txRepo.SoftDeleteTx(dbTx, txID); err != nil {
			return err
		}
		removedIDs := make([]string, 0, len(linked))
		for i := range linked {
			if err := s.ledgerRepo.SoftDeleteCurrencyTx(dbTx, linked[i].ID); err != nil {
				return err
			}
			removedIDs = append(removedIDs, linked[i].ID)
		}
		if s.snapshot != nil {
			return s.snapshot.RemoveStockEvent(ctx, dbTx, p, existing, &LinkedCashChange{RemovedIDs: removedIDs})
		}
		return nil
	})
}

// DeleteCurrencyTransaction deletes a cash event from the currency side.
// A linked Spend cascades to its stock transaction; unlinked events go
// through the ledger service unchanged.
func (s *TradingService) DeleteCurrencyTransaction(ctx context.Context, userID, currencyTxID string) error {
	tx, err := s.ledgerRepo.GetCurrencyTx(currencyTxID)
	if err != nil {
		return err
	}
	if tx.RelatedStockTransactionID == "" {
		return s.ledgerSvc.DeleteTransaction(ctx, userID, currencyTxID)
	}
	return s.Delete(ctx, userID, tx.RelatedStockTransactionID)
}

// List returns the portfolio's live transactions with ownership enforced.
func (s *TradingService) List(userID, portfolioID string) ([]transactions.StockTransaction, error) {
	if _, err := s.ownedPortfolio(userID, portfolioID); err != nil {
		return nil, err
	}
	return s.txRepo.ListByPortfolio(portfolioID)
}

// fundingPlan is everything Create/Update decided before opening the
// database transaction: the ledger to hit and the cash events to insert.
type fundingPlan struct {
	ledger *ledger.CurrencyLedger
	topUp  *ledger.CurrencyTransaction
	spend  *ledger.CurrencyTransaction
}

// cashChange packages the plan's cash events for the snapshot recorder,
// together with the IDs of any replaced events soft-deleted in the same
// transaction.
func (plan *fundingPlan) cashChange(removedIDs []string) *LinkedCashChange {
	change := &LinkedCashChange{Ledger: plan.ledger, RemovedIDs: removedIDs}
	if plan.topUp != nil {
		change.Inserted = append(change.Inserted, plan.topUp)
	}
	if plan.spend != nil {
		change.Inserted = append(change.Inserted, plan.spend)
	}
	return change
}

// planFunding resolves the exchange rate and, for a ledger-funded Buy,
// prepares the Spend and optional top-up. excludeTxID removes a
// transaction's own cash events from the balance when re-planning an
// update.
func (s *TradingService) planFunding(ctx context.Context, p *Portfolio, tx *transactions.StockTransaction, action domain.BalanceAction, topUpType domain.CurrencyTransactionType, excludeTxID string) (*fundingPlan, error) {
	if action == "" {
		action = domain.BalanceActionNone
	}
	if !domain.ValidBalanceAction(action) {
		return nil, domain.BusinessRulef("unknown balance action %q", action)
	}

	// Only Buys consume cash from the bound ledger; other types just need
	// a rate for home-currency reporting.
	if tx.Type != domain.TransactionBuy || p.BoundCurrencyLedgerID == "" {
		rate, err := s.reportingRate(ctx, p, tx)
		if err != nil {
			return nil, err
		}
		tx.ExchangeRate = rate
		return &fundingPlan{}, nil
	}

	l, err := s.ledgerRepo.GetLedger(p.BoundCurrencyLedgerID)
	if err != nil {
		return nil, err
	}
	if tx.Currency != l.CurrencyCode {
		return nil, domain.BusinessRulef(
			"transaction currency %s does not match bound ledger currency %s", tx.Currency, l.CurrencyCode)
	}

	amount := tx.NetAmount()
	proj, err := s.projectionExcluding(l.ID, tx.Date, excludeTxID)
	if err != nil {
		return nil, err
	}

	tx.FundSource = domain.FundSourceCurrencyLedger
	tx.CurrencyLedgerID = l.ID

	if l.IsHomeCurrency() {
		tx.ExchangeRate = decimal.NewFromInt(1)
	} else {
		marketRate := s.ledgerSvc.MarketRate(ctx, l, tx.Date)
		preview, err := ledger.EffectiveRate(proj, amount, marketRate)
		if err != nil {
			return nil, err
		}
		tx.ExchangeRate = preview.Rate
	}

	plan := &fundingPlan{ledger: l}

	shortfall := amount.Sub(proj.Balance)
	if shortfall.IsPositive() {
		switch action {
		case domain.BalanceActionNone:
			return nil, domain.BusinessRulef(
				"ledger balance %s is insufficient for %s %s; choose Margin or TopUp",
				proj.Balance, amount, l.CurrencyCode)
		case domain.BalanceActionMargin:
			// Spend drives the balance negative; nothing extra to insert.
		case domain.BalanceActionTopUp:
			topUp, err := s.buildTopUp(ctx, l, tx.Date, topUpType, shortfall)
			if err != nil {
				return nil, err
			}
			plan.topUp = topUp
		}
	}

	spend := &ledger.CurrencyTransaction{
		LedgerID:      l.ID,
		Date:          tx.Date,
		Type:          domain.CurrencyTxSpend,
		ForeignAmount: amount,
	}
	rate := tx.ExchangeRate
	spend.ExchangeRate = &rate
	spend.Normalize(l)
	if err := spend.Validate(l); err != nil {
		return nil, err
	}
	plan.spend = spend

	return plan, nil
}

// createLinkedCashEvents inserts the planned top-up and Spend, linked to
// the now-persisted stock transaction.
func (s *TradingService) createLinkedCashEvents(dbTx *sql.Tx, plan *fundingPlan, tx *transactions.StockTransaction) error {
	if plan.topUp != nil {
		plan.topUp.RelatedStockTransactionID = tx.ID
		if err := s.ledgerRepo.CreateCurrencyTx(dbTx, plan.topUp); err != nil {
			return err
		}
	}
	if plan.spend != nil {
		plan.spend.RelatedStockTransactionID = tx.ID
		if err := s.ledgerRepo.CreateCurrencyTx(dbTx, plan.spend); err != nil {
			return err
		}
	}
	return nil
}

// buildTopUp prepares the credit covering a balance shortfall. Types that
// establish a LIFO layer need a market rate to price it.
func (s *TradingService) buildTopUp(ctx context.Context, l *ledger.CurrencyLedger, date string, topUpType domain.CurrencyTransactionType, shortfall decimal.Decimal) (*ledger.CurrencyTransaction, error) {
	if topUpType == "" {
		topUpType = domain.CurrencyTxOtherIncome
	}
	if !topUpType.IsCredit() {
		return nil, domain.BusinessRulef("top-up type %s is not an income type", topUpType)
	}

	topUp := &ledger.CurrencyTransaction{
		LedgerID:      l.ID,
		Date:          date,
		Type:          topUpType,
		ForeignAmount: shortfall,
	}

	if topUpType.RequiresHomeAmount() {
		marketRate := s.ledgerSvc.MarketRate(ctx, l, date)
		if marketRate == nil {
			return nil, domain.RateUnavailablef(
				"a %s top-up needs a market exchange rate for %s on %s", topUpType, l.CurrencyCode, date)
		}
		home := shortfall.Mul(*marketRate)
		topUp.ExchangeRate = marketRate
		topUp.HomeAmount = &home
	}

	topUp.Normalize(l)
	if err := topUp.Validate(l); err != nil {
		return nil, err
	}
	return topUp, nil
}

// reportingRate resolves the home-currency rate for transactions that do
// not consume from a ledger: 1 for home-currency trades, otherwise the
// market rate on the transaction date.
func (s *TradingService) reportingRate(ctx context.Context, p *Portfolio, tx *transactions.StockTransaction) (decimal.Decimal, error) {
	if tx.Currency == p.HomeCurrency {
		return decimal.NewFromInt(1), nil
	}
	if s.rates == nil {
		return decimal.Zero, domain.RateUnavailablef(
			"no exchange rate source for %s on %s", tx.Currency, tx.Date)
	}
	rate, _, err := s.rates.GetRate(ctx, tx.Currency, p.HomeCurrency, tx.Date)
	if err != nil || !rate.IsPositive() {
		return decimal.Zero, domain.RateUnavailablef(
			"no %s/%s exchange rate for %s", tx.Currency, p.HomeCurrency, tx.Date)
	}
	return rate, nil
}

// projectionExcluding folds the ledger log up to date, skipping cash
// events linked to excludeTxID.
func (s *TradingService) projectionExcluding(ledgerID, date, excludeTxID string) (ledger.Projection, error) {
	txs, err := s.ledgerRepo.ListCurrencyTxsUntil(ledgerID, date)
	if err != nil {
		return ledger.Projection{}, fmt.Errorf("failed to project ledger: %w", err)
	}
	if excludeTxID == "" {
		return ledger.Project(txs), nil
	}
	kept := txs[:0]
	for _, t := range txs {
		if t.RelatedStockTransactionID == excludeTxID {
			continue
		}
		kept = append(kept, t)
	}
	return ledger.Project(kept), nil
}

func (s *TradingService) ownedPortfolio(userID, portfolioID string) (*Portfolio, error) {
	p, err := s.portfolios.GetByID(portfolioID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, domain.AccessDeniedf("portfolio %s does not belong to the caller", portfolioID)
	}
	return p, nil
}
