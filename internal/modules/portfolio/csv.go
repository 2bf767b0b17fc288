package portfolio

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/weihanlu/investrack/internal/database"
	"github.com/weihanlu/investrack/internal/domain"
	"github.com/weihanlu/investrack/internal/modules/ledger"
	"github.com/weihanlu/investrack/internal/modules/transactions"
)

// stockCSVHeader is the canonical column order for stock transaction
// import/export. Import matches columns by name, case-insensitively.
var stockCSVHeader = []string{"Date", "Ticker", "Market", "Currency", "Type", "Shares", "Price", "Fees", "FundSource", "LedgerId"}

// ImportError describes one rejected CSV row with enough detail for the
// user to correct the file and retry.
type ImportError struct {
	RowNumber          int    `json:"rowNumber"`
	FieldName          string `json:"fieldName"`
	InvalidValue       string `json:"invalidValue"`
	ErrorCode          string `json:"errorCode"`
	Message            string `json:"message"`
	CorrectionGuidance string `json:"correctionGuidance"`
}

// ImportSummary counts the outcome of an import run.
type ImportSummary struct {
	TotalRows    int `json:"totalRows"`
	InsertedRows int `json:"insertedRows"`
	RejectedRows int `json:"rejectedRows"`
	ErrorCount   int `json:"errorCount"`
}

// ImportReport is the response body of a CSV import. Imports are atomic:
// when any row fails, InsertedRows is zero and nothing was committed.
type ImportReport struct {
	Status  string        `json:"status"` // "success" or "rejected"
	Summary ImportSummary `json:"summary"`
	Errors  []ImportError `json:"errors,omitempty"`
}

// ImportCSV parses and validates every stock transaction row, then inserts
// all of them in a single database transaction. Ledger-funded rows get
// their Spend created alongside, with effective rates computed against the
// ledger state as it evolves row by row. Any row error aborts the whole
// import. Snapshots for the imported days are rebuilt after commit.
func (s *TradingService) ImportCSV(ctx context.Context, userID, portfolioID string, reader io.Reader) (*ImportReport, error) {
	p, err := s.ownedPortfolio(userID, portfolioID)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(reader)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, domain.BusinessRulef("empty or unreadable CSV file")
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "ticker", "market", "currency", "type", "shares", "price"} {
		if _, ok := columns[required]; !ok {
			return nil, domain.BusinessRulef("CSV is missing required column %q", required)
		}
	}

	report := &ImportReport{}
	var parsed []*transactions.StockTransaction

	for rowNum := 2; ; rowNum++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			report.Errors = append(report.Errors, ImportError{
				RowNumber:          rowNum,
				ErrorCode:          "MalformedRow",
				Message:            err.Error(),
				CorrectionGuidance: "Check the row for unbalanced quotes or a wrong column count.",
			})
			report.Summary.TotalRows++
			continue
		}
		report.Summary.TotalRows++

		tx, rowErrs := parseStockCSVRow(p, columns, record, rowNum)
		if len(rowErrs) > 0 {
			report.Errors = append(report.Errors, rowErrs...)
			continue
		}
		parsed = append(parsed, tx)
	}

	report.Summary.ErrorCount = len(report.Errors)
	report.Summary.RejectedRows = report.Summary.TotalRows - len(parsed)

	if len(report.Errors) > 0 {
		report.Status = "rejected"
		return report, nil
	}

	plans, err := s.planImport(ctx, p, parsed, report)
	if err != nil {
		return nil, err
	}
	if len(report.Errors) > 0 {
		report.Summary.ErrorCount = len(report.Errors)
		report.Summary.RejectedRows = report.Summary.TotalRows
		report.Status = "rejected"
		return report, nil
	}

	var minDate, maxDate string
	err = database.WithTransactionContext(ctx, s.db.Conn(), func(dbTx *sql.Tx) error {
		for i, tx := range parsed {
			if err := s.txRepo.CreateTx(dbTx, tx); err != nil {
				return err
			}
			if err := s.createLinkedCashEvents(dbTx, plans[i], tx); err != nil {
				return err
			}
			if minDate == "" || tx.Date < minDate {
				minDate = tx.Date
			}
			if tx.Date > maxDate {
				maxDate = tx.Date
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to import transactions: %w", err)
	}

	// Snapshots are rebuilt from the committed rows so same-day imports
	// land in one consistent chain.
	if s.backfill != nil {
		if err := s.backfill.Backfill(ctx, p, minDate, maxDate); err != nil {
			s.log.Error().Err(err).
				Str("portfolio_id", p.ID).
				Msg("Snapshot backfill after import failed")
		}
	}

	report.Status = "success"
	report.Summary.InsertedRows = len(parsed)

	s.log.Info().
		Str("portfolio_id", portfolioID).
		Int("rows", len(parsed)).
		Msg("Stock CSV import committed")

	return report, nil
}

// planImport resolves exchange rates and ledger cash events for every
// parsed row, replaying the ledger in memory so later rows see the
// balances and LIFO layers earlier rows created.
func (s *TradingService) planImport(ctx context.Context, p *Portfolio, parsed []*transactions.StockTransaction, report *ImportReport) ([]*fundingPlan, error) {
	var boundLedger *ledger.CurrencyLedger
	if p.BoundCurrencyLedgerID != "" {
		l, err := s.ledgerRepo.GetLedger(p.BoundCurrencyLedgerID)
		if err != nil {
			return nil, err
		}
		boundLedger = l
	}

	var pendingCash []ledger.CurrencyTransaction
	plans := make([]*fundingPlan, len(parsed))

	for i, tx := range parsed {
		rowNum := i + 2

		funded := tx.Type == domain.TransactionBuy &&
			boundLedger != nil && tx.Currency == boundLedger.CurrencyCode

		if !funded {
			tx.FundSource = domain.FundSourceNone
			tx.CurrencyLedgerID = ""
			rate, err := s.reportingRate(ctx, p, tx)
			if err != nil {
				report.Errors = append(report.Errors, ImportError{
					RowNumber: rowNum, FieldName: "Currency", InvalidValue: string(tx.Currency),
					ErrorCode:          "ExchangeRateUnavailable",
					Message:            err.Error(),
					CorrectionGuidance: "Rates for this currency and date are unavailable; retry later.",
				})
				continue
			}
			tx.ExchangeRate = rate
			plans[i] = &fundingPlan{}
			continue
		}

		committed, err := s.ledgerRepo.ListCurrencyTxsUntil(boundLedger.ID, tx.Date)
		if err != nil {
			return nil, err
		}
		merged := append(committed, cashUntil(pendingCash, tx.Date)...)
		proj := ledger.Project(merged)

		amount := tx.NetAmount()
		tx.FundSource = domain.FundSourceCurrencyLedger
		tx.CurrencyLedgerID = boundLedger.ID

		if boundLedger.IsHomeCurrency() {
			tx.ExchangeRate = decimal.NewFromInt(1)
		} else {
			marketRate := s.ledgerSvc.MarketRate(ctx, boundLedger, tx.Date)
			preview, err := ledger.EffectiveRate(proj, amount, marketRate)
			if err != nil {
				report.Errors = append(report.Errors, ImportError{
					RowNumber: rowNum, FieldName: "Price", InvalidValue: amount.String(),
					ErrorCode:          "ExchangeRateUnavailable",
					Message:            err.Error(),
					CorrectionGuidance: "The ledger has no LIFO depth and no market rate for this date.",
				})
				continue
			}
			tx.ExchangeRate = preview.Rate
		}

		// Imports never top up; historical files are assumed to contain
		// the funding events, so a shortfall just goes negative.
		spend := &ledger.CurrencyTransaction{
			LedgerID:      boundLedger.ID,
			Date:          tx.Date,
			Type:          domain.CurrencyTxSpend,
			ForeignAmount: amount,
		}
		rate := tx.ExchangeRate
		spend.ExchangeRate = &rate
		spend.Normalize(boundLedger)
		if err := spend.Validate(boundLedger); err != nil {
			report.Errors = append(report.Errors, ImportError{
				RowNumber: rowNum, FieldName: "Type", InvalidValue: string(tx.Type),
				ErrorCode:          "BusinessRule",
				Message:            err.Error(),
				CorrectionGuidance: "Check the row's amounts and the bound ledger's currency.",
			})
			continue
		}

		plans[i] = &fundingPlan{ledger: boundLedger, spend: spend}
		pendingCash = append(pendingCash, *spend)
	}

	return plans, nil
}

// cashUntil filters the in-memory cash events to those dated on or before
// date, preserving insertion order.
func cashUntil(pending []ledger.CurrencyTransaction, date string) []ledger.CurrencyTransaction {
	var out []ledger.CurrencyTransaction
	for _, tx := range pending {
		if tx.Date <= date {
			out = append(out, tx)
		}
	}
	return out
}

func parseStockCSVRow(p *Portfolio, columns map[string]int, record []string, rowNum int) (*transactions.StockTransaction, []ImportError) {
	field := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var errs []ImportError
	tx := &transactions.StockTransaction{PortfolioID: p.ID}

	tx.Date = field("date")
	if _, err := domain.ParseDate(tx.Date); err != nil {
		errs = append(errs, ImportError{
			RowNumber:          rowNum,
			FieldName:          "Date",
			InvalidValue:       tx.Date,
			ErrorCode:          "InvalidDate",
			Message:            "date must be formatted YYYY-MM-DD",
			CorrectionGuidance: "Use an ISO date such as 2025-03-14.",
		})
	}

	tx.Ticker = field("ticker")
	if tx.Ticker == "" {
		errs = append(errs, ImportError{
			RowNumber: rowNum, FieldName: "Ticker", ErrorCode: "MissingValue",
			Message:            "ticker is required",
			CorrectionGuidance: "Provide the instrument symbol, e.g. 2330 or VOO.",
		})
	}

	tx.Market = domain.StockMarket(field("market"))
	if !domain.ValidMarket(tx.Market) {
		errs = append(errs, ImportError{
			RowNumber: rowNum, FieldName: "Market", InvalidValue: string(tx.Market),
			ErrorCode:          "InvalidMarket",
			Message:            "market is required and must be a known market code",
			CorrectionGuidance: "Use one of TW, US, UK, EU.",
		})
	}

	tx.Currency = domain.Currency(field("currency"))
	if tx.Currency == "" {
		errs = append(errs, ImportError{
			RowNumber: rowNum, FieldName: "Currency", ErrorCode: "MissingValue",
			Message:            "currency is required",
			CorrectionGuidance: "Use an ISO currency code such as TWD or USD.",
		})
	}

	tx.Type = domain.TransactionType(field("type"))
	if tx.Type != domain.TransactionBuy && tx.Type != domain.TransactionSell {
		errs = append(errs, ImportError{
			RowNumber: rowNum, FieldName: "Type", InvalidValue: string(tx.Type),
			ErrorCode:          "InvalidType",
			Message:            "type must be Buy or Sell",
			CorrectionGuidance: "Use Buy or Sell; splits are managed separately.",
		})
	}

	if raw := field("shares"); raw == "" {
		errs = append(errs, ImportError{
			RowNumber: rowNum, FieldName: "Shares", ErrorCode: "MissingValue",
			Message:            "shares is required",
			CorrectionGuidance: "Provide a positive decimal share count.",
		})
	} else if shares, err := decimal.NewFromString(raw); err != nil || !shares.IsPositive() {
		errs = append(errs, ImportError{
			RowNumber: rowNum, FieldName: "Shares", InvalidValue: raw,
			ErrorCode:          "InvalidAmount",
			Message:            "shares must be a positive decimal",
			CorrectionGuidance: "Provide a positive decimal such as 10 or 2.5.",
		})
	} else {
		tx.Shares = shares
	}

	if raw := field("price"); raw == "" {
		errs = append(errs, ImportError{
			RowNumber: rowNum, FieldName: "Price", ErrorCode: "MissingValue",
			Message:            "price is required",
			CorrectionGuidance: "Provide a positive decimal price per share.",
		})
	} else if price, err := decimal.NewFromString(raw); err != nil || !price.IsPositive() {
		errs = append(errs, ImportError{
			RowNumber: rowNum, FieldName: "Price", InvalidValue: raw,
			ErrorCode:          "InvalidAmount",
			Message:            "price must be a positive decimal",
			CorrectionGuidance: "Provide a positive decimal such as 27.25.",
		})
	} else {
		tx.PricePerShare = price
	}

	if raw := field("fees"); raw != "" {
		if fees, err := decimal.NewFromString(raw); err != nil || fees.IsNegative() {
			errs = append(errs, ImportError{
				RowNumber: rowNum, FieldName: "Fees", InvalidValue: raw,
				ErrorCode:          "InvalidAmount",
				Message:            "fees must be a non-negative decimal",
				CorrectionGuidance: "Provide a non-negative decimal or leave the column empty.",
			})
		} else {
			tx.Fees = fees
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	tx.Normalize()
	return tx, nil
}

// ExportCSV writes the portfolio's live transactions in the import column
// order, so an export re-imports cleanly.
func (s *TradingService) ExportCSV(userID, portfolioID string, w io.Writer) error {
	txs, err := s.List(userID, portfolioID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(stockCSVHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i := range txs {
		tx := &txs[i]
		record := []string{
			tx.Date,
			tx.Ticker,
			string(tx.Market),
			string(tx.Currency),
			string(tx.Type),
			tx.Shares.String(),
			tx.PricePerShare.String(),
			tx.Fees.String(),
			string(tx.FundSource),
			tx.CurrencyLedgerID,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
