package ledger

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
)

// csvHeader is the canonical column order for currency transaction
// import/export. Import matches columns by name, case-insensitively.
var csvHeader = []string{"Date", "Type", "ForeignAmount", "HomeAmount", "ExchangeRate"}

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

// ImportCSV parses and validates every row, then inserts all of them in a
// single database transaction. Any row error aborts the whole import.
func (s *Service) ImportCSV(ctx context.Context, userID, ledgerID string, reader io.Reader) (*ImportReport, error) {
	l, err := s.GetLedger(userID, ledgerID)
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
	for _, required := range []string{"date", "type", "foreignamount"} {
		if _, ok := columns[required]; !ok {
			return nil, domain.BusinessRulef("CSV is missing required column %q", required)
		}
	}

	report := &ImportReport{}
	var parsed []*CurrencyTransaction

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

		tx, rowErrs := parseCSVRow(l, columns, record, rowNum)
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

	err = database.WithTransactionContext(ctx, s.db.Conn(), func(dbTx *sql.Tx) error {
		for _, tx := range parsed {
			if err := s.repo.CreateCurrencyTx(dbTx, tx); err != nil {
				return err
			}
			if s.snapshot != nil && tx.Type.IsExternalCashFlow() {
				if err := s.snapshot.RecordCurrencyEvent(ctx, dbTx, l, tx); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to import transactions: %w", err)
	}

	report.Status = "success"
	report.Summary.InsertedRows = len(parsed)

	s.log.Info().
		Str("ledger_id", ledgerID).
		Int("rows", len(parsed)).
		Msg("CSV import committed")

	return report, nil
}

func parseCSVRow(l *CurrencyLedger, columns map[string]int, record []string, rowNum int) (*CurrencyTransaction, []ImportError) {
	field := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var errs []ImportError
	tx := &CurrencyTransaction{LedgerID: l.ID}

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

	tx.Type = domain.CurrencyTransactionType(field("type"))

	if raw := field("foreignamount"); raw == "" {
		errs = append(errs, ImportError{
			RowNumber: rowNum, FieldName: "ForeignAmount", ErrorCode: "MissingValue",
			Message:            "foreign amount is required",
			CorrectionGuidance: "Provide a positive decimal amount.",
		})
	} else if amount, err := decimal.NewFromString(raw); err != nil || !amount.IsPositive() {
		errs = append(errs, ImportError{
			RowNumber: rowNum, FieldName: "ForeignAmount", InvalidValue: raw,
			ErrorCode:          "InvalidAmount",
			Message:            "foreign amount must be a positive decimal",
			CorrectionGuidance: "Provide a positive decimal amount such as 1234.56.",
		})
	} else {
		tx.ForeignAmount = amount
	}

	if raw := field("homeamount"); raw != "" {
		if amount, err := decimal.NewFromString(raw); err != nil {
			errs = append(errs, ImportError{
				RowNumber: rowNum, FieldName: "HomeAmount", InvalidValue: raw,
				ErrorCode:          "InvalidAmount",
				Message:            "home amount must be a decimal",
				CorrectionGuidance: "Provide a decimal amount or leave the column empty.",
			})
		} else {
			tx.HomeAmount = &amount
		}
	}

	if raw := field("exchangerate"); raw != "" {
		if rate, err := decimal.NewFromString(raw); err != nil {
			errs = append(errs, ImportError{
				RowNumber: rowNum, FieldName: "ExchangeRate", InvalidValue: raw,
				ErrorCode:          "InvalidRate",
				Message:            "exchange rate must be a decimal",
				CorrectionGuidance: "Provide a decimal rate or leave the column empty.",
			})
		} else {
			tx.ExchangeRate = &rate
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	tx.Normalize(l)
	if err := tx.Validate(l); err != nil {
		return nil, []ImportError{{
			RowNumber:          rowNum,
			FieldName:          "Type",
			InvalidValue:       string(tx.Type),
			ErrorCode:          "BusinessRule",
			Message:            err.Error(),
			CorrectionGuidance: "Check the allowed transaction types for this ledger and the required home amount fields.",
		}}
	}

	return tx, nil
}

// ExportCSV writes the ledger's live transactions in the import column
// order, so an export re-imports cleanly.
func (s *Service) ExportCSV(userID, ledgerID string, w io.Writer) error {
	txs, err := s.ListTransactions(userID, ledgerID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i := range txs {
		tx := &txs[i]
		home, rate := "", ""
		if tx.HomeAmount != nil {
			home = tx.HomeAmount.String()
		}
		if tx.ExchangeRate != nil {
			rate = tx.ExchangeRate.String()
		}
		record := []string{tx.Date, string(tx.Type), tx.ForeignAmount.String(), home, rate}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
