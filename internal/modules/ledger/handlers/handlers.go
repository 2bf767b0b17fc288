// Package handlers provides HTTP handlers for currency ledgers and their
// cash transactions.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/weihanlu/investrack/internal/domain"
	"github.com/weihanlu/investrack/internal/modules/ledger"
	"github.com/weihanlu/investrack/internal/web"
)

// CurrencyTxDeleter deletes a cash event, cascading to the linked stock
// transaction when one exists. Implemented by the trading service.
type CurrencyTxDeleter interface {
	DeleteCurrencyTransaction(ctx context.Context, userID, currencyTxID string) error
}

// LedgerHandlers contains the HTTP handlers for the ledger API.
type LedgerHandlers struct {
	service      *ledger.Service
	deleter      CurrencyTxDeleter
	homeCurrency domain.Currency
	log          zerolog.Logger
}

// NewLedgerHandlers creates the ledger handlers.
func NewLedgerHandlers(service *ledger.Service, deleter CurrencyTxDeleter, homeCurrency domain.Currency, log zerolog.Logger) *LedgerHandlers {
	return &LedgerHandlers{
		service:      service,
		deleter:      deleter,
		homeCurrency: homeCurrency,
		log:          log.With().Str("handler", "ledger").Logger(),
	}
}

type createLedgerRequest struct {
	CurrencyCode domain.Currency `json:"currencyCode"`
	Name         string          `json:"name"`
}

// HandleCreateLedger creates an active ledger for the caller.
// POST /api/currency-ledgers
func (h *LedgerHandlers) HandleCreateLedger(w http.ResponseWriter, r *http.Request) {
	var req createLedgerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.BadRequest(w, "invalid JSON body")
		return
	}

	l, err := h.service.CreateLedger(web.UserID(r), req.CurrencyCode, h.homeCurrency, req.Name)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusCreated, l)
}

// HandleListLedgers lists the caller's ledgers.
// GET /api/currency-ledgers
func (h *LedgerHandlers) HandleListLedgers(w http.ResponseWriter, r *http.Request) {
	ledgers, err := h.service.ListLedgers(web.UserID(r))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusOK, ledgers)
}

// HandleGetLedger returns one ledger with its current balance.
// GET /api/currency-ledgers/{ledgerID}
func (h *LedgerHandlers) HandleGetLedger(w http.ResponseWriter, r *http.Request) {
	ledgerID := chi.URLParam(r, "ledgerID")

	l, err := h.service.GetLedger(web.UserID(r), ledgerID)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	balance, err := h.service.Balance(web.UserID(r), ledgerID)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}

	web.JSON(w, http.StatusOK, map[string]interface{}{
		"ledger":  l,
		"balance": balance,
	})
}

// HandleDeactivateLedger marks a ledger inactive.
// DELETE /api/currency-ledgers/{ledgerID}
func (h *LedgerHandlers) HandleDeactivateLedger(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeactivateLedger(web.UserID(r), chi.URLParam(r, "ledgerID")); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusNoContent, nil)
}

// HandleListTransactions lists a ledger's live cash events.
// GET /api/currency-ledgers/{ledgerID}/transactions
func (h *LedgerHandlers) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.service.ListTransactions(web.UserID(r), chi.URLParam(r, "ledgerID"))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusOK, txs)
}

type currencyTxRequest struct {
	Date          string                         `json:"date"`
	Type          domain.CurrencyTransactionType `json:"type"`
	ForeignAmount decimal.Decimal                `json:"foreignAmount"`
	HomeAmount    *decimal.Decimal               `json:"homeAmount"`
	ExchangeRate  *decimal.Decimal               `json:"exchangeRate"`
}

// HandleCreateTransaction records a cash event on a ledger.
// POST /api/currency-ledgers/{ledgerID}/transactions
func (h *LedgerHandlers) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req currencyTxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.BadRequest(w, "invalid JSON body")
		return
	}

	tx := &ledger.CurrencyTransaction{
		LedgerID:      chi.URLParam(r, "ledgerID"),
		Date:          req.Date,
		Type:          req.Type,
		ForeignAmount: req.ForeignAmount,
		HomeAmount:    req.HomeAmount,
		ExchangeRate:  req.ExchangeRate,
	}
	if err := h.service.CreateTransaction(r.Context(), web.UserID(r), tx); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusCreated, tx)
}

// HandleUpdateTransaction mutates an unlinked cash event.
// PUT /api/currency-transactions/{txID}
func (h *LedgerHandlers) HandleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req currencyTxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.BadRequest(w, "invalid JSON body")
		return
	}

	existing, err := h.service.GetTransaction(web.UserID(r), chi.URLParam(r, "txID"))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}

	tx := &ledger.CurrencyTransaction{
		ID:            existing.ID,
		LedgerID:      existing.LedgerID,
		Date:          req.Date,
		Type:          req.Type,
		ForeignAmount: req.ForeignAmount,
		HomeAmount:    req.HomeAmount,
		ExchangeRate:  req.ExchangeRate,
	}
	if err := h.service.UpdateTransaction(r.Context(), web.UserID(r), tx); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusOK, tx)
}

// HandleDeleteTransaction soft-deletes a cash event. A linked Spend
// cascades to its stock transaction.
// DELETE /api/currency-transactions/{txID}
func (h *LedgerHandlers) HandleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := h.deleter.DeleteCurrencyTransaction(r.Context(), web.UserID(r), chi.URLParam(r, "txID")); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusNoContent, nil)
}

// HandleRatePreview answers what effective rate a purchase would carry.
// GET /api/currency-ledgers/{ledgerID}/exchange-rate-preview?amount=&date=
func (h *LedgerHandlers) HandleRatePreview(w http.ResponseWriter, r *http.Request) {
	amountParam := r.URL.Query().Get("amount")
	amount, err := decimal.NewFromString(amountParam)
	if err != nil || !amount.IsPositive() {
		web.BadRequest(w, "amount must be a positive decimal")
		return
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		web.BadRequest(w, "date is required (YYYY-MM-DD)")
		return
	}

	preview, err := h.service.PreviewRate(r.Context(), web.UserID(r), chi.URLParam(r, "ledgerID"), amount, date)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusOK, preview)
}

// HandleImportCSV bulk-loads cash events from a multipart CSV upload.
// POST /api/currency-ledgers/{ledgerID}/import
func (h *LedgerHandlers) HandleImportCSV(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		web.BadRequest(w, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	report, err := h.service.ImportCSV(r.Context(), web.UserID(r), chi.URLParam(r, "ledgerID"), file)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}

	status := http.StatusOK
	if report.Status == "rejected" {
		status = http.StatusUnprocessableEntity
	}
	web.JSON(w, status, report)
}

// HandleExportCSV streams a ledger's transactions as CSV.
// GET /api/currency-ledgers/{ledgerID}/export
func (h *LedgerHandlers) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=currency-transactions.csv")
	if err := h.service.ExportCSV(web.UserID(r), chi.URLParam(r, "ledgerID"), w); err != nil {
		h.log.Error().Err(err).Msg("CSV export failed")
	}
}
