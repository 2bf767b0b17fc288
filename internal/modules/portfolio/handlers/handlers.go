// Package handlers provides HTTP handlers for portfolios and their stock
// transactions.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/weihanlu/investrack/internal/domain"
	"github.com/weihanlu/investrack/internal/modules/portfolio"
	"github.com/weihanlu/investrack/internal/web"
)

// PortfolioHandlers contains the HTTP handlers for the portfolio API.
type PortfolioHandlers struct {
	service      *portfolio.Service
	trading      *portfolio.TradingService
	homeCurrency domain.Currency
	log          zerolog.Logger
}

// NewPortfolioHandlers creates the portfolio handlers.
func NewPortfolioHandlers(service *portfolio.Service, trading *portfolio.TradingService, homeCurrency domain.Currency, log zerolog.Logger) *PortfolioHandlers {
	return &PortfolioHandlers{
		service:      service,
		trading:      trading,
		homeCurrency: homeCurrency,
		log:          log.With().Str("handler", "portfolio").Logger(),
	}
}

type createPortfolioRequest struct {
	DisplayName  string          `json:"displayName"`
	BaseCurrency domain.Currency `json:"baseCurrency"`
}

// HandleCreatePortfolio creates a portfolio for the caller.
// POST /api/portfolios
func (h *PortfolioHandlers) HandleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req createPortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.BadRequest(w, "invalid JSON body")
		return
	}

	p, err := h.service.Create(web.UserID(r), req.DisplayName, req.BaseCurrency, h.homeCurrency)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusCreated, p)
}

// HandleListPortfolios lists the caller's portfolios.
// GET /api/portfolios
func (h *PortfolioHandlers) HandleListPortfolios(w http.ResponseWriter, r *http.Request) {
	portfolios, err := h.service.List(web.UserID(r))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusOK, portfolios)
}

// HandleGetPortfolio returns one portfolio.
// GET /api/portfolios/{portfolioID}
func (h *PortfolioHandlers) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(web.UserID(r), chi.URLParam(r, "portfolioID"))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusOK, p)
}

type renameRequest struct {
	DisplayName string `json:"displayName"`
}

// HandleRenamePortfolio updates the display name.
// PUT /api/portfolios/{portfolioID}
func (h *PortfolioHandlers) HandleRenamePortfolio(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.BadRequest(w, "invalid JSON body")
		return
	}
	if err := h.service.Rename(web.UserID(r), chi.URLParam(r, "portfolioID"), req.DisplayName); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusNoContent, nil)
}

type bindLedgerRequest struct {
	LedgerID string `json:"ledgerId"`
}

// HandleBindLedger binds (or with an empty ID, unbinds) a currency ledger.
// PUT /api/portfolios/{portfolioID}/ledger
func (h *PortfolioHandlers) HandleBindLedger(w http.ResponseWriter, r *http.Request) {
	var req bindLedgerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.BadRequest(w, "invalid JSON body")
		return
	}
	if err := h.service.BindLedger(web.UserID(r), chi.URLParam(r, "portfolioID"), req.LedgerID); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusNoContent, nil)
}

// HandleHoldings returns the split-adjusted positions, open and closed.
// GET /api/portfolios/{portfolioID}/holdings
func (h *PortfolioHandlers) HandleHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.service.Holdings(web.UserID(r), chi.URLParam(r, "portfolioID"))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusOK, holdings)
}

// HandleValue returns the portfolio value at a date (default today),
// stock market value plus the bound ledger balance.
// GET /api/portfolios/{portfolioID}/value?date=
func (h *PortfolioHandlers) HandleValue(w http.ResponseWriter, r *http.Request) {
	valuation, err := h.service.Value(r.Context(), web.UserID(r), chi.URLParam(r, "portfolioID"), r.URL.Query().Get("date"))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusOK, valuation)
}

// HandleCreateStockTransaction records a trade. Buys against the bound
// ledger settle through it per the balance action.
// POST /api/portfolios/{portfolioID}/stock-transactions
func (h *PortfolioHandlers) HandleCreateStockTransaction(w http.ResponseWriter, r *http.Request) {
	var req portfolio.StockTradeInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.BadRequest(w, "invalid JSON body")
		return
	}

	tx, err := h.trading.Create(r.Context(), web.UserID(r), chi.URLParam(r, "portfolioID"), req)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusCreated, tx)
}

// HandleListStockTransactions lists the portfolio's live trades.
// GET /api/portfolios/{portfolioID}/stock-transactions
func (h *PortfolioHandlers) HandleListStockTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.trading.List(web.UserID(r), chi.URLParam(r, "portfolioID"))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusOK, txs)
}

// HandleUpdateStockTransaction mutates a trade; the linked Spend follows.
// PUT /api/stock-transactions/{txID}
func (h *PortfolioHandlers) HandleUpdateStockTransaction(w http.ResponseWriter, r *http.Request) {
	var req portfolio.StockTradeInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.BadRequest(w, "invalid JSON body")
		return
	}

	tx, err := h.trading.Update(r.Context(), web.UserID(r), chi.URLParam(r, "txID"), req)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusOK, tx)
}

// HandleDeleteStockTransaction soft-deletes a trade and its linked Spend.
// DELETE /api/stock-transactions/{txID}
func (h *PortfolioHandlers) HandleDeleteStockTransaction(w http.ResponseWriter, r *http.Request) {
	if err := h.trading.Delete(r.Context(), web.UserID(r), chi.URLParam(r, "txID")); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusNoContent, nil)
}

// HandleImportCSV bulk-loads trades from a multipart CSV upload.
// POST /api/portfolios/{portfolioID}/stock-transactions/import
func (h *PortfolioHandlers) HandleImportCSV(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		web.BadRequest(w, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	report, err := h.trading.ImportCSV(r.Context(), web.UserID(r), chi.URLParam(r, "portfolioID"), file)
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

// HandleExportCSV streams the portfolio's trades as CSV.
// GET /api/portfolios/{portfolioID}/stock-transactions/export
func (h *PortfolioHandlers) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=stock-transactions.csv")
	if err := h.trading.ExportCSV(web.UserID(r), chi.URLParam(r, "portfolioID"), w); err != nil {
		h.log.Error().Err(err).Msg("CSV export failed")
	}
}
