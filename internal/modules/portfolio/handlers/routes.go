package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio and stock transaction routes.
func (h *PortfolioHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/portfolios", func(r chi.Router) {
		r.Get("/", h.HandleListPortfolios)
		r.Post("/", h.HandleCreatePortfolio)
		r.Route("/{portfolioID}", func(r chi.Router) {
			r.Get("/", h.HandleGetPortfolio)
			r.Put("/", h.HandleRenamePortfolio)
			r.Put("/ledger", h.HandleBindLedger)
			r.Get("/holdings", h.HandleHoldings)
			r.Get("/value", h.HandleValue)
			r.Get("/stock-transactions", h.HandleListStockTransactions)
			r.Post("/stock-transactions", h.HandleCreateStockTransaction)
			r.Post("/stock-transactions/import", h.HandleImportCSV)
			r.Get("/stock-transactions/export", h.HandleExportCSV)
		})
	})

	r.Route("/stock-transactions", func(r chi.Router) {
		r.Put("/{txID}", h.HandleUpdateStockTransaction)
		r.Delete("/{txID}", h.HandleDeleteStockTransaction)
	})
}
