package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all ledger routes.
func (h *LedgerHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/currency-ledgers", func(r chi.Router) {
		r.Get("/", h.HandleListLedgers)
		r.Post("/", h.HandleCreateLedger)
		r.Route("/{ledgerID}", func(r chi.Router) {
			r.Get("/", h.HandleGetLedger)
			r.Delete("/", h.HandleDeactivateLedger)
			r.Get("/transactions", h.HandleListTransactions)
			r.Post("/transactions", h.HandleCreateTransaction)
			r.Get("/exchange-rate-preview", h.HandleRatePreview)
			r.Post("/import", h.HandleImportCSV)
			r.Get("/export", h.HandleExportCSV)
		})
	})

	r.Route("/currency-transactions", func(r chi.Router) {
		r.Put("/{txID}", h.HandleUpdateTransaction)
		r.Delete("/{txID}", h.HandleDeleteTransaction)
	})
}
