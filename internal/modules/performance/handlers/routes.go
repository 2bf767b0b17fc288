package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all performance routes. The aggregate route
// must precede the parameterized portfolio route so chi does not swallow
// "aggregate" as a portfolio ID.
func (h *PerformanceHandlers) RegisterRoutes(r chi.Router) {
	r.Post("/portfolios/aggregate/performance/year", h.HandleAggregateYear)
	r.Post("/portfolios/{portfolioID}/performance/year", h.HandlePortfolioYear)
	r.Get("/performance/years", h.HandleAvailableYears)
}
