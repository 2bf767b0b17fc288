// Package handlers provides HTTP handlers for performance reports.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/weihanlu/investrack/internal/modules/performance"
	"github.com/weihanlu/investrack/internal/modules/portfolio"
	"github.com/weihanlu/investrack/internal/web"
)

// PerformanceHandlers contains the HTTP handlers for the performance API.
type PerformanceHandlers struct {
	service *performance.Service
	log     zerolog.Logger
}

// NewPerformanceHandlers creates the performance handlers.
func NewPerformanceHandlers(service *performance.Service, log zerolog.Logger) *PerformanceHandlers {
	return &PerformanceHandlers{
		service: service,
		log:     log.With().Str("handler", "performance").Logger(),
	}
}

// yearRequest carries the report year plus user-supplied prices for
// tickers the market sources cannot resolve, keyed by ticker.
type yearRequest struct {
	Year            int                                 `json:"year"`
	YearStartPrices map[string]portfolio.PriceOverride `json:"yearStartPrices"`
	YearEndPrices   map[string]portfolio.PriceOverride `json:"yearEndPrices"`
}

// HandlePortfolioYear computes one portfolio's report for a year.
// POST /api/portfolios/{portfolioID}/performance/year
func (h *PerformanceHandlers) HandlePortfolioYear(w http.ResponseWriter, r *http.Request) {
	var req yearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.BadRequest(w, "invalid JSON body")
		return
	}
	if req.Year <= 0 {
		web.BadRequest(w, "year is required")
		return
	}

	report, err := h.service.PortfolioYear(r.Context(), web.UserID(r), chi.URLParam(r, "portfolioID"), req.Year, req.YearStartPrices, req.YearEndPrices)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusOK, report)
}

// HandleAggregateYear combines every portfolio of the caller for a year.
// POST /api/portfolios/aggregate/performance/year
func (h *PerformanceHandlers) HandleAggregateYear(w http.ResponseWriter, r *http.Request) {
	var req yearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.BadRequest(w, "invalid JSON body")
		return
	}
	if req.Year <= 0 {
		web.BadRequest(w, "year is required")
		return
	}

	report, err := h.service.AggregateYear(r.Context(), web.UserID(r), req.Year, req.YearStartPrices, req.YearEndPrices)
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusOK, report)
}

// HandleAvailableYears lists the years a report can be requested for,
// newest first.
// GET /api/performance/years
func (h *PerformanceHandlers) HandleAvailableYears(w http.ResponseWriter, r *http.Request) {
	years, err := h.service.AvailableYears(web.UserID(r))
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]interface{}{"years": years})
}
