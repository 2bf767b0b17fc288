// Package handlers provides HTTP handlers for stock split events.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/weihanlu/investrack/internal/domain"
	"github.com/weihanlu/investrack/internal/modules/splits"
	"github.com/weihanlu/investrack/internal/web"
)

// SplitHandlers contains the HTTP handlers for the split API.
type SplitHandlers struct {
	repo *splits.Repository
	log  zerolog.Logger
}

// NewSplitHandlers creates the split handlers.
func NewSplitHandlers(repo *splits.Repository, log zerolog.Logger) *SplitHandlers {
	return &SplitHandlers{
		repo: repo,
		log:  log.With().Str("handler", "splits").Logger(),
	}
}

// HandleListSplits lists every recorded split, optionally filtered by
// symbol and market.
// GET /api/splits?symbol=&market=
func (h *SplitHandlers) HandleListSplits(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	market := domain.StockMarket(r.URL.Query().Get("market"))

	var (
		list []splits.StockSplit
		err  error
	)
	if symbol != "" && domain.ValidMarket(market) {
		list, err = h.repo.GetBySymbol(symbol, market)
	} else {
		list, err = h.repo.GetAll()
	}
	if err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusOK, list)
}

// HandleCreateSplit records a split event.
// POST /api/splits
func (h *SplitHandlers) HandleCreateSplit(w http.ResponseWriter, r *http.Request) {
	var split splits.StockSplit
	if err := json.NewDecoder(r.Body).Decode(&split); err != nil {
		web.BadRequest(w, "invalid JSON body")
		return
	}

	if err := h.repo.Create(&split); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusCreated, split)
}

// HandleDeleteSplit removes a split event.
// DELETE /api/splits/{splitID}
func (h *SplitHandlers) HandleDeleteSplit(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Delete(chi.URLParam(r, "splitID")); err != nil {
		web.Error(w, h.log, err)
		return
	}
	web.JSON(w, http.StatusNoContent, nil)
}
