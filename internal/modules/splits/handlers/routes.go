package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all split routes.
func (h *SplitHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/splits", func(r chi.Router) {
		r.Get("/", h.HandleListSplits)
		r.Post("/", h.HandleCreateSplit)
		r.Delete("/{splitID}", h.HandleDeleteSplit)
	})
}
