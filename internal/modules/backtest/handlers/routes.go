package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all backtest routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/backtest", func(r chi.Router) {
		r.Post("/portfolio", h.HandlePortfolio)
		r.Post("/simulate", h.HandleSimulate)
		r.Get("/simulate/stream", h.HandleSimulateStream)
	})
}
