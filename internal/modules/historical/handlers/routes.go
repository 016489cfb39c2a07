package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all historical data routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/historical", func(r chi.Router) {
		r.Get("/symbols", h.HandleListSymbols)

		r.Route("/prices/{symbol}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetDailyPrices(w, r, chi.URLParam(r, "symbol"))
			})
			r.Post("/import", func(w http.ResponseWriter, r *http.Request) {
				h.HandleImportPrices(w, r, chi.URLParam(r, "symbol"))
			})
		})
	})
}
