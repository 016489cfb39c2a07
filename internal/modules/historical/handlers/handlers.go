// Package handlers provides HTTP handlers for historical data operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/backtester/internal/modules/historical"
	"github.com/aristath/backtester/internal/utils"
	"github.com/rs/zerolog"
)

// maxImportBytes caps the size of an uploaded CSV body
const maxImportBytes = 64 << 20

// Handler handles historical data HTTP requests
type Handler struct {
	historyDB *historical.HistoryDB
	log       zerolog.Logger
}

// NewHandler creates a new historical data handler
func NewHandler(
	historyDB *historical.HistoryDB,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		historyDB: historyDB,
		log:       log.With().Str("handler", "historical").Logger(),
	}
}

// HandleListSymbols handles GET /api/historical/symbols
func (h *Handler) HandleListSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.historyDB.ListSymbols()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list symbols")
		h.writeError(w, http.StatusInternalServerError, "Failed to list symbols")
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"symbols": symbols,
			"count":   len(symbols),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetDailyPrices handles GET /api/historical/prices/{symbol}
func (h *Handler) HandleGetDailyPrices(w http.ResponseWriter, r *http.Request, symbol string) {
	symbol = utils.NormalizeSymbol(symbol)

	limit := 100 // default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	prices, err := h.historyDB.GetDailyPrices(symbol, limit)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to get daily prices")
		h.writeError(w, http.StatusInternalServerError, "Failed to get daily prices")
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"symbol": symbol,
			"prices": prices,
			"count":  len(prices),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleImportPrices handles POST /api/historical/prices/{symbol}/import.
// The request body is a CSV export; rows replace stored prices with the same date.
func (h *Handler) HandleImportPrices(w http.ResponseWriter, r *http.Request, symbol string) {
	symbol = utils.NormalizeSymbol(symbol)
	if symbol == "" {
		h.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	source := r.URL.Query().Get("source")
	if source == "" {
		source = "upload"
	}

	prices, err := historical.ParseCSV(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		h.log.Warn().Err(err).Str("symbol", symbol).Msg("Rejected price import")
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(prices) == 0 {
		h.writeError(w, http.StatusBadRequest, "csv contains no price rows")
		return
	}

	if err := h.historyDB.SyncHistoricalPrices(symbol, source, prices); err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to import prices")
		h.writeError(w, utils.ErrorStatus(err), "Failed to import prices")
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"symbol":   symbol,
			"imported": len(prices),
			"first":    prices[0].Date,
			"last":     prices[len(prices)-1].Date,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusCreated, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
