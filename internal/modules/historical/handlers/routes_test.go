package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/backtester/internal/modules/historical"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRoutes(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	handler := NewHandler(historical.NewHistoryDB(setupTestDB(t), logger), logger)

	router := chi.NewRouter()
	require.NotPanics(t, func() {
		router.Route("/api", handler.RegisterRoutes)
	})

	req := httptest.NewRequest("POST", "/api/historical/prices/qqq/import", strings.NewReader(sampleCSV))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)

	req = httptest.NewRequest("GET", "/api/historical/prices/QQQ?limit=5", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"symbol":"QQQ"`)

	req = httptest.NewRequest("GET", "/api/historical/symbols", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "QQQ")
}
