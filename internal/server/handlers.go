package server

import (
	"encoding/json"
	"net/http"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK

	if err := s.historyDB.HealthCheck(r.Context()); err != nil {
		s.log.Warn().Err(err).Msg("History database health check failed")
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":  status,
		"version": "1.0.0",
		"service": "backtester",
	}

	s.writeJSON(w, code, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
