package server

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/aristath/backtester/internal/config"
	"github.com/aristath/backtester/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers serves process and host status
type SystemHandlers struct {
	log       zerolog.Logger
	historyDB *database.DB
	cfg       *config.Config
	startTime time.Time
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, historyDB *database.DB, cfg *config.Config) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("component", "system_handlers").Logger(),
		historyDB: historyDB,
		cfg:       cfg,
		startTime: time.Now(),
	}
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	Status        string  `json:"status"` // "healthy" or "degraded"
	UptimeSeconds int64   `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	RAMPercent    float64 `json:"ram_percent"`
	Goroutines    int     `json:"goroutines"`
	HistoryDBMB   float64 `json:"history_db_mb"`
	Workers       int     `json:"workers"`
	MaxTrials     int     `json:"max_trials"`
	DefaultTrials int     `json:"default_trials"`
	ReturnPolicy  string  `json:"return_policy"`
	Timestamp     string  `json:"timestamp"`
}

// HandleSystemStatus returns process, host and simulation limits
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, ramPercent := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
		Goroutines:    runtime.NumGoroutine(),
		Workers:       h.cfg.Simulation.Workers,
		MaxTrials:     h.cfg.Simulation.MaxTrials,
		DefaultTrials: h.cfg.Simulation.DefaultTrials,
		ReturnPolicy:  string(h.cfg.Simulation.ReturnPolicy),
		Timestamp:     time.Now().Format(time.RFC3339),
	}

	if h.historyDB != nil {
		if err := h.historyDB.HealthCheck(r.Context()); err != nil {
			h.log.Warn().Err(err).Msg("History database unhealthy")
			response.Status = "degraded"
		}
		response.HistoryDBMB = fileSizeMB(h.historyDB.Path())
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// getSystemStats calculates CPU and RAM usage percentages.
// Uses a short 100ms sample so the call does not block for long.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// fileSizeMB returns the size of a database file including its WAL, in megabytes
func fileSizeMB(path string) float64 {
	var total int64
	for _, p := range []string{path, path + "-wal"} {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return float64(total) / 1024 / 1024
}
