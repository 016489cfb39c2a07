// Package main is the entry point of the backtest API server.
// It serves price history management and random-day periodic investment
// backtests over HTTP, backed by a single SQLite history database.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/backtester/internal/config"
	"github.com/aristath/backtester/internal/database"
	"github.com/aristath/backtester/internal/server"
	"github.com/aristath/backtester/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("workers", cfg.Simulation.Workers).
		Int("max_trials", cfg.Simulation.MaxTrials).
		Msg("Starting backtester")

	historyDB, err := database.New(database.Config{
		Path:    cfg.HistoryDBPath(),
		Profile: database.ProfileCache,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	if err := historyDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate history database")
	}
	log.Info().Str("path", historyDB.Path()).Msg("History database ready")

	srv := server.New(server.Config{
		Log:       log,
		HistoryDB: historyDB,
		Config:    cfg,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// In-flight simulations get up to 10 seconds to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
