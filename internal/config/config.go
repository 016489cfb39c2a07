// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/aristath/backtester/internal/modules/backtest"
	"github.com/aristath/backtester/internal/utils"
	"github.com/joho/godotenv"
	"github.com/shirou/gopsutil/v3/cpu"
)

// Config holds application configuration
type Config struct {
	DataDir     string // Base directory for the history database (defaults to "./data", always absolute)
	LogLevel    string
	Port        int
	DevMode     bool
	CORSOrigins []string

	Simulation SimulationConfig
}

// SimulationConfig holds the server-side limits of Monte Carlo runs
type SimulationConfig struct {
	Workers       int // parallel trial workers, 1 runs sequentially
	MaxTrials     int
	DefaultTrials int
	ReturnPolicy  backtest.ReturnPolicy
}

// HistoryDBPath returns the location of the price history database
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("BACKTEST_DATA_DIR", "./data")

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	workers := getEnvAsInt("SIM_WORKERS", 0)
	if workers == 0 {
		workers = defaultWorkers()
	}

	cfg := &Config{
		DataDir:     absDataDir,
		Port:        getEnvAsInt("PORT", 8080),
		DevMode:     getEnvAsBool("DEV_MODE", false),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: utils.SplitList(getEnv("CORS_ORIGINS", "*")),
		Simulation: SimulationConfig{
			Workers:       workers,
			MaxTrials:     getEnvAsInt("SIM_MAX_TRIALS", 100000),
			DefaultTrials: getEnvAsInt("SIM_DEFAULT_TRIALS", 10000),
			ReturnPolicy:  backtest.ReturnPolicy(getEnv("RETURN_POLICY", string(backtest.ReturnNaN))),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that limits are usable and names resolve
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.Simulation.Workers < 0 {
		return fmt.Errorf("SIM_WORKERS must not be negative, got %d", c.Simulation.Workers)
	}
	if c.Simulation.MaxTrials <= 0 {
		return fmt.Errorf("SIM_MAX_TRIALS must be positive, got %d", c.Simulation.MaxTrials)
	}
	if c.Simulation.DefaultTrials <= 0 || c.Simulation.DefaultTrials > c.Simulation.MaxTrials {
		return fmt.Errorf("SIM_DEFAULT_TRIALS must be in [1, %d], got %d", c.Simulation.MaxTrials, c.Simulation.DefaultTrials)
	}

	policy, err := backtest.ParseReturnPolicy(string(c.Simulation.ReturnPolicy))
	if err != nil {
		return fmt.Errorf("RETURN_POLICY: %w", err)
	}
	c.Simulation.ReturnPolicy = policy

	return nil
}

// defaultWorkers sizes the trial pool to the logical CPU count
func defaultWorkers() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
