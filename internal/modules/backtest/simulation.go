// Package backtest simulates investing a fixed budget in equal instalments,
// one trade per fixed-size window of a price history, on a randomly drawn day
// of each window. It reconstructs the resulting daily portfolio and estimates
// the distribution of terminal outcomes by Monte Carlo resampling.
package backtest

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/evaluation/workers"
	"github.com/aristath/backtester/internal/utils"
)

// Config holds the constructor-level parameters of a simulation
type Config struct {
	Interval      int               // window length in trading days
	Amount        float64           // total capital to deploy
	Price         domain.PriceField // field selector, close by default
	SameStartDate bool              // force the first trade onto the first record
	Policy        SelectionPolicy
	ReturnPolicy  ReturnPolicy
	Seed          int64 // 0 seeds from the clock
	Workers       int   // <= 1 runs Monte Carlo trials sequentially
}

// DefaultConfig returns the defaults for the given interval and amount
func DefaultConfig(interval int, amount float64) Config {
	return Config{
		Interval:      interval,
		Amount:        amount,
		Price:         domain.DefaultPriceField,
		SameStartDate: true,
		Policy:        PolicyRandom,
		ReturnPolicy:  ReturnNaN,
	}
}

// Portfolio is the output of ComputePortfolio
type Portfolio struct {
	Trades  *domain.TradeSeries
	Records []domain.PortfolioRecord
}

// SimulationRun is the output of RunSimulation
type SimulationRun struct {
	ID           string
	Seed         int64
	CurrentPrice float64
	Outcomes     domain.Outcomes
	Duration     time.Duration
}

// TradingSimulation binds a price series to a strategy configuration.
// Its random source is owned by the simulation; a fixed Seed makes the
// sequence of ComputePortfolio and RunSimulation results reproducible.
type TradingSimulation struct {
	series  *domain.PriceSeries
	cfg     Config
	sampler *WindowSampler
	log     zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewTradingSimulation validates cfg against the series
func NewTradingSimulation(series *domain.PriceSeries, cfg Config, log zerolog.Logger) (*TradingSimulation, error) {
	if cfg.Amount <= 0 || math.IsNaN(cfg.Amount) || math.IsInf(cfg.Amount, 0) {
		return nil, fmt.Errorf("%w: amount must be a positive number, got %v", domain.ErrInvalidConfiguration, cfg.Amount)
	}
	if cfg.Price == "" {
		cfg.Price = domain.DefaultPriceField
	}
	if cfg.ReturnPolicy == "" {
		cfg.ReturnPolicy = ReturnNaN
	}
	if _, err := ParseReturnPolicy(string(cfg.ReturnPolicy)); err != nil {
		return nil, err
	}

	sampler, err := NewWindowSampler(series, SamplerParams{
		Interval:      cfg.Interval,
		Field:         cfg.Price,
		SameStartDate: cfg.SameStartDate,
		Policy:        cfg.Policy,
	})
	if err != nil {
		return nil, err
	}
	cfg.Policy = sampler.Params().Policy

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &TradingSimulation{
		series:  series,
		cfg:     cfg,
		sampler: sampler,
		log: log.With().
			Str("component", "trading_simulation").
			Str("symbol", series.Symbol).
			Logger(),
		rng: rand.New(rand.NewSource(seed)),
	}, nil
}

// Config returns the effective configuration
func (s *TradingSimulation) Config() Config {
	return s.cfg
}

// Windows returns the number of trades every draw produces
func (s *TradingSimulation) Windows() int {
	return s.sampler.Windows()
}

// ComputePortfolio draws one trade schedule and returns the daily portfolio
// over the full price history.
func (s *TradingSimulation) ComputePortfolio(ctx context.Context) (*Portfolio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	prices, dates, err := s.sampler.Sample(s.rng)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to sample trades: %w", err)
	}

	trades, err := BuildTradeSeries(prices, dates, s.cfg.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to build trade series: %w", err)
	}

	records, err := Reconcile(s.series, s.cfg.Price, trades, s.cfg.ReturnPolicy)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile portfolio: %w", err)
	}

	s.log.Debug().
		Int("trades", trades.Len()).
		Int("records", len(records)).
		Msg("Computed portfolio")

	return &Portfolio{Trades: trades, Records: records}, nil
}

// RunSimulation runs n Monte Carlo trials valued at currentPrice
func (s *TradingSimulation) RunSimulation(
	ctx context.Context,
	currentPrice float64,
	n int,
	progress workers.ProgressCallback,
) (*SimulationRun, error) {
	s.mu.Lock()
	runSeed := s.rng.Int63()
	s.mu.Unlock()

	runID := uuid.New().String()
	log := s.log.With().Str("run_id", runID).Logger()
	timer := utils.NewTimer("monte_carlo_run", log)

	log.Info().
		Int("trials", n).
		Int("windows", s.sampler.Windows()).
		Int("workers", s.cfg.Workers).
		Float64("current_price", currentPrice).
		Msg("Starting Monte Carlo simulation")

	runner := NewMonteCarloRunner(s.sampler, s.cfg.Amount, s.cfg.Workers)
	outcomes, err := runner.Run(ctx, runSeed, currentPrice, n, progress)
	if err != nil {
		log.Error().Err(err).Msg("Monte Carlo simulation failed")
		return nil, fmt.Errorf("monte carlo simulation: %w", err)
	}

	duration := timer.Stop()
	log.Info().
		Int("trials", len(outcomes)).
		Dur("elapsed", duration).
		Msg("Monte Carlo simulation completed")

	return &SimulationRun{
		ID:           runID,
		Seed:         runSeed,
		CurrentPrice: currentPrice,
		Outcomes:     outcomes,
		Duration:     duration,
	}, nil
}
