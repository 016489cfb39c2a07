package backtest

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/evaluation/workers"
)

// MonteCarloRunner repeats the sampling draw to build the distribution of
// terminal outcomes at a given market price.
type MonteCarloRunner struct {
	sampler *WindowSampler
	amount  float64
	pool    *workers.WorkerPool // nil runs trials sequentially
}

// NewMonteCarloRunner creates a runner. workers <= 1 runs trials on the
// calling goroutine.
func NewMonteCarloRunner(sampler *WindowSampler, amount float64, numWorkers int) *MonteCarloRunner {
	r := &MonteCarloRunner{
		sampler: sampler,
		amount:  amount,
	}
	if numWorkers > 1 {
		r.pool = workers.NewWorkerPool(numWorkers)
	}
	return r
}

// TrialSeeds derives one seed per trial from the run seed. Trial i always
// gets the same seed for a given run seed, whatever the worker count.
func TrialSeeds(runSeed int64, n int) []int64 {
	master := rand.New(rand.NewSource(runSeed))
	seeds := make([]int64, n)
	for i := range seeds {
		seeds[i] = master.Int63()
	}
	return seeds
}

// EndValue runs a single trial: one fresh draw, valued at currentPrice.
func (r *MonteCarloRunner) EndValue(rng *rand.Rand, currentPrice float64) (domain.SimulationOutcome, error) {
	prices, err := r.sampler.SamplePrices(rng)
	if err != nil {
		return domain.SimulationOutcome{}, err
	}

	units, err := TotalUnits(prices, r.amount)
	if err != nil {
		return domain.SimulationOutcome{}, err
	}

	endValue := units * currentPrice
	return domain.SimulationOutcome{
		EndValue:  endValue,
		EndReturn: endValue/r.amount - 1,
	}, nil
}

// Run executes n independent trials. Any failing trial aborts the whole run.
func (r *MonteCarloRunner) Run(
	ctx context.Context,
	runSeed int64,
	currentPrice float64,
	n int,
	progress workers.ProgressCallback,
) (domain.Outcomes, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: trial count must be positive, got %d", domain.ErrInvalidConfiguration, n)
	}
	if math.IsNaN(currentPrice) || math.IsInf(currentPrice, 0) || currentPrice < 0 {
		return nil, fmt.Errorf("%w: current price must be a finite non-negative number, got %v",
			domain.ErrInvalidConfiguration, currentPrice)
	}
	if r.amount == 0 {
		return nil, fmt.Errorf("%w: end return needs a non-zero amount", domain.ErrDivisionByZero)
	}

	seeds := TrialSeeds(runSeed, n)
	trial := func(i int) (domain.SimulationOutcome, error) {
		return r.EndValue(rand.New(rand.NewSource(seeds[i])), currentPrice)
	}

	if r.pool != nil {
		outcomes, err := r.pool.RunTrials(ctx, n, trial, progress)
		if err != nil {
			return nil, err
		}
		return outcomes, nil
	}

	outcomes := make(domain.Outcomes, n)
	for i := range outcomes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcome, err := trial(i)
		if err != nil {
			return nil, fmt.Errorf("trial %d: %w", i, err)
		}
		outcomes[i] = outcome
		if progress != nil {
			progress(i+1, n, fmt.Sprintf("Simulating trial %d/%d", i+1, n))
		}
	}
	return outcomes, nil
}
