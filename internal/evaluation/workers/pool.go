// Package workers runs independent simulation trials in parallel.
package workers

import (
	"context"
	"fmt"
	"sync"

	"github.com/aristath/backtester/internal/domain"
)

// DefaultWorkers is used when a pool is created with a non-positive size
const DefaultWorkers = 10

// TrialFunc computes the outcome of trial index i. It must not touch state
// shared with other trials.
type TrialFunc func(i int) (domain.SimulationOutcome, error)

// ProgressCallback is invoked once per completed trial, always from the
// goroutine that called RunTrials.
type ProgressCallback func(current, total int, message string)

// WorkerPool manages a pool of worker goroutines for parallel trial execution
type WorkerPool struct {
	numWorkers int
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = DefaultWorkers
	}
	return &WorkerPool{
		numWorkers: numWorkers,
	}
}

// Size returns the number of workers
func (wp *WorkerPool) Size() int {
	return wp.numWorkers
}

// RunTrials executes n trials across the pool.
//
// Results are returned in trial-index order regardless of completion order.
// The first trial error, or cancellation of ctx, stops the dispatch of further
// trials and is returned with no partial results.
func (wp *WorkerPool) RunTrials(
	ctx context.Context,
	n int,
	trial TrialFunc,
	progress ProgressCallback,
) ([]domain.SimulationOutcome, error) {
	if n <= 0 {
		return []domain.SimulationOutcome{}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int, wp.numWorkers)
	results := make(chan resultItem, wp.numWorkers)

	numActualWorkers := wp.numWorkers
	if n < numActualWorkers {
		numActualWorkers = n // Don't spawn more workers than trials
	}

	var wg sync.WaitGroup
	for i := 0; i < numActualWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, jobs, results, trial)
		}()
	}

	// Feed jobs until done or cancelled
	go func() {
		defer close(jobs)
		for i := 0; i < n; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]domain.SimulationOutcome, n)
	completed := 0
	var firstErr error

	for result := range results {
		if result.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("trial %d: %w", result.index, result.err)
				cancel()
			}
			continue
		}
		if firstErr != nil {
			continue
		}

		outcomes[result.index] = result.outcome
		completed++
		if progress != nil {
			progress(completed, n, fmt.Sprintf("Simulating trial %d/%d", completed, n))
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if completed < n {
		// Dispatch stopped early without a trial error: the parent context ended
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %d of %d trials completed", domain.ErrShapeMismatch, completed, n)
	}

	return outcomes, nil
}

// resultItem represents the result of one trial
type resultItem struct {
	index   int
	outcome domain.SimulationOutcome
	err     error
}

// worker is the worker goroutine that processes trial jobs
func worker(
	ctx context.Context,
	jobs <-chan int,
	results chan<- resultItem,
	trial TrialFunc,
) {
	for idx := range jobs {
		if ctx.Err() != nil {
			continue // drain
		}

		outcome, err := trial(idx)
		results <- resultItem{
			index:   idx,
			outcome: outcome,
			err:     err,
		}
	}
}
