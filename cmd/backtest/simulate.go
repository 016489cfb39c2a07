package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/modules/backtest"
	"github.com/google/subcommands"
)

type simulateCmd struct {
	strategy     strategyFlags
	trials       int
	workers      int
	currentPrice float64
	outcomes     bool
}

func (*simulateCmd) Name() string     { return "simulate" }
func (*simulateCmd) Synopsis() string { return "run a Monte Carlo simulation of random-day investing" }
func (*simulateCmd) Usage() string {
	return `backtest [-db <path>] simulate (-s <symbol> | -csv <file>) [-n trials] [-current-price x] [-outcomes]

  Repeats the random trade schedule -n times, values the units bought at
  -current-price (default: the latest price) and prints the distribution of
  end values and returns.
`
}

func (c *simulateCmd) SetFlags(f *flag.FlagSet) {
	c.strategy.register(f)
	f.IntVar(&c.trials, "n", 10000, "Number of trials")
	f.IntVar(&c.workers, "workers", runtime.NumCPU(), "Parallel trial workers, 1 runs sequentially")
	f.Float64Var(&c.currentPrice, "current-price", 0, "Price used to value the final holdings (default: latest price)")
	f.BoolVar(&c.outcomes, "outcomes", false, "Print every trial outcome instead of the summary")
}

func (c *simulateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := c.strategy.config()
	if err != nil {
		fail(err)
		return subcommands.ExitUsageError
	}
	cfg.Workers = c.workers

	log := newLogger()
	series, err := c.strategy.loadSeries(log)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	currentPrice, err := c.resolveCurrentPrice(f, series, cfg.Price)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	sim, err := backtest.NewTradingSimulation(series, cfg, log)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	run, err := sim.RunSimulation(ctx, currentPrice, c.trials, nil)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	if c.outcomes {
		err = printOutcomes(os.Stdout, run.Outcomes)
	} else {
		fmt.Printf("%s: %d trials of %d windows, amount %.2f valued at %.4f (seed %d)\n",
			series.Symbol, len(run.Outcomes), sim.Windows(), cfg.Amount, currentPrice, run.Seed)
		err = printSummary(os.Stdout, backtest.Summarize(run.Outcomes))
	}
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func printOutcomes(out io.Writer, outcomes domain.Outcomes) error {
	w := newTable(out)
	fmt.Fprintln(w, "Trial\tEnd Value\tEnd Return\t")
	for i, o := range outcomes {
		fmt.Fprintf(w, "%d\t%.2f\t%.4f\t\n", i, o.EndValue, o.EndReturn)
	}
	return w.Flush()
}

func printSummary(out io.Writer, s backtest.Summary) error {
	w := newTable(out)
	fmt.Fprintln(w, "\tMean\tStd Dev\tMin\tP5\tP25\tMedian\tP75\tP95\tMax\t")
	row := func(name, format string, d backtest.Distribution) {
		fmt.Fprintf(w, "%s\t", name)
		for _, v := range []float64{d.Mean, d.StdDev, d.Min, d.P5, d.P25, d.Median, d.P75, d.P95, d.Max} {
			fmt.Fprintf(w, format+"\t", v)
		}
		fmt.Fprintln(w)
	}
	row("End value", "%.2f", s.EndValue)
	row("End return", "%.4f", s.EndReturn)
	if err := w.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(out, "Probability of loss: %.2f%%\nCVaR 95%%: %.4f\n", s.ProbabilityLoss*100, s.CVaR95)
	return err
}

// resolveCurrentPrice returns -current-price when it was given, 0 included,
// and the latest price of the series otherwise
func (c *simulateCmd) resolveCurrentPrice(f *flag.FlagSet, series *domain.PriceSeries, field domain.PriceField) (float64, error) {
	explicit := false
	f.Visit(func(fl *flag.Flag) {
		if fl.Name == "current-price" {
			explicit = true
		}
	})
	if explicit {
		return c.currentPrice, nil
	}
	last, _ := series.Last()
	return last.Value(field)
}
