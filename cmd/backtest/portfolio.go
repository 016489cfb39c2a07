package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/modules/backtest"
	"github.com/google/subcommands"
)

type portfolioCmd struct {
	strategy strategyFlags
	trades   bool
}

func (*portfolioCmd) Name() string     { return "portfolio" }
func (*portfolioCmd) Synopsis() string { return "draw one trade schedule and print the daily portfolio" }
func (*portfolioCmd) Usage() string {
	return `backtest [-db <path>] portfolio (-s <symbol> | -csv <file>) [-interval n] [-amount x] [-trades]

  Splits the history into windows of -interval records, buys on one day of
  each window and prints the portfolio value and return on every date.
`
}

func (c *portfolioCmd) SetFlags(f *flag.FlagSet) {
	c.strategy.register(f)
	f.BoolVar(&c.trades, "trades", false, "Print the trades instead of the daily portfolio")
}

func (c *portfolioCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := c.strategy.config()
	if err != nil {
		fail(err)
		return subcommands.ExitUsageError
	}

	log := newLogger()
	series, err := c.strategy.loadSeries(log)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	sim, err := backtest.NewTradingSimulation(series, cfg, log)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	portfolio, err := sim.ComputePortfolio(ctx)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	if c.trades {
		err = printTrades(os.Stdout, portfolio.Trades)
	} else {
		err = printRecords(os.Stdout, portfolio.Records)
	}
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func printTrades(out io.Writer, trades *domain.TradeSeries) error {
	w := newTable(out)
	fmt.Fprintln(w, "Date\tPrice\tUnits\tTotal Units\tInvested\t")
	for i, e := range trades.Events {
		fmt.Fprintf(w, "%s\t%.4f\t%.6f\t%.6f\t%.2f\t\n",
			e.Date.Format(domain.DateLayout), e.Price, trades.Units[i], trades.CumulativeUnits[i], trades.CumulativeInvested[i])
	}
	return w.Flush()
}

func printRecords(out io.Writer, records []domain.PortfolioRecord) error {
	w := newTable(out)
	fmt.Fprintln(w, "Date\tPrice\tUnits\tInvested\tValue\tReturn\t")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%.4f\t%.6f\t%.2f\t%.2f\t%s\t\n",
			r.Date.Format(domain.DateLayout), r.Price, r.NumberOfUnits, r.InvestedToDate, r.PortfolioValue, formatReturn(r.Return))
	}
	return w.Flush()
}

func formatReturn(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", v*100)
}
