package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/modules/historical"
	"github.com/aristath/backtester/internal/utils"
	"github.com/google/subcommands"
)

type importCmd struct {
	symbol string
	source string
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import a daily price CSV export into the history database" }
func (*importCmd) Usage() string {
	return `backtest [-db <path>] import -s <symbol> [-source <name>] <file.csv>

  Imports Date,Open,High,Low,Close,Adj Close,Volume rows. Existing rows for
  the same dates are replaced.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "s", "", "Symbol the prices belong to")
	f.StringVar(&c.source, "source", "csv", "Source label stored with the symbol")
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	symbol := utils.NormalizeSymbol(c.symbol)
	if symbol == "" || f.NArg() != 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}

	file, err := os.Open(f.Arg(0))
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	defer file.Close()

	prices, err := historical.ParseCSV(file)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	if len(prices) == 0 {
		fail(fmt.Errorf("%w: %s contains no price rows", domain.ErrInvalidConfiguration, f.Arg(0)))
		return subcommands.ExitFailure
	}

	log := newLogger()
	db, history, err := openHistory(log)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	defer db.Close()

	if err := history.SyncHistoricalPrices(symbol, c.source, prices); err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	fmt.Printf("imported %d prices for %s (%s to %s)\n", len(prices), symbol, prices[0].Date, prices[len(prices)-1].Date)
	return subcommands.ExitSuccess
}
