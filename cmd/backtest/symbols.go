package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

type symbolsCmd struct{}

func (*symbolsCmd) Name() string     { return "symbols" }
func (*symbolsCmd) Synopsis() string { return "list symbols stored in the history database" }
func (*symbolsCmd) Usage() string {
	return `backtest [-db <path>] symbols
`
}

func (*symbolsCmd) SetFlags(*flag.FlagSet) {}

func (*symbolsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	db, history, err := openHistory(newLogger())
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	defer db.Close()

	symbols, err := history.ListSymbols()
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	w := newTable(os.Stdout)
	fmt.Fprintln(w, "Symbol\tSource\tPrices\tFirst\tLast\t")
	for _, s := range symbols {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t\n", s.Symbol, s.Source, s.Count, s.FirstDate, s.LastDate)
	}
	if err := w.Flush(); err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
