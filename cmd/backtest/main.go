// Command backtest runs random-day periodic investment backtests from the
// command line, against the history database or a CSV export.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	Register(commander)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// Register the subcommands.
func Register(c *subcommands.Commander) {
	c.Register(&importCmd{}, "history")
	c.Register(&symbolsCmd{}, "history")

	c.Register(&portfolioCmd{}, "backtest")
	c.Register(&simulateCmd{}, "backtest")
}
