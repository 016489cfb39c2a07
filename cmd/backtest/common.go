package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aristath/backtester/internal/database"
	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/modules/backtest"
	"github.com/aristath/backtester/internal/modules/historical"
	"github.com/aristath/backtester/internal/utils"
	"github.com/aristath/backtester/pkg/logger"
	"github.com/rs/zerolog"
)

var dbPath = flag.String("db", defaultDBPath(), "Path to the SQLite history database")
var logLevel = flag.String("log-level", "warn", "Log level (debug, info, warn, error)")

func defaultDBPath() string {
	dir := os.Getenv("BACKTEST_DATA_DIR")
	if dir == "" {
		dir = "./data"
	}
	return filepath.Join(dir, "history.db")
}

func newLogger() zerolog.Logger {
	return logger.New(logger.Config{Level: *logLevel, Pretty: true, Output: os.Stderr})
}

// openHistory opens and migrates the history database
func openHistory(log zerolog.Logger) (*database.DB, *historical.HistoryDB, error) {
	db, err := database.New(database.Config{Path: *dbPath, Profile: database.ProfileCache, Name: "history"})
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, historical.NewHistoryDB(db.Conn(), log), nil
}

// strategyFlags are shared by the portfolio and simulate commands
type strategyFlags struct {
	csv          string
	symbol       string
	from, to     string
	interval     int
	amount       float64
	price        string
	anyStart     bool
	policy       string
	returnPolicy string
	seed         int64
}

func (s *strategyFlags) register(f *flag.FlagSet) {
	f.StringVar(&s.csv, "csv", "", "Read prices from a CSV export instead of the database")
	f.StringVar(&s.symbol, "s", "", "Symbol to backtest")
	f.StringVar(&s.from, "from", "", "First date to include (YYYY-MM-DD)")
	f.StringVar(&s.to, "to", "", "Last date to include (YYYY-MM-DD)")
	f.IntVar(&s.interval, "interval", 21, "Window length in trading days")
	f.Float64Var(&s.amount, "amount", 10000, "Total capital to invest")
	f.StringVar(&s.price, "price", "close", "Price field (open, high, low, close, adj_close)")
	f.BoolVar(&s.anyStart, "any-start", false, "Also randomize the first trade instead of buying on the first day")
	f.StringVar(&s.policy, "policy", "random", "Trade day selection (random, first, last)")
	f.StringVar(&s.returnPolicy, "return-policy", "nan", "Return before the first trade (nan, zero, error)")
	f.Int64Var(&s.seed, "seed", 0, "Random seed, 0 seeds from the clock")
}

func (s *strategyFlags) config() (backtest.Config, error) {
	cfg := backtest.DefaultConfig(s.interval, s.amount)
	cfg.SameStartDate = !s.anyStart
	cfg.Seed = s.seed

	field, err := domain.ParsePriceField(s.price)
	if err != nil {
		return cfg, err
	}
	cfg.Price = field

	if cfg.Policy, err = backtest.ParseSelectionPolicy(s.policy); err != nil {
		return cfg, err
	}
	if cfg.ReturnPolicy, err = backtest.ParseReturnPolicy(s.returnPolicy); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadSeries reads the price series from the CSV file or the database
func (s *strategyFlags) loadSeries(log zerolog.Logger) (*domain.PriceSeries, error) {
	symbol := utils.NormalizeSymbol(s.symbol)

	if s.csv != "" {
		if symbol == "" {
			base := filepath.Base(s.csv)
			symbol = utils.NormalizeSymbol(strings.TrimSuffix(base, filepath.Ext(base)))
		}
		series, err := historical.LoadCSVFile(s.csv, symbol)
		if err != nil {
			return nil, err
		}
		return clip(series, s.from, s.to)
	}

	if symbol == "" {
		return nil, fmt.Errorf("%w: -s symbol or -csv file is required", domain.ErrInvalidConfiguration)
	}

	fromDate, err := parseFlagDate(s.from)
	if err != nil {
		return nil, err
	}
	toDate, err := parseFlagDate(s.to)
	if err != nil {
		return nil, err
	}

	db, history, err := openHistory(log)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return history.LoadSeries(symbol, fromDate, toDate)
}

// clip restricts a CSV series to the requested date range
func clip(series *domain.PriceSeries, from, to string) (*domain.PriceSeries, error) {
	if from == "" && to == "" {
		return series, nil
	}
	fromDate, err := parseFlagDate(from)
	if err != nil {
		return nil, err
	}
	toDate, err := parseFlagDate(to)
	if err != nil {
		return nil, err
	}

	points := make([]domain.PricePoint, 0, series.Len())
	for i := 0; i < series.Len(); i++ {
		p := series.At(i)
		if (!fromDate.IsZero() && p.Date.Before(fromDate)) || (!toDate.IsZero() && p.Date.After(toDate)) {
			continue
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no prices for %s between %q and %q", domain.ErrSeriesNotFound, series.Symbol, from, to)
	}
	return domain.NewPriceSeries(series.Symbol, points)
}

func parseFlagDate(s string) (t time.Time, err error) {
	if s == "" {
		return t, nil
	}
	if t, err = utils.ParseDate(s); err != nil {
		return t, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	return t, nil
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
