package backtest

import (
	"fmt"
	"math"
	"strings"

	"github.com/aristath/backtester/internal/domain"
)

// ReturnPolicy decides what the return column holds on dates where nothing
// has been invested yet, where value/invested - 1 is 0/0.
type ReturnPolicy string

const (
	// ReturnNaN stores NaN before the first trade
	ReturnNaN ReturnPolicy = "nan"
	// ReturnZero stores 0 before the first trade
	ReturnZero ReturnPolicy = "zero"
	// ReturnError fails the reconciliation if any date precedes the first trade
	ReturnError ReturnPolicy = "error"
)

// ParseReturnPolicy resolves a policy name. Empty resolves to nan.
func ParseReturnPolicy(name string) (ReturnPolicy, error) {
	switch p := ReturnPolicy(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return ReturnNaN, nil
	case ReturnNaN, ReturnZero, ReturnError:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown return policy %q", domain.ErrInvalidConfiguration, name)
	}
}

// Reconcile lays the sparse trade series onto every date of the price
// history. Each date carries the cumulative units and invested capital of
// the latest trade on or before it; dates before the first trade carry zero.
//
// Trade dates must appear in the series, in order.
func Reconcile(
	series *domain.PriceSeries,
	field domain.PriceField,
	trades *domain.TradeSeries,
	policy ReturnPolicy,
) ([]domain.PortfolioRecord, error) {
	if series == nil || trades == nil {
		return nil, fmt.Errorf("%w: nil series or trades", domain.ErrInvalidConfiguration)
	}
	if len(trades.CumulativeUnits) != trades.Len() || len(trades.CumulativeInvested) != trades.Len() {
		return nil, fmt.Errorf("%w: trade columns have different lengths", domain.ErrShapeMismatch)
	}
	if policy == "" {
		policy = ReturnNaN
	}

	records := make([]domain.PortfolioRecord, series.Len())

	var units, invested float64
	next := 0
	for i := range records {
		point := series.At(i)
		price, err := point.Value(field)
		if err != nil {
			return nil, err
		}

		if next < trades.Len() && trades.Events[next].Date.Equal(point.Date) {
			units = trades.CumulativeUnits[next]
			invested = trades.CumulativeInvested[next]
			next++
		}

		value := price * units
		ret, err := portfolioReturn(value, invested, policy)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", point.Date.Format(domain.DateLayout), err)
		}

		records[i] = domain.PortfolioRecord{
			Date:           point.Date,
			Price:          price,
			NumberOfUnits:  units,
			InvestedToDate: invested,
			PortfolioValue: value,
			Return:         ret,
		}
	}

	if next != trades.Len() {
		return nil, fmt.Errorf("%w: trade on %s not found in price index",
			domain.ErrShapeMismatch, trades.Events[next].Date.Format(domain.DateLayout))
	}

	return records, nil
}

func portfolioReturn(value, invested float64, policy ReturnPolicy) (float64, error) {
	if invested != 0 {
		return value/invested - 1, nil
	}

	switch policy {
	case ReturnZero:
		return 0, nil
	case ReturnError:
		return 0, fmt.Errorf("%w: return before any capital is invested", domain.ErrUndefinedResult)
	default:
		return math.NaN(), nil
	}
}
