package backtest

import (
	"fmt"
	"time"

	"github.com/aristath/backtester/internal/domain"
)

// BuildTradeSeries spreads amount evenly over the sampled trades and keeps
// running totals of units bought and capital invested.
func BuildTradeSeries(prices []float64, dates []time.Time, amount float64) (*domain.TradeSeries, error) {
	if len(prices) != len(dates) {
		return nil, fmt.Errorf("%w: %d sampled prices but %d sampled dates",
			domain.ErrShapeMismatch, len(prices), len(dates))
	}

	units, allocation, err := unitsPerTrade(prices, amount)
	if err != nil {
		return nil, err
	}

	m := len(prices)
	ts := &domain.TradeSeries{
		Events:             make([]domain.TradeEvent, m),
		Allocation:         allocation,
		Units:              units,
		CumulativeUnits:    make([]float64, m),
		CumulativeInvested: make([]float64, m),
	}

	var totalUnits, totalInvested float64
	for i := 0; i < m; i++ {
		totalUnits += units[i]
		totalInvested += allocation
		ts.Events[i] = domain.TradeEvent{Date: dates[i], Price: prices[i]}
		ts.CumulativeUnits[i] = totalUnits
		ts.CumulativeInvested[i] = totalInvested
	}

	return ts, nil
}

// TotalUnits returns only the final cumulative units for the sampled prices.
func TotalUnits(prices []float64, amount float64) (float64, error) {
	units, _, err := unitsPerTrade(prices, amount)
	if err != nil {
		return 0, err
	}

	var total float64
	for _, u := range units {
		total += u
	}
	return total, nil
}

func unitsPerTrade(prices []float64, amount float64) ([]float64, float64, error) {
	m := len(prices)
	if m == 0 {
		return nil, 0, fmt.Errorf("%w: no trades to allocate %.2f over", domain.ErrDivisionByZero, amount)
	}

	allocation := amount / float64(m)
	units := make([]float64, m)
	for i, price := range prices {
		if price == 0 {
			return nil, 0, fmt.Errorf("%w: zero price at trade %d", domain.ErrDivisionByZero, i)
		}
		units[i] = allocation / price
	}
	return units, allocation, nil
}
