package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/aristath/backtester/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tradesAt(t *testing.T, series *domain.PriceSeries, amount float64, days ...int) *domain.TradeSeries {
	t.Helper()

	prices := make([]float64, len(days))
	dates := make([]time.Time, len(days))
	for i, d := range days {
		prices[i] = series.At(d).Close
		dates[i] = series.At(d).Date
	}

	ts, err := BuildTradeSeries(prices, dates, amount)
	require.NoError(t, err)
	return ts
}

func TestReconcile_ForwardFill(t *testing.T) {
	series := makeSeries(t, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19)
	trades := tradesAt(t, series, 100, 2, 6)

	records, err := Reconcile(series, domain.PriceClose, trades, ReturnNaN)
	require.NoError(t, err)
	require.Len(t, records, series.Len())

	for i, rec := range records {
		assert.True(t, rec.Date.Equal(dayN(i)))
		assert.Equal(t, series.At(i).Close, rec.Price)
		assert.InDelta(t, rec.Price*rec.NumberOfUnits, rec.PortfolioValue, 1e-12)

		switch {
		case i < 2:
			assert.Zero(t, rec.NumberOfUnits, "day %d precedes the first trade", i)
			assert.Zero(t, rec.InvestedToDate)
			assert.Zero(t, rec.PortfolioValue)
			assert.True(t, math.IsNaN(rec.Return), "day %d return should be NaN", i)
		case i < 6:
			assert.Equal(t, trades.CumulativeUnits[0], rec.NumberOfUnits, "day %d", i)
			assert.Equal(t, trades.CumulativeInvested[0], rec.InvestedToDate)
			assert.InDelta(t, rec.PortfolioValue/rec.InvestedToDate-1, rec.Return, 1e-12)
		default:
			assert.Equal(t, trades.CumulativeUnits[1], rec.NumberOfUnits, "day %d", i)
			assert.Equal(t, 100.0, rec.InvestedToDate)
		}
	}

	// 50/12 units bought on day 2, valued at 12 → break even
	assert.InDelta(t, 0.0, records[2].Return, 1e-12)
	// Day 3 at price 13
	assert.InDelta(t, 13.0/12.0-1, records[3].Return, 1e-12)
}

func TestReconcile_ReturnPolicies(t *testing.T) {
	series := makeSeries(t, 10, 11, 12, 13)
	trades := tradesAt(t, series, 100, 1, 3)

	records, err := Reconcile(series, domain.PriceClose, trades, ReturnZero)
	require.NoError(t, err)
	assert.Equal(t, 0.0, records[0].Return)
	assert.False(t, math.IsNaN(records[0].Return))

	_, err = Reconcile(series, domain.PriceClose, trades, ReturnError)
	assert.ErrorIs(t, err, domain.ErrUndefinedResult)

	// Trading from day 0 leaves nothing undefined
	fromStart := tradesAt(t, series, 100, 0, 2)
	records, err = Reconcile(series, domain.PriceClose, fromStart, ReturnError)
	require.NoError(t, err)
	assert.Equal(t, 0.0, records[0].Return)

	// Default is NaN
	records, err = Reconcile(series, domain.PriceClose, trades, "")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(records[0].Return))
}

func TestReconcile_TradeOutsideIndex(t *testing.T) {
	series := makeSeries(t, 10, 11, 12, 13)

	trades, err := BuildTradeSeries([]float64{10, 11}, []time.Time{dayN(0), dayN(40)}, 100)
	require.NoError(t, err)

	_, err = Reconcile(series, domain.PriceClose, trades, ReturnNaN)
	assert.ErrorIs(t, err, domain.ErrShapeMismatch)
}

func TestReconcile_TruncatedDaysKeepLastTrade(t *testing.T) {
	// 7 records, interval 3: the trailing record is never traded but still valued
	series := makeSeries(t, 10, 11, 12, 13, 14, 15, 16)
	trades := tradesAt(t, series, 60, 0, 4)

	records, err := Reconcile(series, domain.PriceClose, trades, ReturnNaN)
	require.NoError(t, err)

	last := records[6]
	assert.Equal(t, trades.TotalUnits(), last.NumberOfUnits)
	assert.Equal(t, 60.0, last.InvestedToDate)
	assert.InDelta(t, 16*trades.TotalUnits(), last.PortfolioValue, 1e-12)
}

func TestReconcile_NilInputs(t *testing.T) {
	series := makeSeries(t, 10)
	_, err := Reconcile(nil, domain.PriceClose, &domain.TradeSeries{}, ReturnNaN)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	_, err = Reconcile(series, domain.PriceClose, nil, ReturnNaN)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestParseReturnPolicy(t *testing.T) {
	p, err := ParseReturnPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ReturnNaN, p)

	p, err = ParseReturnPolicy("Zero")
	require.NoError(t, err)
	assert.Equal(t, ReturnZero, p)

	_, err = ParseReturnPolicy("inf")
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}
