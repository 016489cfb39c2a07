package backtest

import (
	"math/rand"
	"testing"
	"time"

	"github.com/aristath/backtester/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTradeSeries_SpecExample(t *testing.T) {
	prices := []float64{10, 17}
	dates := []time.Time{dayN(0), dayN(7)}

	ts, err := BuildTradeSeries(prices, dates, 100)
	require.NoError(t, err)

	assert.Equal(t, 2, ts.Len())
	assert.Equal(t, 50.0, ts.Allocation)
	assert.InDelta(t, 5.0, ts.CumulativeUnits[0], 1e-12)
	assert.InDelta(t, 50.0/10+50.0/17, ts.CumulativeUnits[1], 1e-12)
	assert.Equal(t, []float64{50, 100}, ts.CumulativeInvested)
	assert.InDelta(t, 50.0/10+50.0/17, ts.TotalUnits(), 1e-12)
	assert.Equal(t, domain.TradeEvent{Date: dayN(7), Price: 17}, ts.Events[1])
}

func TestBuildTradeSeries_Monotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 50; trial++ {
		m := 1 + rng.Intn(40)
		prices := make([]float64, m)
		dates := make([]time.Time, m)
		for i := range prices {
			prices[i] = 1 + rng.Float64()*200
			dates[i] = dayN(i)
		}
		amount := 1 + rng.Float64()*1e6

		ts, err := BuildTradeSeries(prices, dates, amount)
		require.NoError(t, err)

		var allocated float64
		for i := 0; i < m; i++ {
			allocated += ts.Allocation
			if i > 0 {
				assert.Greater(t, ts.CumulativeUnits[i], ts.CumulativeUnits[i-1])
				assert.Greater(t, ts.CumulativeInvested[i], ts.CumulativeInvested[i-1])
			}
		}
		assert.InDelta(t, amount, allocated, amount*1e-9, "allocations must sum to the budget")
		assert.InDelta(t, amount, ts.CumulativeInvested[m-1], amount*1e-9)
	}
}

func TestBuildTradeSeries_Errors(t *testing.T) {
	_, err := BuildTradeSeries(nil, nil, 100)
	assert.ErrorIs(t, err, domain.ErrDivisionByZero)

	_, err = BuildTradeSeries([]float64{10, 0}, []time.Time{dayN(0), dayN(1)}, 100)
	assert.ErrorIs(t, err, domain.ErrDivisionByZero)

	_, err = BuildTradeSeries([]float64{10, 11}, []time.Time{dayN(0)}, 100)
	assert.ErrorIs(t, err, domain.ErrShapeMismatch)
}

func TestTotalUnits(t *testing.T) {
	units, err := TotalUnits([]float64{10, 20, 40}, 120)
	require.NoError(t, err)
	assert.InDelta(t, 4.0+2.0+1.0, units, 1e-12)

	_, err = TotalUnits(nil, 120)
	assert.ErrorIs(t, err, domain.ErrDivisionByZero)

	_, err = TotalUnits([]float64{0}, 120)
	assert.ErrorIs(t, err, domain.ErrDivisionByZero)
}
