package backtest

import (
	"testing"
	"time"

	"github.com/aristath/backtester/internal/domain"
	"github.com/stretchr/testify/require"
)

var baseDate = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

func dayN(n int) time.Time {
	return baseDate.AddDate(0, 0, n)
}

// makeSeries builds a daily series whose close equals prices[i] and whose
// open is one lower.
func makeSeries(t *testing.T, prices ...float64) *domain.PriceSeries {
	t.Helper()

	points := make([]domain.PricePoint, len(prices))
	for i, p := range prices {
		points[i] = domain.PricePoint{
			Date:     dayN(i),
			Open:     p - 1,
			High:     p + 1,
			Low:      p - 2,
			Close:    p,
			AdjClose: p,
		}
	}

	series, err := domain.NewPriceSeries("TEST", points)
	require.NoError(t, err)
	return series
}

// rampSeries returns closes start, start+1, ... of length n
func rampSeries(t *testing.T, start float64, n int) *domain.PriceSeries {
	t.Helper()

	prices := make([]float64, n)
	for i := range prices {
		prices[i] = start + float64(i)
	}
	return makeSeries(t, prices...)
}
