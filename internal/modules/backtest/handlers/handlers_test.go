package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/backtester/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

// fakeLoader serves one ramp series of daily prices 10, 11, 12, ...
type fakeLoader struct {
	symbol string
	length int
}

func (f fakeLoader) LoadSeries(symbol string, from, to time.Time) (*domain.PriceSeries, error) {
	if symbol != f.symbol {
		return nil, fmt.Errorf("%w: %s", domain.ErrSeriesNotFound, symbol)
	}
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]domain.PricePoint, 0, f.length)
	for i := 0; i < f.length; i++ {
		p := 10 + float64(i)
		date := start.AddDate(0, 0, i)
		if (!from.IsZero() && date.Before(from)) || (!to.IsZero() && date.After(to)) {
			continue
		}
		points = append(points, domain.PricePoint{Date: date, Open: p, High: p, Low: p, Close: p, AdjClose: p})
	}
	return domain.NewPriceSeries(symbol, points)
}

func newTestHandler() *Handler {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	return NewHandler(fakeLoader{symbol: "SPY", length: 20}, Options{Workers: 4, MaxTrials: 500, DefaultTrials: 20}, logger)
}

func post(t *testing.T, handler http.HandlerFunc, body interface{}, accept string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(http.MethodPost, "/api/backtest", &buf)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

type portfolioEnvelope struct {
	Data PortfolioResponse `json:"data"`
}

type simulationEnvelope struct {
	Data SimulationResponse `json:"data" msgpack:"data"`
}

func TestHandlePortfolio(t *testing.T) {
	h := newTestHandler()

	t.Run("fixed schedule with undefined early returns", func(t *testing.T) {
		sameStart := false
		w := post(t, h.HandlePortfolio, SimulationRequest{
			Symbol: "spy", Interval: 5, Amount: 1000, Policy: "last", SameStartDate: &sameStart,
		}, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp portfolioEnvelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "SPY", resp.Data.Symbol)
		assert.Equal(t, "last", resp.Data.Policy)
		require.Len(t, resp.Data.Trades, 4)
		require.Len(t, resp.Data.Records, 20)

		assert.Equal(t, "2020-01-05", resp.Data.Trades[0].Date)
		assert.Equal(t, 14.0, resp.Data.Trades[0].Price)
		assert.Equal(t, 250.0, resp.Data.Allocation)

		for i := 0; i < 4; i++ {
			assert.Nil(t, resp.Data.Records[i].Return, "record %d precedes the first trade", i)
			assert.Zero(t, resp.Data.Records[i].NumberOfUnits)
		}
		require.NotNil(t, resp.Data.Records[4].Return)
		assert.InDelta(t, 0.0, *resp.Data.Records[4].Return, 1e-12)
		assert.InDelta(t, 1000.0, resp.Data.Records[19].InvestedToDate, 1e-9)
	})

	t.Run("same start date trades on the first record", func(t *testing.T) {
		w := post(t, h.HandlePortfolio, SimulationRequest{Symbol: "SPY", Interval: 5, Amount: 1000, Seed: 3}, "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp portfolioEnvelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "2020-01-01", resp.Data.Trades[0].Date)
		require.NotNil(t, resp.Data.Records[0].Return)
	})

	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{name: "invalid json", body: "{not json", status: http.StatusBadRequest},
		{name: "missing symbol", body: SimulationRequest{Interval: 5, Amount: 1}, status: http.StatusBadRequest},
		{name: "unknown symbol", body: SimulationRequest{Symbol: "QQQ", Interval: 5, Amount: 1}, status: http.StatusNotFound},
		{name: "zero interval", body: SimulationRequest{Symbol: "SPY", Amount: 1}, status: http.StatusBadRequest},
		{name: "interval longer than series", body: SimulationRequest{Symbol: "SPY", Interval: 21, Amount: 1}, status: http.StatusBadRequest},
		{name: "non-positive amount", body: SimulationRequest{Symbol: "SPY", Interval: 5}, status: http.StatusBadRequest},
		{name: "unknown price field", body: SimulationRequest{Symbol: "SPY", Interval: 5, Amount: 1, Price: "mid"}, status: http.StatusBadRequest},
		{name: "bad date", body: SimulationRequest{Symbol: "SPY", Interval: 5, Amount: 1, From: "soon"}, status: http.StatusBadRequest},
		{
			name:   "undefined return under error policy",
			body:   SimulationRequest{Symbol: "SPY", Interval: 5, Amount: 1, Policy: "last", SameStartDate: new(bool), ReturnPolicy: "error"},
			status: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, h.HandlePortfolio, tt.body, "")
			assert.Equal(t, tt.status, w.Code, w.Body.String())

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestHandleSimulate(t *testing.T) {
	h := newTestHandler()

	t.Run("summary and outcomes", func(t *testing.T) {
		w := post(t, h.HandleSimulate, SimulationRequest{
			Symbol: "SPY", Interval: 5, Amount: 1000, Seed: 42, Trials: 50, IncludeOutcomes: true,
		}, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp simulationEnvelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Data.RunID)
		assert.Equal(t, 4, resp.Data.Windows)
		assert.Equal(t, 29.0, resp.Data.CurrentPrice, "defaults to the latest close")
		assert.Equal(t, 50, resp.Data.Summary.Trials)
		require.Len(t, resp.Data.Outcomes, 50)

		// Rising prices: every schedule ends in profit
		assert.Zero(t, resp.Data.Summary.ProbabilityLoss)
		for _, o := range resp.Data.Outcomes {
			assert.InDelta(t, o.EndValue/1000-1, o.EndReturn, 1e-12)
		}
	})

	t.Run("default trials and no outcomes", func(t *testing.T) {
		price := 10.0
		w := post(t, h.HandleSimulate, SimulationRequest{Symbol: "SPY", Interval: 5, Amount: 1000, CurrentPrice: &price}, "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp simulationEnvelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 20, resp.Data.Summary.Trials)
		assert.Empty(t, resp.Data.Outcomes)
		assert.Equal(t, 1.0, resp.Data.Summary.ProbabilityLoss, "valued at the lowest price every trial loses")
	})

	t.Run("same seed reproduces the run", func(t *testing.T) {
		req := SimulationRequest{Symbol: "SPY", Interval: 5, Amount: 1000, Seed: 9, Trials: 30, IncludeOutcomes: true}

		var first, second simulationEnvelope
		require.NoError(t, json.Unmarshal(post(t, h.HandleSimulate, req, "").Body.Bytes(), &first))
		require.NoError(t, json.Unmarshal(post(t, h.HandleSimulate, req, "").Body.Bytes(), &second))

		assert.Equal(t, first.Data.Seed, second.Data.Seed)
		assert.Equal(t, first.Data.Outcomes, second.Data.Outcomes)
		assert.NotEqual(t, first.Data.RunID, second.Data.RunID)
	})

	t.Run("msgpack response", func(t *testing.T) {
		w := post(t, h.HandleSimulate, SimulationRequest{Symbol: "SPY", Interval: 5, Amount: 1000, Trials: 10, IncludeOutcomes: true}, "application/msgpack")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/msgpack", w.Header().Get("Content-Type"))

		var resp simulationEnvelope
		require.NoError(t, msgpack.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 10, resp.Data.Summary.Trials)
		assert.Len(t, resp.Data.Outcomes, 10)
	})

	tests := []struct {
		name   string
		body   SimulationRequest
		status int
	}{
		{name: "negative trials", body: SimulationRequest{Symbol: "SPY", Interval: 5, Amount: 1, Trials: -1}, status: http.StatusBadRequest},
		{name: "too many trials", body: SimulationRequest{Symbol: "SPY", Interval: 5, Amount: 1, Trials: 501}, status: http.StatusBadRequest},
		{name: "unknown policy", body: SimulationRequest{Symbol: "SPY", Interval: 5, Amount: 1, Policy: "weekly"}, status: http.StatusBadRequest},
		{name: "unknown symbol", body: SimulationRequest{Symbol: "QQQ", Interval: 5, Amount: 1}, status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, h.HandleSimulate, tt.body, "")
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestWriteResponse_UnencodableBody(t *testing.T) {
	h := newTestHandler()
	r := httptest.NewRequest(http.MethodPost, "/api/backtest/simulate", nil)
	w := httptest.NewRecorder()

	h.writeResponse(w, r, http.StatusOK, map[string]interface{}{"mean": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Internal server error", body["error"])
}
