package handlers

import (
	"math"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/modules/backtest"
)

// SimulationRequest is the body of both backtest endpoints and the first
// frame of a simulation stream
type SimulationRequest struct {
	Symbol        string  `json:"symbol"`
	From          string  `json:"from,omitempty"`
	To            string  `json:"to,omitempty"`
	Interval      int     `json:"interval"`
	Amount        float64 `json:"amount"`
	Price         string  `json:"price,omitempty"`
	SameStartDate *bool   `json:"same_start_date,omitempty"` // defaults to true
	Policy        string  `json:"policy,omitempty"`
	ReturnPolicy  string  `json:"return_policy,omitempty"`
	Seed          int64   `json:"seed,omitempty"`

	// Simulation only
	CurrentPrice    *float64 `json:"current_price,omitempty"` // defaults to the latest price in the series
	Trials          int      `json:"trials,omitempty"`
	IncludeOutcomes bool     `json:"include_outcomes,omitempty"`
}

// TradeDTO is one sampled trade
type TradeDTO struct {
	Date               string  `json:"date" msgpack:"date"`
	Price              float64 `json:"price" msgpack:"price"`
	Units              float64 `json:"units" msgpack:"units"`
	CumulativeUnits    float64 `json:"cumulative_units" msgpack:"cumulative_units"`
	CumulativeInvested float64 `json:"cumulative_invested" msgpack:"cumulative_invested"`
}

// RecordDTO is one row of the daily portfolio table.
// Return is null where it is undefined (before the first trade).
type RecordDTO struct {
	Date           string   `json:"date" msgpack:"date"`
	Price          float64  `json:"price" msgpack:"price"`
	NumberOfUnits  float64  `json:"number_of_units" msgpack:"number_of_units"`
	InvestedToDate float64  `json:"invested_to_date" msgpack:"invested_to_date"`
	PortfolioValue float64  `json:"portfolio_value" msgpack:"portfolio_value"`
	Return         *float64 `json:"return" msgpack:"return"`
}

// PortfolioResponse is the payload of POST /api/backtest/portfolio
type PortfolioResponse struct {
	Symbol     string      `json:"symbol" msgpack:"symbol"`
	Interval   int         `json:"interval" msgpack:"interval"`
	Amount     float64     `json:"amount" msgpack:"amount"`
	Policy     string      `json:"policy" msgpack:"policy"`
	Allocation float64     `json:"allocation" msgpack:"allocation"`
	TotalUnits float64     `json:"total_units" msgpack:"total_units"`
	Trades     []TradeDTO  `json:"trades" msgpack:"trades"`
	Records    []RecordDTO `json:"records" msgpack:"records"`
}

// SimulationResponse is the payload of POST /api/backtest/simulate
type SimulationResponse struct {
	RunID        string                     `json:"run_id" msgpack:"run_id"`
	Symbol       string                     `json:"symbol" msgpack:"symbol"`
	Seed         int64                      `json:"seed" msgpack:"seed"`
	Interval     int                        `json:"interval" msgpack:"interval"`
	Amount       float64                    `json:"amount" msgpack:"amount"`
	Windows      int                        `json:"windows" msgpack:"windows"`
	CurrentPrice float64                    `json:"current_price" msgpack:"current_price"`
	DurationMs   int64                      `json:"duration_ms" msgpack:"duration_ms"`
	Summary      backtest.Summary           `json:"summary" msgpack:"summary"`
	Outcomes     []domain.SimulationOutcome `json:"outcomes,omitempty" msgpack:"outcomes,omitempty"`
}

func newPortfolioResponse(symbol string, cfg backtest.Config, p *backtest.Portfolio) PortfolioResponse {
	trades := make([]TradeDTO, p.Trades.Len())
	for i, e := range p.Trades.Events {
		trades[i] = TradeDTO{
			Date:               e.Date.Format(domain.DateLayout),
			Price:              e.Price,
			Units:              p.Trades.Units[i],
			CumulativeUnits:    p.Trades.CumulativeUnits[i],
			CumulativeInvested: p.Trades.CumulativeInvested[i],
		}
	}

	records := make([]RecordDTO, len(p.Records))
	for i, rec := range p.Records {
		records[i] = RecordDTO{
			Date:           rec.Date.Format(domain.DateLayout),
			Price:          rec.Price,
			NumberOfUnits:  rec.NumberOfUnits,
			InvestedToDate: rec.InvestedToDate,
			PortfolioValue: rec.PortfolioValue,
			Return:         finiteOrNil(rec.Return),
		}
	}

	return PortfolioResponse{
		Symbol:     symbol,
		Interval:   cfg.Interval,
		Amount:     cfg.Amount,
		Policy:     string(cfg.Policy),
		Allocation: p.Trades.Allocation,
		TotalUnits: p.Trades.TotalUnits(),
		Trades:     trades,
		Records:    records,
	}
}

func newSimulationResponse(symbol string, sim *backtest.TradingSimulation, run *backtest.SimulationRun, includeOutcomes bool) SimulationResponse {
	cfg := sim.Config()
	resp := SimulationResponse{
		RunID:        run.ID,
		Symbol:       symbol,
		Seed:         run.Seed,
		Interval:     cfg.Interval,
		Amount:       cfg.Amount,
		Windows:      sim.Windows(),
		CurrentPrice: run.CurrentPrice,
		DurationMs:   run.Duration.Milliseconds(),
		Summary:      backtest.Summarize(run.Outcomes),
	}
	if includeOutcomes {
		resp.Outcomes = run.Outcomes
	}
	return resp
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
