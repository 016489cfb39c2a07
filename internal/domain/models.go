// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// PriceField selects which price column of a PricePoint a simulation trades on
type PriceField string

const (
	PriceOpen     PriceField = "open"
	PriceHigh     PriceField = "high"
	PriceLow      PriceField = "low"
	PriceClose    PriceField = "close"
	PriceAdjClose PriceField = "adj_close"
)

// DefaultPriceField is used when no field is configured
const DefaultPriceField = PriceClose

// ParsePriceField resolves a field name. Empty resolves to close.
func ParsePriceField(name string) (PriceField, error) {
	switch f := PriceField(strings.ToLower(strings.TrimSpace(name))); f {
	case "":
		return DefaultPriceField, nil
	case PriceOpen, PriceHigh, PriceLow, PriceClose, PriceAdjClose:
		return f, nil
	case "adjclose", "adj close":
		return PriceAdjClose, nil
	default:
		return "", fmt.Errorf("%w: unknown price field %q", ErrInvalidConfiguration, name)
	}
}

// PricePoint is one daily OHLCV record
type PricePoint struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adj_close"`
	Volume   int64     `json:"volume"`
}

// Value returns the column named by field.
func (p PricePoint) Value(field PriceField) (float64, error) {
	switch field {
	case PriceOpen:
		return p.Open, nil
	case PriceHigh:
		return p.High, nil
	case PriceLow:
		return p.Low, nil
	case PriceClose, "":
		return p.Close, nil
	case PriceAdjClose:
		return p.AdjClose, nil
	default:
		return 0, fmt.Errorf("%w: unknown price field %q", ErrInvalidConfiguration, field)
	}
}

// PriceSeries is a date-ordered price history for a single instrument.
// It is never mutated once built; simulations only read it.
type PriceSeries struct {
	Symbol string
	points []PricePoint
}

// NewPriceSeries validates that dates are strictly increasing and copies the points.
func NewPriceSeries(symbol string, points []PricePoint) (*PriceSeries, error) {
	for i := 1; i < len(points); i++ {
		if !points[i].Date.After(points[i-1].Date) {
			return nil, fmt.Errorf("%w: dates not strictly increasing at index %d (%s after %s)",
				ErrInvalidConfiguration, i,
				points[i].Date.Format(DateLayout), points[i-1].Date.Format(DateLayout))
		}
	}

	owned := make([]PricePoint, len(points))
	copy(owned, points)

	return &PriceSeries{Symbol: symbol, points: owned}, nil
}

// Len returns the number of records
func (s *PriceSeries) Len() int {
	return len(s.points)
}

// At returns the i-th record
func (s *PriceSeries) At(i int) PricePoint {
	return s.points[i]
}

// Dates returns a copy of the date index
func (s *PriceSeries) Dates() []time.Time {
	dates := make([]time.Time, len(s.points))
	for i, p := range s.points {
		dates[i] = p.Date
	}
	return dates
}

// Values extracts the named price column in date order
func (s *PriceSeries) Values(field PriceField) ([]float64, error) {
	values := make([]float64, len(s.points))
	for i, p := range s.points {
		v, err := p.Value(field)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// First returns the earliest record; ok is false for an empty series
func (s *PriceSeries) First() (PricePoint, bool) {
	if len(s.points) == 0 {
		return PricePoint{}, false
	}
	return s.points[0], true
}

// Last returns the most recent record; ok is false for an empty series
func (s *PriceSeries) Last() (PricePoint, bool) {
	if len(s.points) == 0 {
		return PricePoint{}, false
	}
	return s.points[len(s.points)-1], true
}

// DateLayout is the calendar date format used at every boundary (CSV, SQL, JSON)
const DateLayout = "2006-01-02"

// TradeEvent is the single simulated purchase inside one window
type TradeEvent struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// TradeSeries holds the sampled trades with their running totals,
// all slices indexed by trade order.
type TradeSeries struct {
	Events             []TradeEvent `json:"events"`
	Allocation         float64      `json:"allocation"` // capital deployed per trade
	Units              []float64    `json:"units"`
	CumulativeUnits    []float64    `json:"cumulative_units"`
	CumulativeInvested []float64    `json:"cumulative_invested"`
}

// Len returns the number of trades
func (t *TradeSeries) Len() int {
	return len(t.Events)
}

// TotalUnits returns the units held after the last trade
func (t *TradeSeries) TotalUnits() float64 {
	if len(t.CumulativeUnits) == 0 {
		return 0
	}
	return t.CumulativeUnits[len(t.CumulativeUnits)-1]
}

// PortfolioRecord is the portfolio state on one date of the price index.
// HTTP responses go through the backtest RecordDTO, which encodes a NaN return as null.
type PortfolioRecord struct {
	Date           time.Time `json:"date" msgpack:"date"`
	Price          float64   `json:"price" msgpack:"price"`
	NumberOfUnits  float64   `json:"number_of_units" msgpack:"number_of_units"`
	InvestedToDate float64   `json:"invested_to_date" msgpack:"invested_to_date"`
	PortfolioValue float64   `json:"portfolio_value" msgpack:"portfolio_value"`
	Return         float64   `json:"return" msgpack:"return"` // may be NaN before the first trade, see ReturnPolicy
}

// SimulationOutcome is the terminal result of one Monte Carlo trial
type SimulationOutcome struct {
	EndValue  float64 `json:"end_value" msgpack:"end_value"`
	EndReturn float64 `json:"end_return" msgpack:"end_return"`
}

// Outcomes is the collection of trial results returned by a simulation run
type Outcomes []SimulationOutcome

// EndValues returns the end values in trial order
func (o Outcomes) EndValues() []float64 {
	values := make([]float64, len(o))
	for i, outcome := range o {
		values[i] = outcome.EndValue
	}
	return values
}

// EndReturns returns the end returns in trial order
func (o Outcomes) EndReturns() []float64 {
	returns := make([]float64, len(o))
	for i, outcome := range o {
		returns[i] = outcome.EndReturn
	}
	return returns
}
