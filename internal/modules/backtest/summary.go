package backtest

import (
	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/pkg/formulas"
)

// Distribution describes one column of the Monte Carlo output
type Distribution struct {
	Mean   float64 `json:"mean" msgpack:"mean"`
	StdDev float64 `json:"std_dev" msgpack:"std_dev"`
	Min    float64 `json:"min" msgpack:"min"`
	P5     float64 `json:"p5" msgpack:"p5"`
	P25    float64 `json:"p25" msgpack:"p25"`
	Median float64 `json:"median" msgpack:"median"`
	P75    float64 `json:"p75" msgpack:"p75"`
	P95    float64 `json:"p95" msgpack:"p95"`
	Max    float64 `json:"max" msgpack:"max"`
}

// Summary is a descriptive digest of a simulation run
type Summary struct {
	Trials          int          `json:"trials" msgpack:"trials"`
	EndValue        Distribution `json:"end_value" msgpack:"end_value"`
	EndReturn       Distribution `json:"end_return" msgpack:"end_return"`
	ProbabilityLoss float64      `json:"probability_loss" msgpack:"probability_loss"` // share of trials with end_return < 0
	CVaR95          float64      `json:"cvar_95" msgpack:"cvar_95"`                   // mean of the worst 5% of end returns
}

// Summarize computes descriptive statistics over the outcomes
func Summarize(outcomes domain.Outcomes) Summary {
	returns := outcomes.EndReturns()
	return Summary{
		Trials:          len(outcomes),
		EndValue:        describe(outcomes.EndValues()),
		EndReturn:       describe(returns),
		ProbabilityLoss: formulas.FractionBelow(returns, 0),
		CVaR95:          formulas.CalculateCVaR(returns, 0.95),
	}
}

func describe(data []float64) Distribution {
	sorted := formulas.Sorted(data)
	return Distribution{
		Mean:   formulas.Mean(data),
		StdDev: formulas.StdDev(data),
		Min:    formulas.Min(data),
		P5:     formulas.PercentileSorted(sorted, 0.05),
		P25:    formulas.PercentileSorted(sorted, 0.25),
		Median: formulas.PercentileSorted(sorted, 0.50),
		P75:    formulas.PercentileSorted(sorted, 0.75),
		P95:    formulas.PercentileSorted(sorted, 0.95),
		Max:    formulas.Max(data),
	}
}
