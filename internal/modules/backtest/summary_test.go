package backtest

import (
	"testing"

	"github.com/aristath/backtester/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	outcomes := make(domain.Outcomes, 20)
	for i := range outcomes {
		value := 900 + 10*float64(i)
		outcomes[i] = domain.SimulationOutcome{EndValue: value, EndReturn: value/1000 - 1}
	}

	summary := Summarize(outcomes)

	assert.Equal(t, 20, summary.Trials)
	assert.InDelta(t, 995.0, summary.EndValue.Mean, 1e-9)
	assert.Equal(t, 900.0, summary.EndValue.Min)
	assert.Equal(t, 1090.0, summary.EndValue.Max)
	assert.Equal(t, 990.0, summary.EndValue.Median)
	assert.LessOrEqual(t, summary.EndValue.P5, summary.EndValue.P25)
	assert.LessOrEqual(t, summary.EndValue.P75, summary.EndValue.P95)

	assert.InDelta(t, -0.1, summary.EndReturn.Min, 1e-12)
	assert.InDelta(t, 0.5, summary.ProbabilityLoss, 1e-12)
	assert.InDelta(t, -0.1, summary.CVaR95, 1e-12, "worst 5% of 20 trials is the single lowest")
}

func TestSummarize_Empty(t *testing.T) {
	summary := Summarize(nil)
	assert.Zero(t, summary.Trials)
	assert.Zero(t, summary.EndValue.Mean)
	assert.Zero(t, summary.ProbabilityLoss)
}
