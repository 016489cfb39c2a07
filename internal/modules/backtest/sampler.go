package backtest

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/aristath/backtester/internal/domain"
)

// SelectionPolicy decides which record of each window becomes the trade date
type SelectionPolicy string

const (
	// PolicyRandom draws one index uniformly from each window
	PolicyRandom SelectionPolicy = "random"
	// PolicyFirst trades on the first record of every window (fixed schedule)
	PolicyFirst SelectionPolicy = "first"
	// PolicyLast trades on the last record of every window (fixed schedule)
	PolicyLast SelectionPolicy = "last"
)

// ParseSelectionPolicy resolves a policy name. Empty resolves to random.
func ParseSelectionPolicy(name string) (SelectionPolicy, error) {
	switch p := SelectionPolicy(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return PolicyRandom, nil
	case PolicyRandom, PolicyFirst, PolicyLast:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown selection policy %q", domain.ErrInvalidConfiguration, name)
	}
}

// WindowCount returns the number of complete windows of size interval in a
// series of the given length. Trailing records that do not fill a window are
// not counted.
func WindowCount(length, interval int) (int, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("%w: interval must be positive, got %d", domain.ErrInvalidConfiguration, interval)
	}
	windows := length / interval
	if windows == 0 {
		return 0, fmt.Errorf("%w: interval %d exceeds series length %d, no complete window",
			domain.ErrInvalidConfiguration, interval, length)
	}
	return windows, nil
}

// SamplerParams configures a WindowSampler
type SamplerParams struct {
	Interval      int
	Field         domain.PriceField
	SameStartDate bool
	Policy        SelectionPolicy
}

// WindowSampler partitions a price series into fixed-size windows and draws
// one trade per window. The price column is extracted once; every draw
// allocates its own output.
type WindowSampler struct {
	params  SamplerParams
	windows int
	prices  []float64   // usable prefix only
	dates   []time.Time // usable prefix only
}

// NewWindowSampler validates params against the series and truncates it to
// a whole number of windows.
func NewWindowSampler(series *domain.PriceSeries, params SamplerParams) (*WindowSampler, error) {
	if series == nil {
		return nil, fmt.Errorf("%w: nil price series", domain.ErrInvalidConfiguration)
	}
	if params.Policy == "" {
		params.Policy = PolicyRandom
	}
	if _, err := ParseSelectionPolicy(string(params.Policy)); err != nil {
		return nil, err
	}
	if params.Field == "" {
		params.Field = domain.DefaultPriceField
	}

	windows, err := WindowCount(series.Len(), params.Interval)
	if err != nil {
		return nil, err
	}

	values, err := series.Values(params.Field)
	if err != nil {
		return nil, err
	}

	usable := windows * params.Interval
	return &WindowSampler{
		params:  params,
		windows: windows,
		prices:  values[:usable],
		dates:   series.Dates()[:usable],
	}, nil
}

// Windows returns the number of complete windows
func (s *WindowSampler) Windows() int {
	return s.windows
}

// UsableLength returns the number of records that take part in sampling
func (s *WindowSampler) UsableLength() int {
	return len(s.prices)
}

// Params returns the sampler configuration
func (s *WindowSampler) Params() SamplerParams {
	return s.params
}

// Indices draws the within-window offset for every window.
// The random policy consumes exactly one draw per window from rng, including
// the first window when SameStartDate overrides it.
func (s *WindowSampler) Indices(rng *rand.Rand) ([]int, error) {
	idx := make([]int, s.windows)

	switch s.params.Policy {
	case PolicyRandom:
		if rng == nil {
			return nil, fmt.Errorf("%w: random selection requires a random source", domain.ErrInvalidConfiguration)
		}
		for w := range idx {
			idx[w] = rng.Intn(s.params.Interval)
		}
	case PolicyLast:
		for w := range idx {
			idx[w] = s.params.Interval - 1
		}
	case PolicyFirst:
		// zero value
	}

	if s.params.SameStartDate {
		idx[0] = 0
	}
	return idx, nil
}

// Sample draws one trade per window and returns the sampled prices and dates
// in window order.
func (s *WindowSampler) Sample(rng *rand.Rand) ([]float64, []time.Time, error) {
	idx, err := s.Indices(rng)
	if err != nil {
		return nil, nil, err
	}

	prices := make([]float64, s.windows)
	dates := make([]time.Time, s.windows)
	for w, offset := range idx {
		pos := w*s.params.Interval + offset
		prices[w] = s.prices[pos]
		dates[w] = s.dates[pos]
	}
	return prices, dates, nil
}

// SamplePrices is Sample without the dates, used on the Monte Carlo path.
func (s *WindowSampler) SamplePrices(rng *rand.Rand) ([]float64, error) {
	idx, err := s.Indices(rng)
	if err != nil {
		return nil, err
	}

	prices := make([]float64, s.windows)
	for w, offset := range idx {
		prices[w] = s.prices[w*s.params.Interval+offset]
	}
	return prices, nil
}

// Sample is the one-shot form of NewWindowSampler(...).Sample(rng).
func Sample(series *domain.PriceSeries, params SamplerParams, rng *rand.Rand) ([]float64, []time.Time, error) {
	sampler, err := NewWindowSampler(series, params)
	if err != nil {
		return nil, nil, err
	}
	return sampler.Sample(rng)
}
