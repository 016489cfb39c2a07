// Package handlers provides HTTP handlers for backtest runs.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/evaluation/workers"
	"github.com/aristath/backtester/internal/modules/backtest"
	"github.com/aristath/backtester/internal/utils"
	"github.com/rs/zerolog"
)

// maxRequestBytes caps the size of a JSON request body
const maxRequestBytes = 1 << 20

// SeriesLoader loads the price history a backtest runs against
type SeriesLoader interface {
	LoadSeries(symbol string, from, to time.Time) (*domain.PriceSeries, error)
}

// Options carries the server-side limits and defaults of simulations
type Options struct {
	Workers       int
	MaxTrials     int
	DefaultTrials int
	ReturnPolicy  backtest.ReturnPolicy
	// OriginPatterns lists extra hosts allowed to open a simulation stream
	OriginPatterns []string
}

// Handler handles backtest HTTP requests
type Handler struct {
	loader SeriesLoader
	opts   Options
	log    zerolog.Logger
}

// NewHandler creates a new backtest handler
func NewHandler(loader SeriesLoader, opts Options, log zerolog.Logger) *Handler {
	if opts.DefaultTrials <= 0 {
		opts.DefaultTrials = 10000
	}
	if opts.MaxTrials <= 0 {
		opts.MaxTrials = 100000
	}
	if opts.ReturnPolicy == "" {
		opts.ReturnPolicy = backtest.ReturnNaN
	}

	return &Handler{
		loader: loader,
		opts:   opts,
		log:    log.With().Str("handler", "backtest").Logger(),
	}
}

// HandlePortfolio handles POST /api/backtest/portfolio
func (h *Handler) HandlePortfolio(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	sim, _, err := h.newSimulation(req)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	portfolio, err := sim.ComputePortfolio(r.Context())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	h.writeResponse(w, r, http.StatusOK, map[string]interface{}{
		"data": newPortfolioResponse(req.Symbol, sim.Config(), portfolio),
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleSimulate handles POST /api/backtest/simulate
func (h *Handler) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	resp, err := h.simulate(r.Context(), req, nil)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	h.writeResponse(w, r, http.StatusOK, map[string]interface{}{
		"data": resp,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// simulate runs one Monte Carlo request end to end
func (h *Handler) simulate(ctx context.Context, req SimulationRequest, progress workers.ProgressCallback) (*SimulationResponse, error) {
	trials, err := h.resolveTrials(req.Trials)
	if err != nil {
		return nil, err
	}

	sim, series, err := h.newSimulation(req)
	if err != nil {
		return nil, err
	}

	currentPrice, err := resolveCurrentPrice(req, series, sim.Config().Price)
	if err != nil {
		return nil, err
	}

	run, err := sim.RunSimulation(ctx, currentPrice, trials, progress)
	if err != nil {
		return nil, err
	}

	resp := newSimulationResponse(req.Symbol, sim, run, req.IncludeOutcomes)
	return &resp, nil
}

// newSimulation loads the series and builds the simulation a request describes
func (h *Handler) newSimulation(req SimulationRequest) (*backtest.TradingSimulation, *domain.PriceSeries, error) {
	if req.Symbol == "" {
		return nil, nil, fmt.Errorf("%w: symbol is required", domain.ErrInvalidConfiguration)
	}

	cfg, err := h.buildConfig(req)
	if err != nil {
		return nil, nil, err
	}

	from, err := parseOptionalDate(req.From)
	if err != nil {
		return nil, nil, err
	}
	to, err := parseOptionalDate(req.To)
	if err != nil {
		return nil, nil, err
	}

	series, err := h.loader.LoadSeries(req.Symbol, from, to)
	if err != nil {
		return nil, nil, err
	}

	sim, err := backtest.NewTradingSimulation(series, cfg, h.log)
	if err != nil {
		return nil, nil, err
	}

	return sim, series, nil
}

func (h *Handler) buildConfig(req SimulationRequest) (backtest.Config, error) {
	cfg := backtest.DefaultConfig(req.Interval, req.Amount)
	cfg.Seed = req.Seed
	cfg.Workers = h.opts.Workers
	cfg.ReturnPolicy = h.opts.ReturnPolicy

	if req.SameStartDate != nil {
		cfg.SameStartDate = *req.SameStartDate
	}

	field, err := domain.ParsePriceField(req.Price)
	if err != nil {
		return cfg, err
	}
	cfg.Price = field

	policy, err := backtest.ParseSelectionPolicy(req.Policy)
	if err != nil {
		return cfg, err
	}
	cfg.Policy = policy

	if req.ReturnPolicy != "" {
		rp, err := backtest.ParseReturnPolicy(req.ReturnPolicy)
		if err != nil {
			return cfg, err
		}
		cfg.ReturnPolicy = rp
	}

	return cfg, nil
}

// resolveTrials applies the default trial count and the server-side cap
func (h *Handler) resolveTrials(requested int) (int, error) {
	switch {
	case requested == 0:
		return h.opts.DefaultTrials, nil
	case requested < 0:
		return 0, fmt.Errorf("%w: trials must be positive, got %d", domain.ErrInvalidConfiguration, requested)
	case requested > h.opts.MaxTrials:
		return 0, fmt.Errorf("%w: trials %d exceeds the limit of %d", domain.ErrInvalidConfiguration, requested, h.opts.MaxTrials)
	default:
		return requested, nil
	}
}

func resolveCurrentPrice(req SimulationRequest, series *domain.PriceSeries, field domain.PriceField) (float64, error) {
	if req.CurrentPrice != nil {
		return *req.CurrentPrice, nil
	}

	last, ok := series.Last()
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrSeriesNotFound, series.Symbol)
	}
	price, err := last.Value(field)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(price) {
		return 0, fmt.Errorf("%w: latest %s price is not a number", domain.ErrInvalidConfiguration, field)
	}
	return price, nil
}

func parseOptionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := utils.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	return t, nil
}

func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request) (SimulationRequest, bool) {
	var req SimulationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return req, false
	}
	req.Symbol = utils.NormalizeSymbol(req.Symbol)
	return req, true
}

// writeFailure maps a domain error onto its status code
func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := utils.ErrorStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Backtest request failed")
		h.writeError(w, status, "Internal server error")
		return
	}

	h.log.Debug().Err(err).Str("path", r.URL.Path).Msg("Backtest request rejected")
	h.writeError(w, status, err.Error())
}

// writeResponse writes a JSON or MessagePack response
func (h *Handler) writeResponse(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	err := utils.WriteResponse(w, r, status, data)
	if err == nil {
		return
	}
	h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Failed to encode response")
	if errors.Is(err, utils.ErrEncodeResponse) {
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
