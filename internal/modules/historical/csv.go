package historical

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/utils"
)

// csvColumns maps normalized header names to DailyPrice fields
var csvColumns = map[string]string{
	"date":      "date",
	"open":      "open",
	"high":      "high",
	"low":       "low",
	"close":     "close",
	"adjclose":  "adj_close",
	"adj_close": "adj_close",
	"volume":    "volume",
}

// ParseCSV reads a daily price export with a header row
// (Date,Open,High,Low,Close,Adj Close,Volume). Column order is free and
// only Date and Close are required. Rows with "null" values, as emitted for
// non-trading days by some providers, are skipped.
func ParseCSV(r io.Reader) ([]DailyPrice, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty csv", domain.ErrInvalidConfiguration)
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")), " ", ""))
		if field, ok := csvColumns[key]; ok {
			index[field] = i
		}
	}
	if _, ok := index["date"]; !ok {
		return nil, fmt.Errorf("%w: csv has no Date column", domain.ErrInvalidConfiguration)
	}
	if _, ok := index["close"]; !ok {
		return nil, fmt.Errorf("%w: csv has no Close column", domain.ErrInvalidConfiguration)
	}

	prices := make([]DailyPrice, 0)
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}

		price, ok, err := parseRecord(record, index)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if ok {
			prices = append(prices, price)
		}
	}

	return prices, nil
}

func parseRecord(record []string, index map[string]int) (DailyPrice, bool, error) {
	get := func(field string) (string, bool) {
		i, ok := index[field]
		if !ok || i >= len(record) {
			return "", false
		}
		return strings.TrimSpace(record[i]), true
	}

	var p DailyPrice
	date, _ := get("date")
	if date == "" {
		return p, false, nil
	}
	t, err := utils.ParseDate(date)
	if err != nil {
		return p, false, err
	}
	p.Date = t.Format(domain.DateLayout)

	targets := map[string]*float64{
		"open":      &p.Open,
		"high":      &p.High,
		"low":       &p.Low,
		"close":     &p.Close,
		"adj_close": &p.AdjClose,
	}
	for field, target := range targets {
		raw, ok := get(field)
		if !ok || raw == "" {
			continue
		}
		if strings.EqualFold(raw, "null") {
			return p, false, nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return p, false, fmt.Errorf("invalid %s value %q: %w", field, raw, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return p, false, fmt.Errorf("%w: %s value %q is not a finite number",
				domain.ErrInvalidConfiguration, field, raw)
		}
		*target = v
	}

	if raw, ok := get("volume"); ok && raw != "" && !strings.EqualFold(raw, "null") {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return p, false, fmt.Errorf("invalid volume value %q: %w", raw, err)
		}
		volume := int64(v)
		p.Volume = &volume
	}

	// Missing OHLC columns fall back to close
	if _, ok := index["open"]; !ok {
		p.Open = p.Close
	}
	if _, ok := index["high"]; !ok {
		p.High = p.Close
	}
	if _, ok := index["low"]; !ok {
		p.Low = p.Close
	}
	if _, ok := index["adj_close"]; !ok {
		p.AdjClose = p.Close
	}

	return p, true, nil
}

// ToSeries orders prices by date and builds a price series.
// Duplicate dates keep the last row seen.
func ToSeries(symbol string, prices []DailyPrice) (*domain.PriceSeries, error) {
	if len(prices) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrSeriesNotFound, symbol)
	}

	byDate := make(map[int64]domain.PricePoint, len(prices))
	for _, p := range prices {
		t, err := utils.ParseDate(p.Date)
		if err != nil {
			return nil, err
		}
		point := domain.PricePoint{
			Date:     t,
			Open:     p.Open,
			High:     p.High,
			Low:      p.Low,
			Close:    p.Close,
			AdjClose: p.AdjClose,
		}
		if p.Volume != nil {
			point.Volume = *p.Volume
		}
		byDate[t.Unix()] = point
	}

	points := make([]domain.PricePoint, 0, len(byDate))
	for _, p := range byDate {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	return domain.NewPriceSeries(symbol, points)
}

// LoadCSVFile parses a CSV export from disk straight into a price series
func LoadCSVFile(path, symbol string) (*domain.PriceSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	prices, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return ToSeries(symbol, prices)
}
