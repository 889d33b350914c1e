// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

// Package budget estimates agent cost from token usage and enforces the
// per-session and per-day spend ceilings.
package budget

import (
	"math"
	"strings"

	"github.com/tablewise/aiwaiter/internal/provider"
)

// Price is USD per million tokens.
type Price struct {
	InputPerMillion  float64 `mapstructure:"input_per_million"`
	OutputPerMillion float64 `mapstructure:"output_per_million"`
}

// DefaultPrice is charged for models missing from the table. It matches the
// most expensive tier so unknown models never under-count.
var DefaultPrice = Price{InputPerMillion: 15, OutputPerMillion: 75}

var defaultPrices = map[string]Price{
	"claude-opus-4":     {InputPerMillion: 15, OutputPerMillion: 75},
	"claude-sonnet-4":   {InputPerMillion: 3, OutputPerMillion: 15},
	"claude-3-5-sonnet": {InputPerMillion: 3, OutputPerMillion: 15},
	"claude-3-5-haiku":  {InputPerMillion: 0.8, OutputPerMillion: 4},
	"claude-haiku-4":    {InputPerMillion: 1, OutputPerMillion: 5},
	"gpt-4o":            {InputPerMillion: 2.5, OutputPerMillion: 10},
	"gpt-4o-mini":       {InputPerMillion: 0.15, OutputPerMillion: 0.6},
	"gpt-4.1":           {InputPerMillion: 2, OutputPerMillion: 8},
	"gpt-4.1-mini":      {InputPerMillion: 0.4, OutputPerMillion: 1.6},
	"o1":                {InputPerMillion: 15, OutputPerMillion: 60},
	"o1-mini":           {InputPerMillion: 3, OutputPerMillion: 12},
	"gemini-1.5-pro":    {InputPerMillion: 1.25, OutputPerMillion: 5},
	"gemini-1.5-flash":  {InputPerMillion: 0.075, OutputPerMillion: 0.3},
	"gemini-2.0-flash":  {InputPerMillion: 0.1, OutputPerMillion: 0.4},
	"gemini-2.5-pro":    {InputPerMillion: 1.25, OutputPerMillion: 10},
	"gemini-2.5-flash":  {InputPerMillion: 0.3, OutputPerMillion: 2.5},
}

// PriceTable maps model ids to prices.
type PriceTable struct {
	prices   map[string]Price
	fallback Price
}

// NewPriceTable returns the built-in prices with overrides merged on top.
// Override keys may carry a provider prefix ("openai/gpt-4o").
func NewPriceTable(overrides map[string]Price) *PriceTable {
	prices := make(map[string]Price, len(defaultPrices)+len(overrides))
	for id, p := range defaultPrices {
		prices[id] = p
	}
	for id, p := range overrides {
		prices[normalizeModel(id)] = p
	}
	return &PriceTable{prices: prices, fallback: DefaultPrice}
}

// Lookup returns the price for model. Exact ids win; otherwise the longest
// known id that prefixes model is used, so dated snapshots resolve to their
// family. Unknown models get DefaultPrice.
func (t *PriceTable) Lookup(model string) Price {
	id := normalizeModel(model)
	if p, ok := t.prices[id]; ok {
		return p
	}
	best, bestLen := t.fallback, 0
	for known, p := range t.prices {
		if len(known) > bestLen && strings.HasPrefix(id, known) {
			best, bestLen = p, len(known)
		}
	}
	return best
}

// EstimateCostUSD prices usage for model, rounded to six decimals. A nil
// usage costs nothing.
func (t *PriceTable) EstimateCostUSD(model string, usage *provider.Usage) float64 {
	if usage == nil {
		return 0
	}
	p := t.Lookup(model)
	cost := float64(usage.InputTokens)/1e6*p.InputPerMillion +
		float64(usage.OutputTokens)/1e6*p.OutputPerMillion
	return Round6(cost)
}

// Round6 rounds to six decimal places.
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// normalizeModel strips a "provider/" prefix and lower-cases.
func normalizeModel(model string) string {
	model = strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	return model
}
