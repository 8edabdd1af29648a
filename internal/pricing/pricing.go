// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package pricing maps (model, input tokens, output tokens) to a USD cost
// estimate. Rates are keyed per-1M tokens and flattened to a single model
// namespace since Nexus routes by model name, not by (provider, model).
package pricing

import (
	"strings"
	"sync"
)

// ModelPricing is a model's USD cost per million tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// conservativeFallback approximates GPT-4 class pricing, used when a cloud
// model has no table entry and the caller still wants a non-empty estimate.
var conservativeFallback = ModelPricing{InputPer1M: 30.0, OutputPer1M: 60.0}

// defaultTable is a flat per-1M pricing table across cloud providers; it
// holds no entries for local models.
var defaultTable = map[string]ModelPricing{
	"gpt-4o":              {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":         {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4-turbo":         {InputPer1M: 10.00, OutputPer1M: 30.00},
	"gpt-4":               {InputPer1M: 30.00, OutputPer1M: 60.00},
	"gpt-3.5-turbo":       {InputPer1M: 0.50, OutputPer1M: 1.50},
	"claude-3-5-sonnet":   {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-opus":       {InputPer1M: 15.00, OutputPer1M: 75.00},
	"claude-3-haiku":      {InputPer1M: 0.25, OutputPer1M: 1.25},
	"gemini-1.5-pro":      {InputPer1M: 1.25, OutputPer1M: 5.00},
	"gemini-1.5-flash":    {InputPer1M: 0.075, OutputPer1M: 0.30},
}

// Table is a queryable pricing table keyed by model name only; it has no
// notion of backend kind, so pricing local backends at $0 (LocalCost) is
// left to the caller.
type Table struct {
	mu      sync.RWMutex
	entries map[string]ModelPricing
}

// NewTable builds a Table seeded with the default pricing set.
func NewTable() *Table {
	t := &Table{entries: make(map[string]ModelPricing, len(defaultTable))}
	for k, v := range defaultTable {
		t.entries[k] = v
	}
	return t
}

// Set installs or overrides one model's pricing.
func (t *Table) Set(model string, p ModelPricing) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[model] = p
}

// Lookup resolves pricing for model: exact match, then longest registered
// prefix match, then "unknown" (ok=false) so callers can suppress the
// cost header rather than emit a bogus number.
func (t *Table) Lookup(model string) (ModelPricing, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if p, ok := t.entries[model]; ok {
		return p, true
	}
	best := ""
	var bestPricing ModelPricing
	found := false
	for k, p := range t.entries {
		if strings.HasPrefix(model, k) && len(k) > len(best) {
			best = k
			bestPricing = p
			found = true
		}
	}
	return bestPricing, found
}

// Cost computes the exact USD cost for a tabled model; returns ok=false
// for unknown models (callers suppress the cost header rather than guess).
func (t *Table) Cost(model string, inputTokens, outputTokens int) (usd float64, ok bool) {
	p, found := t.Lookup(model)
	if !found {
		return 0, false
	}
	return (float64(inputTokens)/1_000_000)*p.InputPer1M + (float64(outputTokens)/1_000_000)*p.OutputPer1M, true
}

// ConservativeCost returns a fallback GPT-4-class cost estimate for
// models the table does not recognize, used when the caller prefers an
// over-estimate to no estimate at all (e.g. Budget reconciler accounting).
func ConservativeCost(inputTokens, outputTokens int) float64 {
	return (float64(inputTokens)/1_000_000)*conservativeFallback.InputPer1M +
		(float64(outputTokens)/1_000_000)*conservativeFallback.OutputPer1M
}

// LocalCost is always $0 for local backend kinds regardless of model.
const LocalCost = 0.0
