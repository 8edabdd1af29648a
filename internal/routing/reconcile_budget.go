// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"nexus/internal/agent"
	"nexus/internal/budget"
)

// conservativeDefaultTokens is the fixed estimate the Budget reconciler
// uses when raw input text is unavailable; kept at 500 to match the
// original design's hard-coded "conservative default".
const conservativeDefaultTokens = 500

// Budget computes a CostEstimate for a representative candidate, adds
// the spend to State, and (on HardLimit+LocalOnly) excludes cloud-kind
// candidates.
type Budget struct {
	state   *budget.State
	pricing PricingLookup
}

func NewBudget(state *budget.State, pricing PricingLookup) *Budget {
	return &Budget{state: state, pricing: pricing}
}

func (b *Budget) Name() string                { return "BudgetReconciler" }
func (b *Budget) FailurePolicy() FailurePolicy { return FailOpen }

func (b *Budget) Reconcile(intent *RoutingIntent, views map[string]AgentView) error {
	inputTokens := intent.Requirements.EstimatedTokens
	if inputTokens <= 0 {
		inputTokens = conservativeDefaultTokens
	}
	outputTokens := inputTokens / 2

	var usd float64
	var known bool
	for _, id := range intent.CandidateAgents {
		v, ok := views[id]
		if !ok {
			continue
		}
		if v.Kind != agent.KindOpenAI && v.Kind != agent.KindAnthropic {
			known = true // local candidate, $0
			break
		}
		if cost, ok2 := b.pricing.Cost(intent.ResolvedModel, inputTokens, outputTokens); ok2 {
			usd = cost
			known = true
			break
		}
	}

	intent.CostEstimate = CostEstimate{InputTokens: inputTokens, OutputTokens: outputTokens, USD: usd, Known: known}
	if usd > 0 {
		b.state.AddSpendUSD(usd)
	}

	status := b.state.BudgetStatus()
	intent.BudgetState = status.State

	if status.State == "hard_limit" && b.state.HardLimitAction() == budget.ActionLocalOnly {
		for _, id := range append([]string{}, intent.CandidateAgents...) {
			if v, ok := views[id]; ok && (v.Kind == agent.KindOpenAI || v.Kind == agent.KindAnthropic) {
				intent.exclude(id, b.Name(), "budget hard limit reached: cloud backends suspended",
					"use a local backend or wait for the next billing cycle")
			}
		}
	}

	return nil
}
