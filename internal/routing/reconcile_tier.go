// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package routing

import "fmt"

// TierCapability enforces a policy's min_tier against tier_enforcement_mode.
// Strict and Flexible apply the same single never-downgrade predicate,
// candidate.tier >= required_tier: any candidate below the required tier is
// excluded and every candidate at or above it stays. Neither mode gives
// tier==T candidates precedence over higher-tier ones.
type TierCapability struct {
	matcher *PolicyMatcher
}

func NewTierCapability(matcher *PolicyMatcher) *TierCapability {
	return &TierCapability{matcher: matcher}
}

func (t *TierCapability) Name() string                { return "TierCapabilityReconciler" }
func (t *TierCapability) FailurePolicy() FailurePolicy { return FailClosed }

func (t *TierCapability) Reconcile(intent *RoutingIntent, views map[string]AgentView) error {
	policy, matched := t.matcher.Match(intent.ResolvedModel)
	requiredTier := 0
	if matched && policy.MinTier != nil {
		requiredTier = *policy.MinTier
	}
	if req := intent.Requirements.MinCapabilityTier; req != nil && *req > requiredTier {
		requiredTier = *req
	}
	if requiredTier == 0 {
		return nil
	}

	// Both Strict and Flexible apply the same never-downgrade predicate:
	// candidate.tier >= requiredTier always. The Scheduler's scoring does
	// not consider tier, so the choice among the remaining candidates is
	// the same in both modes.
	for _, id := range append([]string{}, intent.CandidateAgents...) {
		v, ok := views[id]
		if !ok {
			continue
		}
		if v.Tier < requiredTier {
			intent.exclude(id, t.Name(), fmt.Sprintf("tier %d below required %d", v.Tier, requiredTier),
				"use a backend meeting the required capability tier")
		}
	}
	return nil
}
