// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package routing implements the reconciler pipeline: the ordered chain
// of reconcilers that transforms a RoutingIntent into a RoutingDecision,
// plus the Router facade that builds the intent and drives the fallback
// chain around it. Generalized from a flat provider-list selection into
// the candidate-shrinking pipeline this design calls for.
package routing

import (
	"nexus/internal/agent"
	"nexus/internal/pricing"
)

// TierMode controls how the Tier/Capability reconciler treats candidates
// below the policy-required tier.
type TierMode string

const (
	TierStrict   TierMode = "strict"
	TierFlexible TierMode = "flexible"
)

// RequestRequirements is what the orchestrator derives from the inbound
// request before routing: the resolved shape of what the request needs.
type RequestRequirements struct {
	Model             string
	EstimatedTokens   int
	NeedsVision       bool
	NeedsTools        bool
	NeedsJSONMode     bool
	PrefersStreaming  bool
	MinCapabilityTier *int
}

// CostEstimate is what the Budget reconciler annotates onto the intent.
type CostEstimate struct {
	InputTokens  int
	OutputTokens int
	USD          float64
	Known        bool
}

// RejectionReason records why one candidate was excluded by one reconciler.
type RejectionReason struct {
	AgentID         string
	ReconcilerName  string
	Reason          string
	SuggestedAction string
}

// RoutingIntent is the mutable state threaded through the reconciler chain.
// Invariant: every backend id named anywhere in the intent appears in
// exactly one of CandidateAgents or ExcludedAgents at any time; reconcilers
// may only move ids from the former to the latter (monotone shrink).
type RoutingIntent struct {
	RequestID          string
	RequestedModel     string
	ResolvedModel      string
	Requirements       RequestRequirements
	TierMode           TierMode
	BudgetState        string // "normal" | "soft_limit" | "hard_limit"
	CostEstimate       CostEstimate
	PrivacyRestricted  bool

	CandidateAgents []string
	ExcludedAgents  []string
	RejectionReasons []RejectionReason
	RouteReason      string
}

// exclude moves id from CandidateAgents to ExcludedAgents with a reason,
// enforcing the monotone-shrink invariant from the single call site every
// reconciler uses.
func (ri *RoutingIntent) exclude(id, reconciler, reason, suggestion string) {
	out := ri.CandidateAgents[:0]
	moved := false
	for _, c := range ri.CandidateAgents {
		if c == id && !moved {
			moved = true
			continue
		}
		out = append(out, c)
	}
	ri.CandidateAgents = out
	if moved {
		ri.ExcludedAgents = append(ri.ExcludedAgents, id)
		ri.RejectionReasons = append(ri.RejectionReasons, RejectionReason{
			AgentID: id, ReconcilerName: reconciler, Reason: reason, SuggestedAction: suggestion,
		})
	}
}

// Decision is the pipeline's terminal Route|Reject output.
type Decision struct {
	Routed       bool
	AgentID      string
	ResolvedModel string
	RouteReason  string
	Cost         CostEstimate
	FallbackUsed bool

	RejectionReasons []RejectionReason
}

// PrivacyClass is a traffic policy's data-residency requirement.
type PrivacyClass string

const (
	PrivacyUnrestricted PrivacyClass = "unrestricted"
	PrivacyRestricted   PrivacyClass = "restricted"
)

// TrafficPolicy matches requests by a model glob pattern and declares
// privacy/cost/tier constraints for matching traffic.
type TrafficPolicy struct {
	ModelPattern    string
	Privacy         PrivacyClass
	MaxCostPerReq   *float64
	MinTier         *int
	FallbackAllowed bool
}

// AgentView is the subset of registry.Snapshot the pipeline actually
// needs, decoupling routing from the registry package's internal types.
type AgentView struct {
	ID            string
	Kind          agent.Kind
	Zone          agent.PrivacyZone
	Tier          int
	Priority      int
	PendingReqs   uint32
	AvgLatencyMS  uint32
	ErrorRate1h   float64
	ServesModel   func(model string) bool
	Routable      bool
}

// PricingLookup is the narrow pricing dependency the Budget reconciler uses.
type PricingLookup interface {
	Cost(model string, inputTokens, outputTokens int) (usd float64, ok bool)
}

var _ PricingLookup = (*pricing.Table)(nil)
