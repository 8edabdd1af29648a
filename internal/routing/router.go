// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"fmt"

	"nexus/internal/logging"
	"nexus/internal/quality"
	"nexus/internal/registry"
)

// Result is what the Router facade returns to the orchestrator.
type Result struct {
	Decision      Decision
	BackendView   AgentView
	ResolvedModel string
	RouteReason   string
	FallbackUsed  bool
	CostEstimate  CostEstimate
}

// Router is the entry point invoked per request: builds a RoutingIntent
// from a fresh registry snapshot, runs the pipeline, and retries through
// the fallback chain on rejection.
type Router struct {
	reg       *registry.Registry
	quality   *quality.Store
	pipeline  *Pipeline
	fallbacks map[string][]string
	log       *logging.Logger
}

func NewRouter(reg *registry.Registry, qs *quality.Store, pipeline *Pipeline, fallbacks map[string][]string) *Router {
	return &Router{reg: reg, quality: qs, pipeline: pipeline, fallbacks: fallbacks, log: logging.New("router")}
}

// buildViews snapshots the registry and quality store into the AgentView
// map the pipeline consumes.
func (r *Router) buildViews() map[string]AgentView {
	snaps := r.reg.GetAllBackends()
	views := make(map[string]AgentView, len(snaps))
	for _, s := range snaps {
		s := s
		agg := r.quality.Get(s.ID)
		views[s.ID] = AgentView{
			ID: s.ID, Kind: s.Kind, Zone: s.Zone, Tier: s.Tier, Priority: s.Priority,
			PendingReqs: s.PendingRequests, AvgLatencyMS: s.AvgLatencyMS, ErrorRate1h: agg.ErrorRate1h,
			ServesModel: func(model string) bool { return s.ServesModel(model) },
			Routable:    s.Routable(),
		}
	}
	return views
}

// Route runs requirements through the pipeline for requestID, retrying
// through the configured fallback chain if the primary model rejects.
func (r *Router) Route(requestID string, requirements RequestRequirements, tierMode TierMode) Result {
	views := r.buildViews()

	decision, model := r.runOnce(requestID, requirements, tierMode, views)
	if decision.Routed {
		return r.toResult(decision, views, model, false)
	}

	for _, fallbackModel := range r.fallbacks[requirements.Model] {
		fbReq := requirements
		fbReq.Model = fallbackModel
		fbDecision, fbModel := r.runOnce(requestID, fbReq, tierMode, views)
		if fbDecision.Routed {
			fbDecision.RouteReason = fmt.Sprintf("fallback:%s->%s:%s", requirements.Model, fallbackModel, fbDecision.RouteReason)
			return r.toResult(fbDecision, views, fbModel, true)
		}
	}

	return Result{Decision: decision, ResolvedModel: model}
}

func (r *Router) runOnce(requestID string, requirements RequestRequirements, tierMode TierMode, views map[string]AgentView) (Decision, string) {
	candidates := make([]string, 0, len(views))
	for id := range views {
		candidates = append(candidates, id)
	}

	intent := &RoutingIntent{
		RequestID:       requestID,
		RequestedModel:  requirements.Model,
		Requirements:    requirements,
		TierMode:        tierMode,
		CandidateAgents: candidates,
	}

	decision := r.pipeline.Run(intent, views)
	return decision, intent.ResolvedModel
}

func (r *Router) toResult(d Decision, views map[string]AgentView, resolvedModel string, fallbackUsed bool) Result {
	return Result{
		Decision:      d,
		BackendView:   views[d.AgentID],
		ResolvedModel: resolvedModel,
		RouteReason:   d.RouteReason,
		FallbackUsed:  fallbackUsed,
		CostEstimate:  d.Cost,
	}
}
