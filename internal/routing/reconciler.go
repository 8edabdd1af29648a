// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"nexus/internal/logging"
)

// FailurePolicy decides what a reconciler does when it hits an internal
// error rather than a normal exclusion (e.g. a dependency unreachable).
type FailurePolicy string

const (
	FailOpen   FailurePolicy = "fail_open"
	FailClosed FailurePolicy = "fail_closed"
)

// Reconciler is one pipeline stage: it reads the current AgentView set and
// the intent, and may only shrink intent.CandidateAgents (moving ids into
// ExcludedAgents) or populate annotations; it must never add ids back.
type Reconciler interface {
	Name() string
	FailurePolicy() FailurePolicy
	Reconcile(intent *RoutingIntent, views map[string]AgentView) error
}

// Pipeline runs reconcilers sequentially against one intent.
type Pipeline struct {
	stages []Reconciler
	log    *logging.Logger
}

// NewPipeline builds a pipeline that runs stages in the order given; the
// canonical order is RequestAnalyzer, Privacy, Budget, Tier/Capability,
// Quality, Scheduler.
func NewPipeline(stages ...Reconciler) *Pipeline {
	return &Pipeline{stages: stages, log: logging.New("pipeline")}
}

// Run executes every stage in order. A FailClosed stage that errors stops
// the pipeline immediately with a Reject; a FailOpen stage that errors is
// logged and the pipeline continues, keeping whatever that stage had
// already written to the intent before it returned the error.
func (p *Pipeline) Run(intent *RoutingIntent, views map[string]AgentView) Decision {
	for _, stage := range p.stages {
		if err := stage.Reconcile(intent, views); err != nil {
			p.log.Warn(intent.RequestID, "reconciler error", map[string]interface{}{
				"stage": stage.Name(), "error": err.Error(), "policy": string(stage.FailurePolicy()),
			})
			if stage.FailurePolicy() == FailClosed {
				return Decision{
					Routed: false,
					RejectionReasons: append(intent.RejectionReasons, RejectionReason{
						ReconcilerName: stage.Name(), Reason: err.Error(), SuggestedAction: "retry later",
					}),
				}
			}
			continue
		}
		if len(intent.CandidateAgents) == 0 {
			break
		}
	}

	if len(intent.CandidateAgents) == 0 || intent.RouteReason == "" {
		return Decision{Routed: false, RejectionReasons: intent.RejectionReasons}
	}

	return Decision{
		Routed:        true,
		AgentID:       intent.CandidateAgents[0],
		ResolvedModel: intent.ResolvedModel,
		RouteReason:   intent.RouteReason,
		Cost:          intent.CostEstimate,
	}
}
