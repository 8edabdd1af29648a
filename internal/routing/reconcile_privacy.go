// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"fmt"
	"strings"

	"nexus/internal/agent"
)

// Privacy excludes every Open-zone candidate when the highest-priority
// policy matching the resolved model demands Restricted.
type Privacy struct {
	matcher *PolicyMatcher
}

func NewPrivacy(matcher *PolicyMatcher) *Privacy {
	return &Privacy{matcher: matcher}
}

func (p *Privacy) Name() string                { return "PrivacyReconciler" }
func (p *Privacy) FailurePolicy() FailurePolicy { return FailClosed }

func (p *Privacy) Reconcile(intent *RoutingIntent, views map[string]AgentView) error {
	policy, matched := p.matcher.Match(intent.ResolvedModel)
	if !matched || policy.Privacy != PrivacyRestricted {
		return nil
	}
	intent.PrivacyRestricted = true

	var restrictedCandidates []string
	for _, id := range intent.CandidateAgents {
		if v, ok := views[id]; ok && v.Zone == agent.ZoneRestricted {
			restrictedCandidates = append(restrictedCandidates, id)
		}
	}
	suggestion := "no restricted-zone backend available"
	if len(restrictedCandidates) > 0 {
		suggestion = fmt.Sprintf("restricted-zone backends available: %s", strings.Join(restrictedCandidates, ", "))
	}

	for _, id := range append([]string{}, intent.CandidateAgents...) {
		if v, ok := views[id]; ok && v.Zone == agent.ZoneOpen {
			intent.exclude(id, p.Name(), "privacy policy requires restricted zone", suggestion)
		}
	}
	return nil
}
