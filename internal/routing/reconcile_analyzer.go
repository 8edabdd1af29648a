// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package routing

import "fmt"

// RequestAnalyzer resolves the alias chain, populates ResolvedModel, and
// excludes any candidate that does not actually serve the resolved model
// or is not currently routable (unhealthy, or blocked by a Load operation).
type RequestAnalyzer struct {
	aliases *AliasResolver
}

func NewRequestAnalyzer(aliases *AliasResolver) *RequestAnalyzer {
	return &RequestAnalyzer{aliases: aliases}
}

func (a *RequestAnalyzer) Name() string                  { return "RequestAnalyzer" }
func (a *RequestAnalyzer) FailurePolicy() FailurePolicy   { return FailOpen }

func (a *RequestAnalyzer) Reconcile(intent *RoutingIntent, views map[string]AgentView) error {
	resolved, depthViolation := a.aliases.Resolve(intent.RequestedModel)
	intent.ResolvedModel = resolved
	if depthViolation {
		return fmt.Errorf("alias resolution for %q exceeded 3 hops", intent.RequestedModel)
	}

	for _, id := range append([]string{}, intent.CandidateAgents...) {
		view, ok := views[id]
		if !ok {
			intent.exclude(id, a.Name(), "unknown agent", "")
			continue
		}
		if !view.Routable {
			intent.exclude(id, a.Name(), "model not available", "backend is not currently healthy or is loading")
			continue
		}
		if view.ServesModel != nil && !view.ServesModel(resolved) {
			intent.exclude(id, a.Name(), "model not available", fmt.Sprintf("backend does not serve %q", resolved))
		}
	}
	return nil
}
