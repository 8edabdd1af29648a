// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"fmt"
	"net/http"

	"nexus/internal/agent"
	"nexus/internal/routing"
)

// classifyRouteReason classifies a route_reason string into the short enumerated
// set the X-Nexus-Route-Reason header uses; the Scheduler's free-form
// "highest_score:<id>:<score>" strings map to "capability-match" since
// they represent an ordinary capability-satisfying selection.
func classifyRouteReason(reason string, fallbackUsed bool) string {
	switch {
	case fallbackUsed:
		return "failover"
	case len(reason) >= len("capacity-overflow") && reason[:len("capacity-overflow")] == "capacity-overflow":
		return "capacity-overflow"
	case len(reason) >= len("privacy-requirement") && reason[:len("privacy-requirement")] == "privacy-requirement":
		return "privacy-requirement"
	default:
		return "capability-match"
	}
}

func backendTypeFor(kind agent.Kind) string {
	switch kind {
	case agent.KindOpenAI, agent.KindAnthropic:
		return "cloud"
	default:
		return "local"
	}
}

// WriteAdvisoryHeaders attaches every X-Nexus-* advisory header before the
// first byte of the body is written, as required for both the
// non-streaming and streaming (SSE) response paths.
func WriteAdvisoryHeaders(w http.ResponseWriter, view routing.AgentView, result routing.Result) {
	w.Header().Set("X-Nexus-Backend", view.ID)
	w.Header().Set("X-Nexus-Backend-Type", backendTypeFor(view.Kind))
	w.Header().Set("X-Nexus-Route-Reason", classifyRouteReason(result.RouteReason, result.FallbackUsed))
	zone := "open"
	if view.Zone == agent.ZoneRestricted {
		zone = "restricted"
	}
	w.Header().Set("X-Nexus-Privacy-Zone", zone)

	if result.CostEstimate.Known && backendTypeFor(view.Kind) == "cloud" {
		w.Header().Set("X-Nexus-Cost-Estimated", fmt.Sprintf("%.6f", result.CostEstimate.USD))
	}
	if result.FallbackUsed {
		w.Header().Set("X-Nexus-Fallback-Model", result.ResolvedModel)
	}
}
