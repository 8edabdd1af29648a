// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"fmt"
	"math/rand"
	"sort"
	"sync/atomic"
)

// Strategy selects the terminal scheduling algorithm.
type Strategy string

const (
	StrategySmart       Strategy = "smart"
	StrategyRoundRobin  Strategy = "round_robin"
	StrategyPriorityOnly Strategy = "priority_only"
	StrategyRandom      Strategy = "random"
)

// ScoreWeights are the Smart strategy's {priority, load, latency} weights;
// validated at config load time to sum to 100.
type ScoreWeights struct {
	Priority int
	Load     int
	Latency  int
}

// Scheduler is the only reconciler that selects: from the remaining
// candidates it picks exactly one winner and sets RouteReason, terminating
// the pipeline with a Route decision. Weighted-random and round-robin
// selection generalized to the Smart scoring formula and tie-break rule.
type Scheduler struct {
	strategy    Strategy
	weights     ScoreWeights
	rrCounter   atomic.Uint64
	rng         *rand.Rand
}

func NewScheduler(strategy Strategy, weights ScoreWeights) *Scheduler {
	return &Scheduler{strategy: strategy, weights: weights, rng: rand.New(rand.NewSource(1))}
}

func (s *Scheduler) Name() string                { return "Scheduler" }
func (s *Scheduler) FailurePolicy() FailurePolicy { return FailClosed }

func (s *Scheduler) Reconcile(intent *RoutingIntent, views map[string]AgentView) error {
	if len(intent.CandidateAgents) == 0 {
		return nil
	}

	ids := append([]string{}, intent.CandidateAgents...)
	sort.Strings(ids)

	if len(ids) == 1 {
		intent.CandidateAgents = ids
		intent.RouteReason = taggedRouteReason(intent, "only_healthy_backend")
		return nil
	}

	var winner string
	var reason string

	switch s.strategy {
	case StrategyRoundRobin:
		idx := s.rrCounter.Add(1) % uint64(len(ids))
		winner = ids[idx]
		reason = fmt.Sprintf("round_robin:%s", winner)
	case StrategyPriorityOnly:
		winner = lowestPriority(ids, views)
		reason = fmt.Sprintf("lowest_priority:%s", winner)
	case StrategyRandom:
		winner = ids[s.rng.Intn(len(ids))]
		reason = fmt.Sprintf("random:%s", winner)
	default: // Smart
		winner, reason = s.scoreAndSelect(ids, views)
	}

	intent.CandidateAgents = []string{winner}
	intent.RouteReason = taggedRouteReason(intent, reason)
	return nil
}

// taggedRouteReason prefixes reason with "privacy-requirement" when the
// Privacy reconciler narrowed the candidate set for this intent, so
// X-Nexus-Route-Reason can distinguish a privacy-constrained route from an
// ordinary capability match. The "capacity-overflow" tag is applied
// upstream, by the orchestrator, once a queued request is finally routed.
func taggedRouteReason(intent *RoutingIntent, reason string) string {
	if intent.PrivacyRestricted {
		return "privacy-requirement:" + reason
	}
	return reason
}

func lowestPriority(ids []string, views map[string]AgentView) string {
	best := ids[0]
	bestPriority := views[best].Priority
	for _, id := range ids[1:] {
		p := views[id].Priority
		if p < bestPriority || (p == bestPriority && id < best) {
			best = id
			bestPriority = p
		}
	}
	return best
}

// scoreAndSelect implements the Smart strategy's scoring formula:
//   score = ((100-min(priority,100))*w_priority + (100-min(pending,100))*w_load
//            + (100-min(avg_latency_ms/10,100))*w_latency) / 100
// Highest score wins; ties break by lower priority, then lower id lexicographically.
func (s *Scheduler) scoreAndSelect(ids []string, views map[string]AgentView) (string, string) {
	clamp := func(v, max int) int {
		if v > max {
			return max
		}
		return v
	}

	best := ids[0]
	bestScore := -1.0
	bestPriority := 0

	for _, id := range ids {
		v := views[id]
		priorityScore := 100 - clamp(v.Priority, 100)
		loadScore := 100 - clamp(int(v.PendingReqs), 100)
		latencyScore := 100 - clamp(int(v.AvgLatencyMS)/10, 100)

		score := float64(priorityScore*s.weights.Priority+loadScore*s.weights.Load+latencyScore*s.weights.Latency) / 100.0

		if score > bestScore ||
			(score == bestScore && (v.Priority < bestPriority || (v.Priority == bestPriority && id < best))) {
			best = id
			bestScore = score
			bestPriority = v.Priority
		}
	}

	return best, fmt.Sprintf("highest_score:%s:%.2f", best, bestScore/100.0)
}
