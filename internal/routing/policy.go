// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"path/filepath"
	"sort"
)

// PolicyMatcher compiles a list of TrafficPolicies and returns the
// highest-priority (most-specific pattern) match for a model name.
type PolicyMatcher struct {
	policies []TrafficPolicy
}

// NewPolicyMatcher compiles policies, ordering them most-specific-pattern-first.
func NewPolicyMatcher(policies []TrafficPolicy) *PolicyMatcher {
	sorted := make([]TrafficPolicy, len(policies))
	copy(sorted, policies)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].ModelPattern) > len(sorted[j].ModelPattern)
	})
	return &PolicyMatcher{policies: sorted}
}

// Match returns the highest-priority policy matching model, if any.
func (m *PolicyMatcher) Match(model string) (TrafficPolicy, bool) {
	for _, p := range m.policies {
		if ok, _ := filepath.Match(p.ModelPattern, model); ok {
			return p, true
		}
	}
	return TrafficPolicy{}, false
}

// AliasResolver resolves a requested model name through an alias table up
// to a fixed hop limit, reporting a depth violation rather than looping
// forever (cycles are rejected at config validation, not here).
type AliasResolver struct {
	aliases map[string]string
	maxHops int
}

func NewAliasResolver(aliases map[string]string) *AliasResolver {
	return &AliasResolver{aliases: aliases, maxHops: 3}
}

// Resolve walks the alias chain from model, returning the final resolved
// name and whether the hop limit was reached before termination.
func (r *AliasResolver) Resolve(model string) (resolved string, depthViolation bool) {
	cur := model
	for i := 0; i < r.maxHops; i++ {
		next, ok := r.aliases[cur]
		if !ok {
			return cur, false
		}
		cur = next
	}
	if _, stillAliased := r.aliases[cur]; stillAliased {
		return cur, true
	}
	return cur, false
}
