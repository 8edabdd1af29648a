// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"fmt"
	"strings"
)

// Validate enforces the startup validation rules: scoring weights sum to
// 100, tier is within [1,5], aliases are acyclic, billing_cycle_start_day
// is within [1,31], backend names/urls are unique and non-empty.
func (c *Config) Validate() error {
	var errs []string

	w := c.Routing.Weights
	if w.Priority+w.Load+w.Latency != 100 {
		errs = append(errs, fmt.Sprintf("routing.weights must sum to 100, got %d", w.Priority+w.Load+w.Latency))
	}

	switch c.Routing.Strategy {
	case "smart", "round_robin", "priority_only", "random":
	default:
		errs = append(errs, fmt.Sprintf("routing.strategy %q is not recognized", c.Routing.Strategy))
	}

	if err := checkAcyclicAliases(c.Routing.Aliases); err != nil {
		errs = append(errs, err.Error())
	}

	if c.Budget.BillingCycleStartDay < 1 || c.Budget.BillingCycleStartDay > 31 {
		errs = append(errs, fmt.Sprintf("budget.billing_cycle_start_day must be in [1,31], got %d", c.Budget.BillingCycleStartDay))
	}

	names := make(map[string]bool)
	urls := make(map[string]bool)
	for _, b := range c.Backends {
		if b.Name == "" {
			errs = append(errs, "backend with empty name")
			continue
		}
		if b.URL == "" {
			errs = append(errs, fmt.Sprintf("backend %q has empty url", b.Name))
		}
		if b.Tier < 1 || b.Tier > 5 {
			errs = append(errs, fmt.Sprintf("backend %q tier must be in [1,5], got %d", b.Name, b.Tier))
		}
		if names[b.Name] {
			errs = append(errs, fmt.Sprintf("duplicate backend name %q", b.Name))
		}
		names[b.Name] = true
		if b.URL != "" {
			if urls[b.URL] {
				errs = append(errs, fmt.Sprintf("duplicate backend url %q", b.URL))
			}
			urls[b.URL] = true
		}
	}

	for _, p := range c.Routing.Policies {
		if p.MinTier != nil && (*p.MinTier < 1 || *p.MinTier > 5) {
			errs = append(errs, fmt.Sprintf("policy %q min_tier must be in [1,5]", p.ModelPattern))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// checkAcyclicAliases walks every alias chain and rejects cycles, matching
// the CircularAlias{start, cycle} validation error from the original design.
func checkAcyclicAliases(aliases map[string]string) error {
	for start := range aliases {
		visited := map[string]bool{start: true}
		cur := start
		for i := 0; i < len(aliases)+1; i++ {
			next, ok := aliases[cur]
			if !ok {
				break
			}
			if visited[next] {
				return fmt.Errorf("circular alias starting at %q (cycle reaches %q)", start, next)
			}
			visited[next] = true
			cur = next
		}
	}
	return nil
}
