// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package tokenizer maps (model, text) to a token count at one of three
// accuracy tiers, mirroring the glob-matched tokenizer registry the
// original design's tokenizer module specifies.
package tokenizer

import (
	"math"
	"path/filepath"
	"sort"
	"sync"
)

// Tier is the accuracy of a token count.
type Tier string

const (
	TierExact         Tier = "exact"
	TierApproximation Tier = "approximation"
	TierHeuristic     Tier = "heuristic"
)

// Encoding identifies which native tokenizer family a rule uses.
type Encoding string

const (
	EncodingO200kBase Encoding = "o200k_base"
	EncodingCl100kBase Encoding = "cl100k_base"
)

// rule binds a model glob pattern to an accuracy tier and (for Exact and
// Approximation) the native encoding it emulates.
type rule struct {
	pattern  string
	tier     Tier
	encoding Encoding
}

// Registry holds glob-matched tokenizer rules, most-specific-first.
type Registry struct {
	mu    sync.RWMutex
	rules []rule
}

// NewRegistry builds the default registry: OpenAI o200k/cl100k families at
// Exact, other cloud chat families at Approximation (reusing cl100k_base),
// and a catch-all Heuristic rule for everything else (typically local models).
func NewRegistry() *Registry {
	r := &Registry{}
	r.rules = []rule{
		{pattern: "gpt-4o*", tier: TierExact, encoding: EncodingO200kBase},
		{pattern: "o1*", tier: TierExact, encoding: EncodingO200kBase},
		{pattern: "gpt-4*", tier: TierExact, encoding: EncodingCl100kBase},
		{pattern: "gpt-3.5*", tier: TierExact, encoding: EncodingCl100kBase},
		{pattern: "claude-*", tier: TierApproximation, encoding: EncodingCl100kBase},
		{pattern: "gemini-*", tier: TierApproximation, encoding: EncodingCl100kBase},
		{pattern: "*", tier: TierHeuristic},
	}
	r.sortBySpecificity()
	return r
}

func (r *Registry) sortBySpecificity() {
	sort.SliceStable(r.rules, func(i, j int) bool {
		return len(r.rules[i].pattern) > len(r.rules[j].pattern)
	})
}

// AddRule installs an additional tokenizer rule and re-sorts by specificity.
func (r *Registry) AddRule(pattern string, tier Tier, encoding Encoding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule{pattern: pattern, tier: tier, encoding: encoding})
	r.sortBySpecificity()
}

func (r *Registry) match(model string) rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rl := range r.rules {
		if ok, _ := filepath.Match(rl.pattern, model); ok {
			return rl
		}
	}
	return rule{pattern: "*", tier: TierHeuristic}
}

// CountTokens returns the token count for text under model's matched rule
// and the accuracy tier used. Exact/Approximation tiers approximate the
// native encoding's ratio (~4 chars/token for cl100k/o200k families);
// Heuristic applies ceil(1.15*len/4).
func (r *Registry) CountTokens(model, text string) (count int, tier Tier) {
	rl := r.match(model)
	n := len(text)
	switch rl.tier {
	case TierExact, TierApproximation:
		return int(math.Ceil(float64(n) / 4.0)), rl.tier
	default:
		return int(math.Ceil(1.15 * float64(n) / 4.0)), TierHeuristic
	}
}

// HeuristicEstimate applies the Heuristic formula directly to a character
// count, without a model rule lookup.
func HeuristicEstimate(charCount int) int {
	return int(math.Ceil(1.15 * float64(charCount) / 4.0))
}
