// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAliasResolverResolvesChain(t *testing.T) {
	r := NewAliasResolver(map[string]string{
		"fast":        "gpt-4o-mini",
		"gpt-4o-mini": "gpt-4o-mini-2024-07-18",
	})
	resolved, violation := r.Resolve("fast")
	require.False(t, violation)
	require.Equal(t, "gpt-4o-mini-2024-07-18", resolved)
}

func TestAliasResolverTerminatesOnUnaliased(t *testing.T) {
	r := NewAliasResolver(map[string]string{"fast": "gpt-4o-mini"})
	resolved, violation := r.Resolve("gpt-4o-mini")
	require.False(t, violation)
	require.Equal(t, "gpt-4o-mini", resolved)
}

func TestAliasResolverRejectsDeepChain(t *testing.T) {
	r := NewAliasResolver(map[string]string{
		"a": "b",
		"b": "c",
		"c": "d",
		"d": "e",
	})
	_, violation := r.Resolve("a")
	require.True(t, violation, "a chain of more than 3 hops must be reported as a depth violation")
}

func TestPolicyMatcherPrefersMostSpecificPattern(t *testing.T) {
	m := NewPolicyMatcher([]TrafficPolicy{
		{ModelPattern: "*", Privacy: PrivacyUnrestricted},
		{ModelPattern: "gpt-4o*", Privacy: PrivacyRestricted},
	})
	p, ok := m.Match("gpt-4o-mini")
	require.True(t, ok)
	require.Equal(t, PrivacyRestricted, p.Privacy)
}

func TestPolicyMatcherNoMatch(t *testing.T) {
	m := NewPolicyMatcher([]TrafficPolicy{{ModelPattern: "claude-*", Privacy: PrivacyRestricted}})
	_, ok := m.Match("gpt-4o")
	require.False(t, ok)
}
