// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupExactMatch(t *testing.T) {
	tbl := NewTable()
	p, ok := tbl.Lookup("gpt-4o")
	require.True(t, ok)
	require.Equal(t, 2.50, p.InputPer1M)
}

func TestLookupPrefixMatch(t *testing.T) {
	tbl := NewTable()
	p, ok := tbl.Lookup("gpt-4o-2024-08-06")
	require.True(t, ok)
	require.Equal(t, 2.50, p.InputPer1M)
}

func TestLookupUnknownModel(t *testing.T) {
	tbl := NewTable()
	_, ok := tbl.Lookup("some-local-model")
	require.False(t, ok)
}

func TestCostComputesProportionalToTokens(t *testing.T) {
	tbl := NewTable()
	usd, ok := tbl.Cost("gpt-4o-mini", 1_000_000, 1_000_000)
	require.True(t, ok)
	require.InDelta(t, 0.15+0.60, usd, 1e-9)
}

func TestSetOverridesPricing(t *testing.T) {
	tbl := NewTable()
	tbl.Set("custom-model", ModelPricing{InputPer1M: 1, OutputPer1M: 2})
	p, ok := tbl.Lookup("custom-model")
	require.True(t, ok)
	require.Equal(t, 1.0, p.InputPer1M)
}

func TestConservativeCostIsNonZero(t *testing.T) {
	require.Greater(t, ConservativeCost(1000, 1000), 0.0)
}
