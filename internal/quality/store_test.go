// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package quality

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetReturnsNeverExcludeDefaultForUnknownAgent(t *testing.T) {
	s := New()
	agg := s.Get("never-seen")
	require.Equal(t, 0.0, agg.ErrorRate1h)
	require.Equal(t, 1.0, agg.SuccessRate24h)
}

func TestRecomputeAllComputesErrorRate(t *testing.T) {
	s := New()
	s.RecordOutcome("b1", true, 100)
	s.RecordOutcome("b1", false, 0)
	s.RecordOutcome("b1", false, 0)
	s.RecordOutcome("b1", true, 200)

	s.RecomputeAll()

	agg := s.Get("b1")
	require.Equal(t, 0.5, agg.ErrorRate1h)
	require.Equal(t, 150.0, agg.AvgTTFTMillis)
	require.Equal(t, 0.5, agg.SuccessRate24h)
}

func TestRecomputeAllIsIdempotentWithNoNewOutcomes(t *testing.T) {
	s := New()
	s.RecordOutcome("b1", true, 50)
	s.RecomputeAll()
	first := s.Get("b1")
	s.RecomputeAll()
	second := s.Get("b1")
	require.Equal(t, first, second)
}
