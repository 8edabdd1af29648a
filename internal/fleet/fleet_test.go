// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package fleet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestObserveIsNoOpWhenDisabled(t *testing.T) {
	a := New(Config{Enabled: false})
	a.Observe("llama3:8b", "b1")
	require.Empty(t, a.samples)
}

func TestAnalyzeRecommendsAboveMinRequestCount(t *testing.T) {
	a := New(Config{Enabled: true, MinSampleDays: 1, MinRequestCount: 3, MaxRecommendations: 5})
	for i := 0; i < 3; i++ {
		a.Observe("llama3:8b", "b1")
	}
	a.Observe("mistral:7b", "b2")

	a.analyze()
	recs := a.Recommendations()
	require.Len(t, recs, 1)
	require.Equal(t, "llama3:8b", recs[0].Model)
	require.Equal(t, "b1", recs[0].BackendID)
	require.Equal(t, 3, recs[0].RequestCount)
}

func TestAnalyzeCapsAtMaxRecommendations(t *testing.T) {
	a := New(Config{Enabled: true, MinSampleDays: 1, MinRequestCount: 1, MaxRecommendations: 1})
	a.Observe("model-a", "b1")
	a.Observe("model-a", "b1")
	a.Observe("model-b", "b2")

	a.analyze()
	require.Len(t, a.Recommendations(), 1)
	require.Equal(t, "model-a", a.Recommendations()[0].Model, "higher request count must win the single slot")
}

func TestAnalyzeExcludesSamplesOlderThanMinSampleDays(t *testing.T) {
	a := New(Config{Enabled: true, MinSampleDays: 30, MinRequestCount: 1, MaxRecommendations: 5})
	a.samples = append(a.samples, sample{model: "stale-model", backendID: "b1", at: time.Now().Add(-60 * 24 * time.Hour)})

	a.analyze()
	require.Empty(t, a.Recommendations())
}
