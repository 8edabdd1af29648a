// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnthropicDefaultsBaseURL(t *testing.T) {
	a := NewAnthropic(AnthropicConfig{BackendID: "b1", APIKey: "sk-test"})
	require.Equal(t, "https://api.anthropic.com", a.cfg.BaseURL)
}

func TestAnthropicProfileIsAlwaysOpenZone(t *testing.T) {
	a := NewAnthropic(AnthropicConfig{BackendID: "b1", Tier: 3})
	p := a.Profile()
	require.Equal(t, ZoneOpen, p.Zone)
	require.Equal(t, KindAnthropic, p.Kind)
}

func TestAnthropicEmbeddingsIsUnsupported(t *testing.T) {
	a := NewAnthropic(AnthropicConfig{BackendID: "b1"})
	_, err := a.Embeddings(context.Background(), EmbeddingsRequest{}, "")
	require.Error(t, err)
	agentErr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, ErrUnsupported, agentErr.Kind)
}

func TestAnthropicCountTokensIsApproximateCharBased(t *testing.T) {
	a := NewAnthropic(AnthropicConfig{BackendID: "b1"})
	count, exact, err := a.CountTokens(context.Background(), "claude-3-5-sonnet-20241022", "12345678")
	require.NoError(t, err)
	require.False(t, exact)
	require.Equal(t, 2, count)
}
