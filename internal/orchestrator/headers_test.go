// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyRouteReasonFailoverWinsOverAnyPrefix(t *testing.T) {
	require.Equal(t, "failover", classifyRouteReason("capacity-overflow:round_robin:b1", true))
}

func TestClassifyRouteReasonCapacityOverflow(t *testing.T) {
	require.Equal(t, "capacity-overflow", classifyRouteReason("capacity-overflow:highest_score:b1:80.00", false))
}

func TestClassifyRouteReasonPrivacyRequirement(t *testing.T) {
	require.Equal(t, "privacy-requirement", classifyRouteReason("privacy-requirement:only_healthy_backend", false))
}

func TestClassifyRouteReasonDefaultsToCapabilityMatch(t *testing.T) {
	require.Equal(t, "capability-match", classifyRouteReason("highest_score:b1:80.00", false))
}
