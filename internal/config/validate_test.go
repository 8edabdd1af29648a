// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Defaults()
	cfg.Routing.Strategy = "smart"
	cfg.Routing.Weights = Weights{Priority: 50, Load: 30, Latency: 20}
	cfg.Budget.BillingCycleStartDay = 1
	cfg.Backends = []BackendConfig{{Name: "b1", URL: "http://localhost:11434", Type: "ollama", Tier: 1}}
	return cfg
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsWeightsNotSummingTo100(t *testing.T) {
	cfg := validConfig()
	cfg.Routing.Weights = Weights{Priority: 50, Load: 30, Latency: 10}
	require.Error(t, cfg.Validate())
}

// A two-node alias cycle (a→b, b→a) must fail validation at config load.
func TestCircularAliasRejectedAtLoad(t *testing.T) {
	cfg := validConfig()
	cfg.Routing.Aliases = map[string]string{"a": "b", "b": "a"}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "circular alias")
}

func TestValidateRejectsDuplicateBackendNames(t *testing.T) {
	cfg := validConfig()
	cfg.Backends = append(cfg.Backends, BackendConfig{Name: "b1", URL: "http://other", Tier: 1})
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangeTier(t *testing.T) {
	cfg := validConfig()
	cfg.Backends[0].Tier = 9
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	cfg := validConfig()
	cfg.Routing.Strategy = "quantum"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsBillingCycleDayOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Budget.BillingCycleStartDay = 32
	require.Error(t, cfg.Validate())
}
