// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"nexus/internal/agent"
	"nexus/internal/budget"
	"nexus/internal/fleet"
	"nexus/internal/lifecycle"
	"nexus/internal/orchestrator"
	"nexus/internal/pricing"
	"nexus/internal/quality"
	"nexus/internal/registry"
	"nexus/internal/routing"
)

// testAgent is a minimal agent.Agent double: LoadModel and UnloadModel
// succeed, and every other optional method returns agent.Unsupported.
type testAgent struct{ id string }

func (a *testAgent) Name() string           { return a.id }
func (a *testAgent) Profile() agent.Profile { return agent.Profile{Kind: agent.KindOllama, Tier: 1} }
func (a *testAgent) HealthCheck(ctx context.Context) (agent.HealthResult, error) {
	return agent.HealthResult{Healthy: true}, nil
}
func (a *testAgent) ListModels(ctx context.Context) ([]agent.ModelCapability, error) { return nil, nil }
func (a *testAgent) ChatCompletion(ctx context.Context, req agent.ChatRequest, authHeader string) (*agent.ChatResponse, error) {
	return nil, agent.Unsupported("chat_completion")
}
func (a *testAgent) ChatCompletionStream(ctx context.Context, req agent.ChatRequest, authHeader string) (agent.StreamReader, error) {
	return nil, agent.Unsupported("chat_completion_stream")
}
func (a *testAgent) Embeddings(ctx context.Context, req agent.EmbeddingsRequest, authHeader string) (*agent.EmbeddingsResponse, error) {
	return nil, agent.Unsupported("embeddings")
}
func (a *testAgent) LoadModel(ctx context.Context, modelID string) error   { return nil }
func (a *testAgent) UnloadModel(ctx context.Context, modelID string) error { return nil }
func (a *testAgent) CountTokens(ctx context.Context, modelID, text string) (int, bool, error) {
	return 0, false, agent.Unsupported("count_tokens")
}
func (a *testAgent) ResourceUsage(ctx context.Context) (agent.ResourceUsage, error) {
	return agent.ResourceUsage{}, agent.Unsupported("resource_usage")
}

// chatTestAgent extends testAgent with a controllable ChatCompletion result
// so handler tests can exercise the success and passthrough-error paths.
type chatTestAgent struct {
	testAgent
	resp *agent.ChatResponse
	err  error
}

func (a *chatTestAgent) ChatCompletion(ctx context.Context, req agent.ChatRequest, authHeader string) (*agent.ChatResponse, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.resp, nil
}

func newTestServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()
	return newTestServerWithAgent(t, &testAgent{id: "b1"})
}

func newTestServerWithAgent(t *testing.T, a agent.Agent) (*Server, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.AddBackendWithAgent(&registry.Backend{ID: "b1", Tier: 1}, a))
	require.NoError(t, reg.UpdateStatus("b1", registry.StatusHealthy))
	require.NoError(t, reg.UpdateModels("b1", []registry.Model{{ID: "llama3:8b"}}))

	qs := quality.New()
	budgetState := budget.New(budget.Config{Enabled: false})
	pipeline := routing.NewPipeline(
		routing.NewRequestAnalyzer(routing.NewAliasResolver(nil)),
		routing.NewPrivacy(routing.NewPolicyMatcher(nil)),
		routing.NewBudget(budgetState, pricing.NewTable()),
		routing.NewTierCapability(routing.NewPolicyMatcher(nil)),
		routing.NewQuality(0.5),
		routing.NewScheduler(routing.StrategySmart, routing.ScoreWeights{Priority: 50, Load: 30, Latency: 20}),
	)
	router := routing.NewRouter(reg, qs, pipeline, nil)
	fleetA := fleet.New(fleet.Config{Enabled: false})
	orch := orchestrator.New(reg, router, qs, nil, fleetA)
	life := lifecycle.New(lifecycle.Config{VRAMHeadroomPercent: 10, VRAMHeuristicMaxGB: 8}, reg)

	return NewServer(reg, orch, life, fleetA, qs, budgetState), reg
}

func TestHandleHealthReportsBackendStatuses(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "ok", body.Status)
	require.Len(t, body.Backends, 1)
	require.Equal(t, "healthy", body.Backends[0].Status)
}

func TestHandleListModelsDeduplicatesAcrossBackends(t *testing.T) {
	srv, reg := newTestServer(t)
	a2 := &testAgent{id: "b2"}
	require.NoError(t, reg.AddBackendWithAgent(&registry.Backend{ID: "b2", Tier: 1}, a2))
	require.NoError(t, reg.UpdateModels("b2", []registry.Model{{ID: "llama3:8b"}, {ID: "mistral:7b"}}))

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	var body modelsListResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
}

func TestHandleFleetRecommendationsEmptyWhenDisabled(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/fleet/recommendations", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body fleetRecommendationsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Empty(t, body.Recommendations)
}

func TestHandleUnloadModelRejectsUnknownBackend(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodDelete, "/v1/models/ghost-model?backend_id=missing", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.NotEqual(t, http.StatusOK, rr.Code)
}

func TestHandleChatCompletionsForwardsUpstreamBodyOnSuccess(t *testing.T) {
	a := &chatTestAgent{
		testAgent: testAgent{id: "b1"},
		resp:      &agent.ChatResponse{RawBody: []byte(`{"id":"chatcmpl-1"}`), StatusCode: http.StatusOK},
	}
	srv, _ := newTestServerWithAgent(t, a)

	body := []byte(`{"model":"llama3:8b","messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"id":"chatcmpl-1"}`, rr.Body.String())
}

func TestHandleChatCompletionsRejectsMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader([]byte("not json")))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleStatsAggregatesBackendCounters(t *testing.T) {
	srv, reg := newTestServer(t)
	reg.RecordLatency("b1", 100)

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body StatsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Backends, 1)
	require.Equal(t, "b1", body.Backends[0].ID)
}
