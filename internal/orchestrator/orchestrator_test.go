// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"nexus/internal/agent"
	"nexus/internal/apierror"
	"nexus/internal/budget"
	"nexus/internal/fleet"
	"nexus/internal/pricing"
	"nexus/internal/quality"
	"nexus/internal/registry"
	"nexus/internal/routing"
)

type fakeAgent struct {
	id       string
	chatErr  error
	chatResp *agent.ChatResponse
}

func (f *fakeAgent) Name() string           { return f.id }
func (f *fakeAgent) Profile() agent.Profile { return agent.Profile{Kind: agent.KindOllama, Tier: 1} }
func (f *fakeAgent) HealthCheck(ctx context.Context) (agent.HealthResult, error) {
	return agent.HealthResult{Healthy: true}, nil
}
func (f *fakeAgent) ListModels(ctx context.Context) ([]agent.ModelCapability, error) { return nil, nil }
func (f *fakeAgent) ChatCompletion(ctx context.Context, req agent.ChatRequest, authHeader string) (*agent.ChatResponse, error) {
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return f.chatResp, nil
}
func (f *fakeAgent) ChatCompletionStream(ctx context.Context, req agent.ChatRequest, authHeader string) (agent.StreamReader, error) {
	return nil, agent.Unsupported("chat_completion_stream")
}
func (f *fakeAgent) Embeddings(ctx context.Context, req agent.EmbeddingsRequest, authHeader string) (*agent.EmbeddingsResponse, error) {
	return nil, agent.Unsupported("embeddings")
}
func (f *fakeAgent) LoadModel(ctx context.Context, modelID string) error   { return nil }
func (f *fakeAgent) UnloadModel(ctx context.Context, modelID string) error { return nil }
func (f *fakeAgent) CountTokens(ctx context.Context, modelID, text string) (int, bool, error) {
	return 0, false, agent.Unsupported("count_tokens")
}
func (f *fakeAgent) ResourceUsage(ctx context.Context) (agent.ResourceUsage, error) {
	return agent.ResourceUsage{}, agent.Unsupported("resource_usage")
}

func testRouter(t *testing.T, reg *registry.Registry, qs *quality.Store) *routing.Router {
	t.Helper()
	budgetState := budget.New(budget.Config{Enabled: false})
	pricingTable := pricing.NewTable()
	pipeline := routing.NewPipeline(
		routing.NewRequestAnalyzer(routing.NewAliasResolver(nil)),
		routing.NewPrivacy(routing.NewPolicyMatcher(nil)),
		routing.NewBudget(budgetState, pricingTable),
		routing.NewTierCapability(routing.NewPolicyMatcher(nil)),
		routing.NewQuality(0.5),
		routing.NewScheduler(routing.StrategySmart, routing.ScoreWeights{Priority: 50, Load: 30, Latency: 20}),
	)
	return routing.NewRouter(reg, qs, pipeline, nil)
}

func TestHandleChatDispatchesOnSuccessfulRoute(t *testing.T) {
	reg := registry.New()
	a := &fakeAgent{id: "b1", chatResp: &agent.ChatResponse{RawBody: []byte(`{"ok":true}`), StatusCode: 200}}
	require.NoError(t, reg.AddBackendWithAgent(&registry.Backend{ID: "b1", Tier: 1}, a))
	require.NoError(t, reg.UpdateStatus("b1", registry.StatusHealthy))
	require.NoError(t, reg.UpdateModels("b1", []registry.Model{{ID: "llama3:8b"}}))

	qs := quality.New()
	router := testRouter(t, reg, qs)
	o := New(reg, router, qs, nil, nil)

	outcome := o.HandleChat(context.Background(), "", agent.ChatRequest{Model: "llama3:8b"},
		routing.RequestRequirements{Model: "llama3:8b"}, routing.TierStrict, false)

	require.Nil(t, outcome.RejectErr)
	require.NotNil(t, outcome.Response)
	require.Equal(t, "b1", outcome.Result.Decision.AgentID)
}

func TestHandleChatObservesDispatchedBackendForFleetAnalysis(t *testing.T) {
	reg := registry.New()
	a := &fakeAgent{id: "b1", chatResp: &agent.ChatResponse{RawBody: []byte(`{"ok":true}`), StatusCode: 200}}
	require.NoError(t, reg.AddBackendWithAgent(&registry.Backend{ID: "b1", Tier: 1}, a))
	require.NoError(t, reg.UpdateStatus("b1", registry.StatusHealthy))
	require.NoError(t, reg.UpdateModels("b1", []registry.Model{{ID: "llama3:8b"}}))

	qs := quality.New()
	router := testRouter(t, reg, qs)
	fleetA := fleet.New(fleet.Config{Enabled: true, MinSampleDays: 1, MinRequestCount: 1, MaxRecommendations: 5})
	o := New(reg, router, qs, nil, fleetA)

	outcome := o.HandleChat(context.Background(), "", agent.ChatRequest{Model: "llama3:8b"},
		routing.RequestRequirements{Model: "llama3:8b"}, routing.TierStrict, false)
	require.Nil(t, outcome.RejectErr)

	fleetA.AnalyzeNow()
	recs := fleetA.Recommendations()
	require.Len(t, recs, 1)
	require.Equal(t, "llama3:8b", recs[0].Model)
	require.Equal(t, "b1", recs[0].BackendID)
}

func TestHandleChatMapsAgentErrorOnDispatchFailure(t *testing.T) {
	reg := registry.New()
	a := &fakeAgent{id: "b1", chatErr: agent.Unsupported("chat_completion")}
	require.NoError(t, reg.AddBackendWithAgent(&registry.Backend{ID: "b1", Tier: 1}, a))
	require.NoError(t, reg.UpdateStatus("b1", registry.StatusHealthy))
	require.NoError(t, reg.UpdateModels("b1", []registry.Model{{ID: "llama3:8b"}}))

	qs := quality.New()
	router := testRouter(t, reg, qs)
	o := New(reg, router, qs, nil, nil)

	outcome := o.HandleChat(context.Background(), "", agent.ChatRequest{Model: "llama3:8b"},
		routing.RequestRequirements{Model: "llama3:8b"}, routing.TierStrict, false)

	require.NotNil(t, outcome.RejectErr)
	require.Equal(t, 503, outcome.RejectErr.Status)
}

func TestHandleChatReturnsNoBackendMatchedWhenNoneServeModel(t *testing.T) {
	reg := registry.New()
	qs := quality.New()
	router := testRouter(t, reg, qs)
	o := New(reg, router, qs, nil, nil)

	outcome := o.HandleChat(context.Background(), "", agent.ChatRequest{Model: "missing-model"},
		routing.RequestRequirements{Model: "missing-model"}, routing.TierStrict, false)

	require.NotNil(t, outcome.RejectErr)
	require.Equal(t, 503, outcome.RejectErr.Status)
}

func TestIsCapacityRejectionTrueWhenAllSchedulerRejections(t *testing.T) {
	result := routing.Result{Decision: routing.Decision{
		RejectionReasons: []routing.RejectionReason{{ReconcilerName: "Scheduler"}, {ReconcilerName: "Scheduler"}},
	}}
	require.True(t, isCapacityRejection(result))
}

func TestIsCapacityRejectionFalseWhenOtherReconcilerRejects(t *testing.T) {
	result := routing.Result{Decision: routing.Decision{
		RejectionReasons: []routing.RejectionReason{{ReconcilerName: "Scheduler"}, {ReconcilerName: "PrivacyReconciler"}},
	}}
	require.False(t, isCapacityRejection(result))
}

func TestIsCapacityRejectionFalseWhenEmpty(t *testing.T) {
	require.False(t, isCapacityRejection(routing.Result{}))
}

func TestRejectionToErrorSetsPrivacyMessage(t *testing.T) {
	result := routing.Result{Decision: routing.Decision{
		RejectionReasons: []routing.RejectionReason{{ReconcilerName: "PrivacyReconciler"}},
	}}
	err := rejectionToError(result)
	require.Equal(t, 503, err.Status)
	require.Contains(t, err.Message, "privacy zone")
}

func TestMapAgentErrorTimeoutIs504(t *testing.T) {
	err := MapAgentError(&agent.Error{Kind: agent.ErrTimeout, Op: "chat_completion"})
	require.Equal(t, 504, err.Status)
}

func TestMapAgentErrorUpstream404Becomes500(t *testing.T) {
	err := MapAgentError(&agent.Error{Kind: agent.ErrUpstream, StatusCode: 404})
	require.Equal(t, 500, err.Status)
}

func TestMapAgentErrorUpstream4xxBecomes400(t *testing.T) {
	err := MapAgentError(&agent.Error{Kind: agent.ErrUpstream, StatusCode: 422})
	require.Equal(t, 400, err.Status)
}

func TestMapAgentErrorUpstream5xxBecomes502(t *testing.T) {
	err := MapAgentError(&agent.Error{Kind: agent.ErrUpstream, StatusCode: 500})
	require.Equal(t, 502, err.Status)
}

func TestMapAgentErrorUnsupportedBecomes503(t *testing.T) {
	err := MapAgentError(agent.Unsupported("embeddings"))
	require.Equal(t, 503, err.Status)
}

func TestFromBackendJSONPassesThroughOpenAIShapedError(t *testing.T) {
	raw := []byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`)
	err := FromBackendJSON(400, raw)
	require.Equal(t, 400, err.Status)
	require.Equal(t, raw, err.RawBody)

	rr := httptest.NewRecorder()
	apierror.WriteJSON(rr, err)
	require.JSONEq(t, string(raw), rr.Body.String())
}

func TestFromBackendJSONWrapsNonStandardBody(t *testing.T) {
	err := FromBackendJSON(502, []byte(`not json`))
	require.Equal(t, 502, err.Status)
	require.Empty(t, err.RawBody)
	require.Contains(t, err.Message, "bad_gateway")
}
