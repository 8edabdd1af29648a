// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"nexus/internal/agent"
	"nexus/internal/registry"
)

// fakeAgent is a minimal agent.Agent test double: LoadModel and
// ResourceUsage return the values set in its fields, UnloadModel returns
// nil, and the remaining optional methods return agent.Unsupported.
type fakeAgent struct {
	id            string
	loadErr       error
	resourceUsage agent.ResourceUsage
	resourceErr   error
}

func (f *fakeAgent) Name() string           { return f.id }
func (f *fakeAgent) Profile() agent.Profile { return agent.Profile{Kind: agent.KindOllama, Tier: 1} }
func (f *fakeAgent) HealthCheck(ctx context.Context) (agent.HealthResult, error) {
	return agent.HealthResult{Healthy: true}, nil
}
func (f *fakeAgent) ListModels(ctx context.Context) ([]agent.ModelCapability, error) { return nil, nil }
func (f *fakeAgent) ChatCompletion(ctx context.Context, req agent.ChatRequest, authHeader string) (*agent.ChatResponse, error) {
	return nil, agent.Unsupported("chat_completion")
}
func (f *fakeAgent) ChatCompletionStream(ctx context.Context, req agent.ChatRequest, authHeader string) (agent.StreamReader, error) {
	return nil, agent.Unsupported("chat_completion_stream")
}
func (f *fakeAgent) Embeddings(ctx context.Context, req agent.EmbeddingsRequest, authHeader string) (*agent.EmbeddingsResponse, error) {
	return nil, agent.Unsupported("embeddings")
}
func (f *fakeAgent) LoadModel(ctx context.Context, modelID string) error   { return f.loadErr }
func (f *fakeAgent) UnloadModel(ctx context.Context, modelID string) error { return nil }
func (f *fakeAgent) CountTokens(ctx context.Context, modelID, text string) (int, bool, error) {
	return 0, false, agent.Unsupported("count_tokens")
}
func (f *fakeAgent) ResourceUsage(ctx context.Context) (agent.ResourceUsage, error) {
	return f.resourceUsage, f.resourceErr
}

func newManagerWithBackend(t *testing.T, id string, a agent.Agent) *Manager {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.AddBackendWithAgent(&registry.Backend{ID: id, Tier: 1}, a))
	require.NoError(t, reg.UpdateStatus(id, registry.StatusHealthy))
	return New(Config{VRAMHeadroomPercent: 10, VRAMHeuristicMaxGB: 8}, reg)
}

// A backend with an in-progress Load operation rejects a concurrent
// load request with 409, referencing the existing operation id.
func TestLifecycleConcurrencyGuardRejectsSecondLoad(t *testing.T) {
	a := &fakeAgent{id: "b1", resourceErr: agent.Unsupported("resource_usage")}
	reg := registry.New()
	require.NoError(t, reg.AddBackendWithAgent(&registry.Backend{ID: "b1", Tier: 1}, a))
	require.NoError(t, reg.UpdateStatus("b1", registry.StatusHealthy))
	require.NoError(t, reg.UpdateOperation("b1", &registry.LifecycleOperation{
		OperationID: "op-existing", Type: registry.OpLoad, Status: registry.OpInProgress,
	}))

	m := New(Config{VRAMHeadroomPercent: 10, VRAMHeuristicMaxGB: 8}, reg)
	_, apiErr := m.Load(context.Background(), "b1", "some-other-model")

	require.NotNil(t, apiErr)
	require.Equal(t, 409, apiErr.Status)
	require.Contains(t, apiErr.Message, "op-existing")
}

func TestLoadAdmitsWhenResourceUsageUnsupported(t *testing.T) {
	a := &fakeAgent{id: "b1", resourceErr: agent.Unsupported("resource_usage")}
	m := newManagerWithBackend(t, "b1", a)

	op, apiErr := m.Load(context.Background(), "b1", "model-a")
	require.Nil(t, apiErr)
	require.Equal(t, registry.OpCompleted, op.Status)
}

func TestLoadRejectsOnInsufficientVRAMHeadroom(t *testing.T) {
	a := &fakeAgent{id: "b1", resourceUsage: agent.ResourceUsage{
		TotalKnown: true, TotalBytes: 100, FreeBytes: 1,
	}}
	m := newManagerWithBackend(t, "b1", a)

	_, apiErr := m.Load(context.Background(), "b1", "model-a")
	require.NotNil(t, apiErr)
	require.Equal(t, 507, apiErr.Status)
}

func TestLoadPropagatesAgentFailure(t *testing.T) {
	a := &fakeAgent{id: "b1", loadErr: agent.Unsupported("load_model"), resourceErr: agent.Unsupported("resource_usage")}
	m := newManagerWithBackend(t, "b1", a)

	_, apiErr := m.Load(context.Background(), "b1", "model-a")
	require.NotNil(t, apiErr)
	require.Equal(t, 502, apiErr.Status)

	snap, _ := m.reg.GetBackend("b1")
	require.Nil(t, snap.CurrentOp, "a failed load must clear current_operation rather than leave it stuck in_progress")
}

func TestUnloadRejectsWhenRequestsInFlight(t *testing.T) {
	a := &fakeAgent{id: "b1"}
	reg := registry.New()
	require.NoError(t, reg.AddBackendWithAgent(&registry.Backend{ID: "b1", Tier: 1}, a))
	require.NoError(t, reg.UpdateStatus("b1", registry.StatusHealthy))
	require.NoError(t, reg.UpdateModels("b1", []registry.Model{{ID: "model-a"}}))
	reg.IncrementPending("b1")

	m := New(Config{}, reg)
	_, apiErr := m.Unload(context.Background(), "b1", "model-a")
	require.NotNil(t, apiErr)
	require.Equal(t, 409, apiErr.Status)
}
