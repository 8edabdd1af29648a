// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"nexus/internal/agent"
	"nexus/internal/apierror"
	"nexus/internal/fleet"
	"nexus/internal/logging"
	"nexus/internal/metrics"
	"nexus/internal/queue"
	"nexus/internal/quality"
	"nexus/internal/registry"
	"nexus/internal/routing"
)

// Orchestrator is the per-request coordinator (C12): it drives a chat
// request through the Router, dispatches to the chosen Agent, records the
// outcome to the Quality Store, and falls back to the capacity queue when
// the pipeline rejects purely on load.
type Orchestrator struct {
	reg     *registry.Registry
	router  *routing.Router
	quality *quality.Store
	queue   *queue.Queue
	fleetA  *fleet.Analyzer
	log     *logging.Logger
}

func New(reg *registry.Registry, router *routing.Router, qs *quality.Store, q *queue.Queue, fleetA *fleet.Analyzer) *Orchestrator {
	return &Orchestrator{reg: reg, router: router, quality: qs, queue: q, fleetA: fleetA, log: logging.New("orchestrator")}
}

// ChatOutcome is what HandleChat returns to the HTTP layer. Exactly one of
// Stream, Response, or RejectErr is set.
type ChatOutcome struct {
	Result    routing.Result
	Response  *agent.ChatResponse
	Stream    agent.StreamReader
	RejectErr *apierror.Error
}

// HandleChat runs one chat-completion request end-to-end: route, and on a
// capacity-only rejection hold it in the queue until a retry succeeds or
// max_wait_seconds elapses; any other rejection returns 503 immediately
// with an ActionableErrorContext-shaped body. On Route, the chosen Agent
// is invoked and the outcome recorded to the Quality Store.
func (o *Orchestrator) HandleChat(ctx context.Context, authHeader string, cr agent.ChatRequest, requirements routing.RequestRequirements, tierMode routing.TierMode, highPriority bool) ChatOutcome {
	requestID := uuid.NewString()

	result := o.router.Route(requestID, requirements, tierMode)
	if result.Decision.Routed {
		return o.dispatch(ctx, authHeader, cr, result)
	}

	if !isCapacityRejection(result) {
		return ChatOutcome{Result: result, RejectErr: rejectionToError(result)}
	}

	if o.queue == nil {
		return ChatOutcome{Result: result, RejectErr: rejectionToError(result)}
	}

	reply, err := o.enqueueAndWait(ctx, requirements, tierMode, highPriority)
	if err != nil {
		return ChatOutcome{Result: result, RejectErr: err}
	}
	if reply.Err != nil {
		return ChatOutcome{Result: result, RejectErr: reply.Err}
	}

	// The queue's retry succeeded; re-run Route once more to obtain the
	// now-available decision and dispatch normally.
	result = o.router.Route(requestID, requirements, tierMode)
	if !result.Decision.Routed {
		return ChatOutcome{Result: result, RejectErr: rejectionToError(result)}
	}
	result.RouteReason = "capacity-overflow:" + result.RouteReason
	return o.dispatch(ctx, authHeader, cr, result)
}

// RouteOnly runs the pipeline (including the capacity queue hold) without
// dispatching to an Agent; used by endpoints whose upstream call is not
// ChatCompletion (embeddings) but still need a routed backend decision.
func (o *Orchestrator) RouteOnly(ctx context.Context, requirements routing.RequestRequirements, tierMode routing.TierMode, highPriority bool) (routing.Result, *apierror.Error) {
	requestID := uuid.NewString()

	result := o.router.Route(requestID, requirements, tierMode)
	if result.Decision.Routed {
		return result, nil
	}

	if !isCapacityRejection(result) || o.queue == nil {
		return result, rejectionToError(result)
	}

	reply, err := o.enqueueAndWait(ctx, requirements, tierMode, highPriority)
	if err != nil {
		return result, err
	}
	if reply.Err != nil {
		return result, reply.Err
	}

	result = o.router.Route(requestID, requirements, tierMode)
	if !result.Decision.Routed {
		return result, rejectionToError(result)
	}
	result.RouteReason = "capacity-overflow:" + result.RouteReason
	return result, nil
}

func (o *Orchestrator) enqueueAndWait(ctx context.Context, requirements routing.RequestRequirements, tierMode routing.TierMode, highPriority bool) (queue.Reply, *apierror.Error) {
	priority := queue.Normal
	if highPriority {
		priority = queue.High
	}

	replyCh := make(chan queue.Reply, 1)
	req := &queue.Request{
		Requirements: requirements,
		TierMode:     tierMode,
		Priority:     priority,
		EnqueuedAt:   time.Now(),
		ReplyCh:      replyCh,
	}

	if err := o.queue.Enqueue(req); err != nil {
		return queue.Reply{}, apierror.New(503, apierror.CodeQueueFull, "request queue is full").WithSuggestion("retry later or reduce concurrent load")
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return queue.Reply{}, apierror.New(503, apierror.CodeQueueTimeout, "client disconnected while queued")
	}
}

func isCapacityRejection(result routing.Result) bool {
	if len(result.Decision.RejectionReasons) == 0 {
		return false
	}
	for _, r := range result.Decision.RejectionReasons {
		if r.ReconcilerName != "Scheduler" {
			return false
		}
	}
	return true
}

func rejectionToError(result routing.Result) *apierror.Error {
	stages := make([]apierror.RejectedReconciler, 0, len(result.Decision.RejectionReasons))
	byStage := map[string]int{}
	restricted := false
	for _, r := range result.Decision.RejectionReasons {
		byStage[r.ReconcilerName]++
		if r.ReconcilerName == "PrivacyReconciler" {
			restricted = true
		}
	}
	for stage, count := range byStage {
		stages = append(stages, apierror.RejectedReconciler{Stage: stage, EliminatedCount: count})
		metrics.RoutingRejectionsTotal.WithLabelValues(stage).Inc()
	}

	message := "no backend satisfies the request's routing constraints"
	if restricted {
		message = "no backend satisfies the required privacy zone"
	}

	return apierror.New(503, apierror.CodeNoBackendMatched, message).
		WithStages(stages).
		WithSuggestion("check backend health, privacy zone, and tier requirements")
}

func (o *Orchestrator) dispatch(ctx context.Context, authHeader string, cr agent.ChatRequest, result routing.Result) ChatOutcome {
	backendID := result.Decision.AgentID
	o.reg.IncrementPending(backendID)

	if o.fleetA != nil {
		o.fleetA.Observe(result.ResolvedModel, backendID)
	}

	a, ok := o.reg.GetAgent(backendID)
	if !ok {
		o.reg.DecrementPending(backendID)
		return ChatOutcome{Result: result, RejectErr: apierror.New(500, apierror.CodeInternal, "selected backend vanished from registry")}
	}

	start := time.Now()

	if cr.Stream {
		stream, err := a.ChatCompletionStream(ctx, cr, authHeader)
		elapsed := time.Since(start).Milliseconds()
		o.recordOutcome(backendID, err == nil, elapsed)
		if err != nil {
			o.reg.DecrementPending(backendID)
			return ChatOutcome{Result: result, RejectErr: MapAgentError(err)}
		}
		// Pending stays incremented for the life of the stream; it is
		// decremented when the wrapped reader is closed, not here.
		return ChatOutcome{Result: result, Stream: o.pendingTrackedStream(backendID, stream)}
	}

	defer o.reg.DecrementPending(backendID)
	resp, err := a.ChatCompletion(ctx, cr, authHeader)
	ttft := time.Since(start).Milliseconds()
	o.recordOutcome(backendID, err == nil, ttft)
	if err != nil {
		return ChatOutcome{Result: result, RejectErr: MapAgentError(err)}
	}
	return ChatOutcome{Result: result, Response: resp}
}

// pendingTrackedStream wraps stream so the backend's pending-request count
// stays incremented for the full duration of the SSE forward, only
// decrementing once the caller closes the stream.
type pendingTrackedStream struct {
	agent.StreamReader
	reg       *registry.Registry
	backendID string
	done      bool
}

func (o *Orchestrator) pendingTrackedStream(backendID string, stream agent.StreamReader) agent.StreamReader {
	return &pendingTrackedStream{StreamReader: stream, reg: o.reg, backendID: backendID}
}

func (p *pendingTrackedStream) Close() error {
	err := p.StreamReader.Close()
	if !p.done {
		p.done = true
		p.reg.DecrementPending(p.backendID)
	}
	return err
}

func (o *Orchestrator) recordOutcome(backendID string, success bool, elapsedMS int64) {
	o.quality.RecordOutcome(backendID, success, elapsedMS)
	o.reg.RecordLatency(backendID, uint32(elapsedMS))
	status := "success"
	if !success {
		status = "error"
	}
	metrics.RequestsTotal.WithLabelValues(backendID, status).Inc()
	metrics.RequestDurationMillis.WithLabelValues(backendID).Observe(float64(elapsedMS))
}
