// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"nexus/internal/agent"
	"nexus/internal/apierror"
	"nexus/internal/orchestrator"
	"nexus/internal/routing"
)

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 32<<20))
	if err != nil {
		apierror.WriteJSON(w, apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, "failed to read request body"))
		return
	}

	cr, err := orchestrator.ParseChatRequest(body)
	if err != nil {
		apierror.WriteJSON(w, apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, "malformed chat completion request").WithParam("body"))
		return
	}

	requirements := orchestrator.BuildRequirements(body, cr)
	tierMode := orchestrator.TierModeFromHeaders(r.Header.Get("X-Nexus-Strict"), r.Header.Get("X-Nexus-Flexible"))
	highPriority := orchestrator.PriorityFromHeader(r.Header.Get("X-Priority"))
	authHeader := r.Header.Get("Authorization")

	outcome := s.orch.HandleChat(r.Context(), authHeader, cr, requirements, tierMode, highPriority)

	if outcome.RejectErr != nil {
		apierror.WriteJSON(w, outcome.RejectErr)
		return
	}

	view := outcome.Result.BackendView

	if outcome.Stream != nil {
		s.streamSSE(w, r, view, outcome.Result, outcome.Stream)
		return
	}

	orchestrator.WriteAdvisoryHeaders(w, view, outcome.Result)
	writeUpstreamJSON(w, outcome.Response)
}

func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		apierror.WriteJSON(w, apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, "failed to read request body"))
		return
	}

	var req struct {
		Model string `json:"model"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.Model == "" {
		apierror.WriteJSON(w, apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, "malformed embeddings request").WithParam("model"))
		return
	}

	requirements := routing.RequestRequirements{Model: req.Model}
	tierMode := orchestrator.TierModeFromHeaders(r.Header.Get("X-Nexus-Strict"), r.Header.Get("X-Nexus-Flexible"))
	highPriority := orchestrator.PriorityFromHeader(r.Header.Get("X-Priority"))

	result, apiErr := s.orch.RouteOnly(r.Context(), requirements, tierMode, highPriority)
	if apiErr != nil {
		apierror.WriteJSON(w, apiErr)
		return
	}

	backendID := result.Decision.AgentID
	a, ok := s.reg.GetAgent(backendID)
	if !ok {
		apierror.WriteJSON(w, apierror.New(http.StatusInternalServerError, apierror.CodeInternal, "selected backend vanished from registry"))
		return
	}

	s.reg.IncrementPending(backendID)
	defer s.reg.DecrementPending(backendID)

	resp, err := a.Embeddings(r.Context(), agent.EmbeddingsRequest{Model: req.Model, RawBody: body}, r.Header.Get("Authorization"))
	if err != nil {
		s.quality.RecordOutcome(backendID, false, 0)
		apierror.WriteJSON(w, orchestrator.MapAgentError(err))
		return
	}
	s.quality.RecordOutcome(backendID, true, 0)

	orchestrator.WriteAdvisoryHeaders(w, result.BackendView, result)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.RawBody)
}

func writeUpstreamJSON(w http.ResponseWriter, resp *agent.ChatResponse) {
	w.Header().Set("Content-Type", "application/json")
	for k, v := range resp.Headers {
		if v != "" {
			w.Header().Set(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.RawBody)
}
