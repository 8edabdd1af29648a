// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"nexus/internal/apierror"
	"nexus/internal/registry"
)

type loadModelRequest struct {
	BackendID string `json:"backend_id"`
	Model     string `json:"model"`
}

type migrateModelRequest struct {
	Model  string `json:"model"`
	Source string `json:"source_backend_id"`
	Target string `json:"target_backend_id"`
}

// writeLifecycleAccepted writes the common 202-Accepted shape every
// lifecycle endpoint returns: the two advisory headers plus a small JSON
// body naming the operation.
func writeLifecycleAccepted(w http.ResponseWriter, op *registry.LifecycleOperation) {
	w.Header().Set("x-nexus-lifecycle-status", string(op.Status))
	w.Header().Set("x-nexus-lifecycle-operation", op.OperationID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"operation_id": op.OperationID,
		"type":         op.Type,
		"model_id":     op.ModelID,
		"status":       op.Status,
	})
}

func (s *Server) handleLoadModel(w http.ResponseWriter, r *http.Request) {
	var req loadModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BackendID == "" || req.Model == "" {
		apierror.WriteJSON(w, apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, "backend_id and model are required"))
		return
	}

	op, apiErr := s.life.Load(r.Context(), req.BackendID, req.Model)
	if apiErr != nil {
		apierror.WriteJSON(w, apiErr)
		return
	}
	writeLifecycleAccepted(w, op)
}

func (s *Server) handleUnloadModel(w http.ResponseWriter, r *http.Request) {
	modelID := mux.Vars(r)["id"]
	backendID := r.URL.Query().Get("backend_id")
	if modelID == "" || backendID == "" {
		apierror.WriteJSON(w, apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, "model id and backend_id query parameter are required"))
		return
	}

	op, apiErr := s.life.Unload(r.Context(), backendID, modelID)
	if apiErr != nil {
		apierror.WriteJSON(w, apiErr)
		return
	}
	writeLifecycleAccepted(w, op)
}

func (s *Server) handleMigrateModel(w http.ResponseWriter, r *http.Request) {
	var req migrateModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Model == "" || req.Source == "" || req.Target == "" {
		apierror.WriteJSON(w, apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, "model, source_backend_id, and target_backend_id are required"))
		return
	}

	op, apiErr := s.life.Migrate(r.Context(), req.Source, req.Target, req.Model)
	if apiErr != nil {
		apierror.WriteJSON(w, apiErr)
		return
	}
	writeLifecycleAccepted(w, op)
}
