// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package httpapi

import (
	"encoding/json"
	"net/http"
	"time"
)

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelsListResponse struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

// handleListModels aggregates distinct model ids across every registered
// backend into a single OpenAI-shaped /v1/models listing.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	snaps := s.reg.GetAllBackends()
	seen := make(map[string]bool)
	out := modelsListResponse{Object: "list"}
	now := time.Now().Unix()

	for _, snap := range snaps {
		for _, m := range snap.Models {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			out.Data = append(out.Data, modelEntry{ID: m.ID, Object: "model", Created: now, OwnedBy: string(snap.Kind)})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

type healthBackendStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type healthResponse struct {
	Status       string                `json:"status"`
	Backends     []healthBackendStatus `json:"backends"`
	BudgetStatus string                `json:"budget_status"`
}

// handleHealth reports the gateway's own liveness plus a per-backend
// health summary; distinct from the per-backend HealthCheck probes the
// background health checker runs.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snaps := s.reg.GetAllBackends()
	resp := healthResponse{Status: "ok", BudgetStatus: s.budget.BudgetStatus().State}
	for _, snap := range snaps {
		resp.Backends = append(resp.Backends, healthBackendStatus{ID: snap.ID, Status: string(snap.Status)})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

type fleetRecommendationsResponse struct {
	Recommendations []fleetRecommendation `json:"recommendations"`
}

type fleetRecommendation struct {
	Model        string `json:"model"`
	BackendID    string `json:"backend_id"`
	RequestCount int    `json:"request_count"`
	Reason       string `json:"reason"`
}

func (s *Server) handleFleetRecommendations(w http.ResponseWriter, r *http.Request) {
	recs := s.fleetA.Recommendations()
	out := fleetRecommendationsResponse{}
	for _, rec := range recs {
		out.Recommendations = append(out.Recommendations, fleetRecommendation{
			Model: rec.Model, BackendID: rec.BackendID, RequestCount: rec.RequestCount, Reason: rec.Reason,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
