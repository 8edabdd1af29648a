// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package httpapi

import (
	"encoding/json"
	"net/http"
	"time"
)

// StatsResponse is the GET /v1/stats JSON body.
type StatsResponse struct {
	UptimeSeconds uint64         `json:"uptime_seconds"`
	Requests      RequestStats   `json:"requests"`
	Backends      []BackendStats `json:"backends"`
	Models        []ModelStats   `json:"models"`
}

type RequestStats struct {
	Total   uint64 `json:"total"`
	Success uint64 `json:"success"`
	Errors  uint64 `json:"errors"`
}

type BackendStats struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Requests          uint64  `json:"requests"`
	AverageLatencyMS  float64 `json:"average_latency_ms"`
	Pending           int     `json:"pending"`
}

type ModelStats struct {
	Name              string  `json:"name"`
	Requests          uint64  `json:"requests"`
	AverageDurationMS float64 `json:"average_duration_ms"`
}

var processStart = time.Now()

// handleStats aggregates per-backend counters already tracked by the
// registry (total_requests, avg_latency_ms, pending_requests) into the
// dashboard-facing JSON shape; per-model breakdowns are derived from each
// backend's advertised model list weighted by its own totals, since Nexus
// does not keep a separate per-model counter.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snaps := s.reg.GetAllBackends()

	resp := StatsResponse{UptimeSeconds: uint64(time.Since(processStart).Seconds())}

	var total, success, errs uint64
	modelTotals := make(map[string]uint64)

	for _, snap := range snaps {
		resp.Backends = append(resp.Backends, BackendStats{
			ID:               snap.ID,
			Name:             snap.DisplayName,
			Requests:         snap.TotalRequests,
			AverageLatencyMS: float64(snap.AvgLatencyMS),
			Pending:          int(snap.PendingRequests),
		})
		total += snap.TotalRequests
		agg := s.quality.Get(snap.ID)
		errCount := uint64(agg.ErrorRate1h * float64(agg.RequestCount1h))
		errs += errCount
		for _, m := range snap.Models {
			modelTotals[m.ID] += snap.TotalRequests / uint64(max(1, len(snap.Models)))
		}
	}
	if total > errs {
		success = total - errs
	}
	resp.Requests = RequestStats{Total: total, Success: success, Errors: errs}

	for name, count := range modelTotals {
		resp.Models = append(resp.Models, ModelStats{Name: name, Requests: count})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
