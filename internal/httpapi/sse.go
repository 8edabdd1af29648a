// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package httpapi

import (
	"errors"
	"net/http"

	"nexus/internal/agent"
	"nexus/internal/orchestrator"
	"nexus/internal/routing"
)

var sseFrameTerminator = []byte("\n\n")

// streamSSE writes the advisory headers before the first SSE frame, then
// copies chunks from the upstream StreamReader through untouched until
// ErrStreamDone or the client disconnects, never buffering a full body.
func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, view routing.AgentView, result routing.Result, stream agent.StreamReader) {
	orchestrator.WriteAdvisoryHeaders(w, view, result)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, canFlush := w.(http.Flusher)
	w.WriteHeader(http.StatusOK)
	if canFlush {
		flusher.Flush()
	}

	defer stream.Close()
	ctx := r.Context()
	for {
		chunk, err := stream.Next(ctx)
		if err != nil {
			if !errors.Is(err, agent.ErrStreamDone) {
				s.log.Warn("", "stream terminated early", map[string]interface{}{"error": err.Error()})
			}
			return
		}
		if _, writeErr := w.Write(chunk.Raw); writeErr != nil {
			return
		}
		if _, writeErr := w.Write(sseFrameTerminator); writeErr != nil {
			return
		}
		if canFlush {
			flusher.Flush()
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
