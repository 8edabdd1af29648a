// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package orchestrator is the per-request coordinator (C12): it parses the
// inbound request, builds RequestRequirements, calls the Router, forwards
// streaming or non-streaming to the chosen Agent, records quality/metrics
// outcomes, and attaches the advisory X-Nexus-* headers.
package orchestrator

import (
	"bytes"
	"encoding/json"
	"strings"

	"nexus/internal/agent"
	"nexus/internal/routing"
	"nexus/internal/tokenizer"
)

// tokenizers is the process-wide tokenizer registry BuildRequirements
// consults for a per-model token estimate; models that match no specific
// rule fall to its catch-all Heuristic rule, ceil(1.15*len/4).
var tokenizers = tokenizer.NewRegistry()

// rawChatRequest is the subset of the inbound JSON body needed to build
// RequestRequirements; RawBody is preserved and forwarded byte-identically.
type rawChatRequest struct {
	Model          string          `json:"model"`
	Messages       []agent.ChatMessage `json:"messages"`
	Stream         bool            `json:"stream"`
	Tools          json.RawMessage `json:"tools,omitempty"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

// ParseChatRequest parses body into an agent.ChatRequest, preserving the
// raw bytes for byte-identical forwarding.
func ParseChatRequest(body []byte) (agent.ChatRequest, error) {
	var raw rawChatRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return agent.ChatRequest{}, err
	}
	return agent.ChatRequest{
		Model:    raw.Model,
		Messages: raw.Messages,
		Stream:   raw.Stream,
		Tools:    raw.Tools,
		RawBody:  body,
	}, nil
}

// BuildRequirements derives RequestRequirements from a parsed chat request:
// scans messages for image parts (-> needs_vision), presence of tools
// (-> needs_tools), response_format.type=="json_object" (-> needs_json_mode),
// and estimated_tokens from the tokenizer registry's per-message counts.
func BuildRequirements(body []byte, cr agent.ChatRequest) routing.RequestRequirements {
	var raw rawChatRequest
	_ = json.Unmarshal(body, &raw)

	needsVision := messagesContainImage(cr.Messages)
	needsTools := len(cr.Tools) > 0 && !bytes.Equal(bytes.TrimSpace(cr.Tools), []byte("null"))
	needsJSON := strings.EqualFold(raw.ResponseFormat.Type, "json_object")

	estimatedTokens := 0
	for _, m := range cr.Messages {
		n, _ := tokenizers.CountTokens(cr.Model, string(m.Content))
		estimatedTokens += n
	}

	return routing.RequestRequirements{
		Model:            cr.Model,
		EstimatedTokens:  estimatedTokens,
		NeedsVision:      needsVision,
		NeedsTools:       needsTools,
		NeedsJSONMode:    needsJSON,
		PrefersStreaming: cr.Stream,
	}
}

// messagesContainImage scans each message's content for an OpenAI-style
// multi-part array containing an image_url part.
func messagesContainImage(messages []agent.ChatMessage) bool {
	for _, m := range messages {
		trimmed := bytes.TrimSpace(m.Content)
		if len(trimmed) == 0 || trimmed[0] != '[' {
			continue
		}
		var parts []struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			continue
		}
		for _, p := range parts {
			if p.Type == "image_url" || p.Type == "image" {
				return true
			}
		}
	}
	return false
}

// TierModeFromHeaders resolves X-Nexus-Strict/X-Nexus-Flexible, Strict
// winning when both are present (also the default when neither is set).
func TierModeFromHeaders(strictHeader, flexibleHeader string) routing.TierMode {
	strict := strictHeader != "" && strictHeader != "false"
	flexible := flexibleHeader != "" && flexibleHeader != "false"
	if flexible && !strict {
		return routing.TierFlexible
	}
	return routing.TierStrict
}

// PriorityFromHeader maps X-Priority: "high" -> High, anything else -> Normal.
func PriorityFromHeader(v string) bool {
	return strings.EqualFold(v, "high")
}
