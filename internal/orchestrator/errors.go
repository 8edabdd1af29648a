// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"encoding/json"
	"fmt"

	"nexus/internal/agent"
	"nexus/internal/apierror"
)

// MapAgentError maps an Agent error onto the HTTP status/code table in
// the error handling design: Timeout->504, Network/Upstream>=500->502,
// Upstream=404->500 (preserving message), Upstream 4xx (not 404)->400,
// Unsupported->503, InvalidResponse/Configuration->502.
func MapAgentError(err error) *apierror.Error {
	aerr, ok := err.(*agent.Error)
	if !ok {
		return apierror.Wrap(500, apierror.CodeInternal, "internal error", err)
	}

	switch aerr.Kind {
	case agent.ErrTimeout:
		return apierror.Wrap(504, apierror.CodeUpstreamTimeout, "upstream request timed out", err)
	case agent.ErrUnsupported:
		return apierror.Wrap(503, apierror.CodeUnsupported, aerr.Message, err)
	case agent.ErrInvalidResp, agent.ErrConfiguration:
		return apierror.Wrap(502, apierror.CodeUpstreamError, aerr.Message, err)
	case agent.ErrUpstream:
		switch {
		case aerr.StatusCode == 404:
			out := FromBackendJSON(500, aerr.Body)
			out.Cause = err
			return out.WithSuggestion("backend reported model not found")
		case aerr.StatusCode >= 500:
			out := FromBackendJSON(502, aerr.Body)
			out.Cause = err
			return out
		case aerr.StatusCode >= 400:
			out := FromBackendJSON(400, aerr.Body)
			out.Cause = err
			return out
		default:
			out := FromBackendJSON(502, aerr.Body)
			out.Cause = err
			return out
		}
	case agent.ErrNetwork:
		return apierror.Wrap(502, apierror.CodeUpstreamError, "network error contacting backend", err)
	default:
		return apierror.Wrap(500, apierror.CodeInternal, fmt.Sprintf("unmapped agent error kind %q", aerr.Kind), err)
	}
}

// FromBackendJSON decides whether raw is already a valid OpenAI-style error
// object — in which case it is carried as RawBody and written to the
// client byte-identical — or must be wrapped in a bad_gateway envelope.
func FromBackendJSON(status int, raw []byte) *apierror.Error {
	if looksLikeOpenAIError(raw) {
		return apierror.WrapRaw(status, apierror.CodeUpstreamError, raw, nil)
	}
	return apierror.Newf(status, apierror.CodeUpstreamError, "bad_gateway: backend returned a non-standard error body")
}

func looksLikeOpenAIError(raw []byte) bool {
	var probe struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Error != nil && probe.Error.Message != ""
}
