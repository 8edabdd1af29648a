// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package apierror defines the OpenAI-compatible error envelope Nexus
// returns on every non-2xx response, plus the actionable-context body
// attached to 503 rejections raised by the reconciler pipeline.
package apierror

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code, stable across releases.
type Code string

const (
	CodeInvalidRequest    Code = "invalid_request"
	CodeNoBackendMatched  Code = "no_backend_matched"
	CodeBudgetExceeded    Code = "budget_exceeded"
	CodeQueueFull         Code = "queue_full"
	CodeQueueTimeout      Code = "queue_timeout"
	CodeBackendUnhealthy  Code = "backend_unhealthy"
	CodeUpstreamError     Code = "upstream_error"
	CodeUpstreamTimeout   Code = "upstream_timeout"
	CodeOperationConflict Code = "operation_conflict"
	CodeInsufficientVRAM  Code = "insufficient_resources"
	CodeNotFound          Code = "not_found"
	CodeInternal          Code = "internal_error"
	CodeUnsupported       Code = "unsupported_operation"
)

// ErrorBody is the `error` object of the OpenAI-style envelope.
type ErrorBody struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Param   *string `json:"param,omitempty"`
	Code    Code    `json:"code"`
}

// Envelope is the top-level JSON body of an error response.
type Envelope struct {
	Error ErrorBody `json:"error"`
}

// RejectedReconciler describes one pipeline stage's contribution to a
// routing rejection, surfaced so operators can see why every candidate
// backend was eliminated rather than just the final empty-set outcome.
type RejectedReconciler struct {
	Stage           string   `json:"stage"`
	EliminatedCount int      `json:"eliminated_count"`
	Reason          string   `json:"reason"`
	Candidates      []string `json:"candidates,omitempty"`
}

// ActionableErrorContext is attached to routing-rejection responses
// (no_backend_matched, budget_exceeded) to tell the caller what to try.
type ActionableErrorContext struct {
	Envelope
	Stages     []RejectedReconciler `json:"stages,omitempty"`
	Suggestion string               `json:"suggestion,omitempty"`
}

// Error is Nexus's internal error type; it carries enough information to
// render either a plain Envelope or an ActionableErrorContext.
type Error struct {
	Status     int
	Code       Code
	Message    string
	Param      *string
	Stages     []RejectedReconciler
	Suggestion string
	Cause      error

	// RawBody, when non-nil, is written to the client verbatim instead of
	// the Envelope: it holds an upstream error body that is already a
	// valid OpenAI-style error object and must pass through byte-identical
	// rather than be re-wrapped as a string inside Nexus's own envelope.
	RawBody []byte
}

func (e *Error) Error() string {
	if len(e.RawBody) > 0 {
		return fmt.Sprintf("%s: %s", e.Code, string(e.RawBody))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a plain apierror.Error.
func New(status int, code Code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// Newf builds a plain apierror.Error with a formatted message.
func Newf(status int, code Code, format string, args ...interface{}) *Error {
	return &Error{Status: status, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates an existing error with a status/code, preserving it as Cause.
func Wrap(status int, code Code, message string, cause error) *Error {
	return &Error{Status: status, Code: code, Message: message, Cause: cause}
}

// WrapRaw builds an apierror.Error that passes raw through to the client
// byte-identical: WriteJSON writes RawBody directly instead of rendering an
// Envelope, for upstream error bodies that are already OpenAI-shaped.
func WrapRaw(status int, code Code, raw []byte, cause error) *Error {
	return &Error{Status: status, Code: code, RawBody: raw, Cause: cause}
}

// WithParam sets the offending request field name.
func (e *Error) WithParam(param string) *Error {
	e.Param = &param
	return e
}

// WithStages attaches reconciler-stage elimination detail.
func (e *Error) WithStages(stages []RejectedReconciler) *Error {
	e.Stages = stages
	return e
}

// WithSuggestion attaches an operator-facing remediation hint.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// errType maps a Code onto the OpenAI envelope's coarse "type" field.
func errType(code Code) string {
	switch code {
	case CodeInvalidRequest, CodeUnsupported:
		return "invalid_request_error"
	case CodeNoBackendMatched, CodeBudgetExceeded, CodeQueueFull, CodeQueueTimeout,
		CodeBackendUnhealthy, CodeInsufficientVRAM, CodeOperationConflict:
		return "routing_error"
	case CodeUpstreamError, CodeUpstreamTimeout:
		return "upstream_error"
	case CodeNotFound:
		return "not_found_error"
	default:
		return "server_error"
	}
}

// Envelope renders e as the JSON body Nexus writes to the client.
func (e *Error) Envelope() interface{} {
	body := ErrorBody{Message: e.Message, Type: errType(e.Code), Param: e.Param, Code: e.Code}
	if len(e.Stages) == 0 && e.Suggestion == "" {
		return Envelope{Error: body}
	}
	return ActionableErrorContext{Envelope: Envelope{Error: body}, Stages: e.Stages, Suggestion: e.Suggestion}
}

// WriteJSON writes e to w as a JSON error response with the matching HTTP
// status code. When e.RawBody is set, it is written verbatim instead of
// Envelope(), so an upstream error body passes through byte-identical.
func WriteJSON(w http.ResponseWriter, e *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	if len(e.RawBody) > 0 {
		_, _ = w.Write(e.RawBody)
		return
	}
	_ = json.NewEncoder(w).Encode(e.Envelope())
}

// FromUpstream wraps a raw upstream error body as an apierror.Error carrying
// the upstream status code; the body becomes the Message, truncated to its
// first 500 bytes, and is rendered inside Nexus's own envelope (use WrapRaw
// for byte-identical passthrough).
func FromUpstream(status int, body []byte) *Error {
	msg := string(body)
	if len(msg) > 500 {
		msg = msg[:500]
	}
	code := CodeUpstreamError
	if status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout {
		code = CodeUpstreamTimeout
	}
	return &Error{Status: status, Code: code, Message: msg}
}
