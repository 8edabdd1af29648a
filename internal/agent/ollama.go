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

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
)

// OllamaConfig configures an Ollama-dialect agent: Ollama speaks its own
// /api/* surface (not OpenAI's /v1/*), so chat requests are translated at
// the edges while bodies beyond the minimal envelope pass through opaquely.
type OllamaConfig struct {
	BackendID string
	BaseURL   string
	Zone      PrivacyZone
	Tier      int
	Client    HTTPClient
}

// Ollama implements Agent against a local Ollama runtime.
type Ollama struct {
	cfg OllamaConfig
}

func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	return &Ollama{cfg: cfg}
}

func (a *Ollama) Name() string { return a.cfg.BackendID }

func (a *Ollama) Profile() Profile {
	return Profile{
		Kind: KindOllama, Zone: a.cfg.Zone, Tier: a.cfg.Tier,
		Capabilities: map[Capability]bool{
			CapLoadModel: true, CapUnloadModel: true, CapCountTokens: false,
		},
	}
}

func (a *Ollama) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequest(method, a.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: ErrConfiguration, Op: path, Message: err.Error(), Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(ctx), nil
}

func (a *Ollama) HealthCheck(ctx context.Context) (HealthResult, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultHealthTimeout)
	defer cancel()
	req, err := a.newRequest(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return HealthResult{}, err
	}
	resp, err := doRequest(ctx, a.cfg.Client, req, "health_check")
	if err != nil {
		return HealthResult{}, err
	}
	body, err := readAllOrError(resp, "health_check")
	if err != nil {
		return HealthResult{}, err
	}
	var parsed struct {
		Models []struct{ Name string `json:"name"` } `json:"models"`
	}
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil {
		return HealthResult{}, &Error{Kind: ErrInvalidResp, Op: "health_check", Message: jsonErr.Error(), Cause: jsonErr}
	}
	return HealthResult{Healthy: true, ModelCount: len(parsed.Models)}, nil
}

func (a *Ollama) ListModels(ctx context.Context) ([]ModelCapability, error) {
	req, err := a.newRequest(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := doRequest(ctx, a.cfg.Client, req, "list_models")
	if err != nil {
		return nil, err
	}
	body, err := readAllOrError(resp, "list_models")
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Models []struct {
			Name    string `json:"name"`
			Details struct {
				ParameterSize string `json:"parameter_size"`
			} `json:"details"`
		} `json:"models"`
	}
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil {
		return nil, &Error{Kind: ErrInvalidResp, Op: "list_models", Message: jsonErr.Error(), Cause: jsonErr}
	}
	out := make([]ModelCapability, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		mc := ModelCapability{ID: m.Name, DisplayName: m.Name, ContextLength: 4096}
		modelHeuristics(&mc)
		out = append(out, mc)
	}
	return out, nil
}

// ollamaChatRequest is the minimal native envelope; Messages/Stream map
// directly, everything else (tools, response_format) is opaque to Ollama
// and dropped rather than translated, since native wire shape is out of scope.
type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

func (a *Ollama) translate(cr ChatRequest) []byte {
	req := ollamaChatRequest{Model: cr.Model, Messages: cr.Messages, Stream: cr.Stream}
	b, _ := json.Marshal(req)
	return b
}

func (a *Ollama) ChatCompletion(ctx context.Context, cr ChatRequest, authHeader string) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultChatTimeout)
	defer cancel()
	req, err := a.newRequest(ctx, http.MethodPost, "/api/chat", a.translate(cr))
	if err != nil {
		return nil, err
	}
	resp, err := doRequest(ctx, a.cfg.Client, req, "chat_completion")
	if err != nil {
		return nil, err
	}
	body, err := readAllOrError(resp, "chat_completion")
	if err != nil {
		return nil, err
	}
	return &ChatResponse{RawBody: body, StatusCode: resp.StatusCode, Headers: headerMap(resp.Header)}, nil
}

func (a *Ollama) ChatCompletionStream(ctx context.Context, cr ChatRequest, authHeader string) (StreamReader, error) {
	cr.Stream = true
	streamCtx, cancel := context.WithCancel(ctx)
	req, err := a.newRequest(streamCtx, http.MethodPost, "/api/chat", a.translate(cr))
	if err != nil {
		cancel()
		return nil, err
	}
	resp, err := doRequest(streamCtx, a.cfg.Client, req, "chat_completion_stream")
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode >= 300 {
		body, _ := readAllOrError(resp, "chat_completion_stream")
		cancel()
		return nil, &Error{Kind: ErrUpstream, Op: "chat_completion_stream", StatusCode: resp.StatusCode, Body: body}
	}
	return newHTTPStreamReader(resp, cancel), nil
}

func (a *Ollama) Embeddings(ctx context.Context, er EmbeddingsRequest, authHeader string) (*EmbeddingsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultChatTimeout)
	defer cancel()
	req, err := a.newRequest(ctx, http.MethodPost, "/api/embeddings", er.RawBody)
	if err != nil {
		return nil, err
	}
	resp, err := doRequest(ctx, a.cfg.Client, req, "embeddings")
	if err != nil {
		return nil, err
	}
	body, err := readAllOrError(resp, "embeddings")
	if err != nil {
		return nil, err
	}
	return &EmbeddingsResponse{RawBody: body, StatusCode: resp.StatusCode}, nil
}

func (a *Ollama) LoadModel(ctx context.Context, modelID string) error {
	payload, _ := json.Marshal(map[string]interface{}{"model": modelID, "keep_alive": -1})
	req, err := a.newRequest(ctx, http.MethodPost, "/api/generate", payload)
	if err != nil {
		return err
	}
	resp, err := doRequest(ctx, a.cfg.Client, req, "load_model")
	if err != nil {
		return err
	}
	_, err = readAllOrError(resp, "load_model")
	return err
}

func (a *Ollama) UnloadModel(ctx context.Context, modelID string) error {
	payload, _ := json.Marshal(map[string]interface{}{"model": modelID, "keep_alive": 0})
	req, err := a.newRequest(ctx, http.MethodPost, "/api/generate", payload)
	if err != nil {
		return err
	}
	resp, err := doRequest(ctx, a.cfg.Client, req, "unload_model")
	if err != nil {
		return err
	}
	_, err = readAllOrError(resp, "unload_model")
	return err
}

func (a *Ollama) CountTokens(ctx context.Context, modelID, text string) (int, bool, error) {
	return int(math.Ceil(1.15 * float64(len(text)) / 4.0)), false, nil
}

func (a *Ollama) ResourceUsage(ctx context.Context) (ResourceUsage, error) {
	req, err := a.newRequest(ctx, http.MethodGet, "/api/ps", nil)
	if err != nil {
		return ResourceUsage{}, err
	}
	resp, err := doRequest(ctx, a.cfg.Client, req, "resource_usage")
	if err != nil {
		return ResourceUsage{}, err
	}
	body, err := readAllOrError(resp, "resource_usage")
	if err != nil {
		return ResourceUsage{}, err
	}
	var parsed struct {
		Models []struct {
			SizeVRAM uint64 `json:"size_vram"`
		} `json:"models"`
	}
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil {
		return ResourceUsage{}, &Error{Kind: ErrInvalidResp, Op: "resource_usage", Message: jsonErr.Error(), Cause: jsonErr}
	}
	var used uint64
	for _, m := range parsed.Models {
		used += m.SizeVRAM
	}
	return ResourceUsage{UsedBytes: used, TotalKnown: false}, nil
}
