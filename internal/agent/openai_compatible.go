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

// OpenAICompatibleConfig configures any backend that speaks the OpenAI
// /v1/* wire format natively: OpenAI itself, vLLM, LM Studio, and any
// generic self-hosted runtime exposing the same surface.
type OpenAICompatibleConfig struct {
	BackendID string
	Kind      Kind // KindOpenAI, KindVLLM, KindLMStudio, or KindGeneric
	BaseURL   string
	APIKey    string
	Zone      PrivacyZone
	Tier      int
	Client    HTTPClient
}

// OpenAICompatible is the Agent implementation shared by every backend
// dialect whose wire format is already OpenAI's; only base URL, auth
// convention, and profile differ between them.
type OpenAICompatible struct {
	cfg OpenAICompatibleConfig
}

func NewOpenAICompatible(cfg OpenAICompatibleConfig) *OpenAICompatible {
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	return &OpenAICompatible{cfg: cfg}
}

func (o *OpenAICompatible) Name() string { return o.cfg.BackendID }

func (o *OpenAICompatible) Profile() Profile {
	caps := map[Capability]bool{CapEmbeddings: true, CapCountTokens: true}
	if o.cfg.Kind == KindVLLM || o.cfg.Kind == KindLMStudio {
		caps[CapLoadModel] = true
		caps[CapUnloadModel] = true
	}
	return Profile{Kind: o.cfg.Kind, Zone: o.cfg.Zone, Tier: o.cfg.Tier, Capabilities: caps}
}

func (o *OpenAICompatible) authHeader() string {
	if o.cfg.APIKey == "" {
		return ""
	}
	return "Bearer " + o.cfg.APIKey
}

func (o *OpenAICompatible) newRequest(ctx context.Context, method, path string, body []byte, authOverride string) (*http.Request, error) {
	req, err := http.NewRequest(method, o.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: ErrConfiguration, Op: path, Message: err.Error(), Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if authOverride != "" {
		req.Header.Set("Authorization", authOverride)
	} else if h := o.authHeader(); h != "" {
		req.Header.Set("Authorization", h)
	}
	return req.WithContext(ctx), nil
}

func (o *OpenAICompatible) HealthCheck(ctx context.Context) (HealthResult, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultHealthTimeout)
	defer cancel()
	req, err := o.newRequest(ctx, http.MethodGet, "/v1/models", nil, "")
	if err != nil {
		return HealthResult{}, err
	}
	resp, err := doRequest(ctx, o.cfg.Client, req, "health_check")
	if err != nil {
		return HealthResult{}, err
	}
	body, err := readAllOrError(resp, "health_check")
	if err != nil {
		return HealthResult{}, err
	}
	var parsed struct {
		Data []struct{ ID string `json:"id"` } `json:"data"`
	}
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil {
		return HealthResult{}, &Error{Kind: ErrInvalidResp, Op: "health_check", Message: jsonErr.Error(), Cause: jsonErr}
	}
	return HealthResult{Healthy: true, ModelCount: len(parsed.Data)}, nil
}

func (o *OpenAICompatible) ListModels(ctx context.Context) ([]ModelCapability, error) {
	req, err := o.newRequest(ctx, http.MethodGet, "/v1/models", nil, "")
	if err != nil {
		return nil, err
	}
	resp, err := doRequest(ctx, o.cfg.Client, req, "list_models")
	if err != nil {
		return nil, err
	}
	body, err := readAllOrError(resp, "list_models")
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil {
		return nil, &Error{Kind: ErrInvalidResp, Op: "list_models", Message: jsonErr.Error(), Cause: jsonErr}
	}
	out := make([]ModelCapability, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		mc := ModelCapability{ID: m.ID, DisplayName: m.ID, ContextLength: 4096}
		modelHeuristics(&mc)
		out = append(out, mc)
	}
	return out, nil
}

func (o *OpenAICompatible) ChatCompletion(ctx context.Context, cr ChatRequest, authHeader string) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultChatTimeout)
	defer cancel()
	req, err := o.newRequest(ctx, http.MethodPost, "/v1/chat/completions", cr.RawBody, authHeader)
	if err != nil {
		return nil, err
	}
	resp, err := doRequest(ctx, o.cfg.Client, req, "chat_completion")
	if err != nil {
		return nil, err
	}
	body, err := readAllOrError(resp, "chat_completion")
	if err != nil {
		return nil, err
	}
	return &ChatResponse{RawBody: body, StatusCode: resp.StatusCode, Headers: headerMap(resp.Header)}, nil
}

func (o *OpenAICompatible) ChatCompletionStream(ctx context.Context, cr ChatRequest, authHeader string) (StreamReader, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	req, err := o.newRequest(streamCtx, http.MethodPost, "/v1/chat/completions", cr.RawBody, authHeader)
	if err != nil {
		cancel()
		return nil, err
	}
	resp, err := doRequest(streamCtx, o.cfg.Client, req, "chat_completion_stream")
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

func (o *OpenAICompatible) Embeddings(ctx context.Context, er EmbeddingsRequest, authHeader string) (*EmbeddingsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultChatTimeout)
	defer cancel()
	req, err := o.newRequest(ctx, http.MethodPost, "/v1/embeddings", er.RawBody, authHeader)
	if err != nil {
		return nil, err
	}
	resp, err := doRequest(ctx, o.cfg.Client, req, "embeddings")
	if err != nil {
		return nil, err
	}
	body, err := readAllOrError(resp, "embeddings")
	if err != nil {
		return nil, err
	}
	return &EmbeddingsResponse{RawBody: body, StatusCode: resp.StatusCode}, nil
}

func (o *OpenAICompatible) LoadModel(ctx context.Context, modelID string) error {
	if !o.Profile().Has(CapLoadModel) {
		return Unsupported("load_model")
	}
	payload, _ := json.Marshal(map[string]string{"model": modelID})
	req, err := o.newRequest(ctx, http.MethodPost, "/v1/internal/model/load", payload, "")
	if err != nil {
		return err
	}
	resp, err := doRequest(ctx, o.cfg.Client, req, "load_model")
	if err != nil {
		return err
	}
	_, err = readAllOrError(resp, "load_model")
	return err
}

func (o *OpenAICompatible) UnloadModel(ctx context.Context, modelID string) error {
	if !o.Profile().Has(CapUnloadModel) {
		return Unsupported("unload_model")
	}
	payload, _ := json.Marshal(map[string]string{"model": modelID})
	req, err := o.newRequest(ctx, http.MethodPost, "/v1/internal/model/unload", payload, "")
	if err != nil {
		return err
	}
	resp, err := doRequest(ctx, o.cfg.Client, req, "unload_model")
	if err != nil {
		return err
	}
	_, err = readAllOrError(resp, "unload_model")
	return err
}

func (o *OpenAICompatible) CountTokens(ctx context.Context, modelID, text string) (int, bool, error) {
	return int(math.Ceil(1.15 * float64(len(text)) / 4.0)), false, nil
}

func (o *OpenAICompatible) ResourceUsage(ctx context.Context) (ResourceUsage, error) {
	return ResourceUsage{}, Unsupported("resource_usage")
}
