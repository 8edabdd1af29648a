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

const anthropicAPIVersion = "2023-06-01"

// AnthropicConfig configures the Anthropic Messages API dialect.
type AnthropicConfig struct {
	BackendID string
	BaseURL   string // defaults to https://api.anthropic.com
	APIKey    string
	Tier      int
	Client    HTTPClient
}

// Anthropic implements Agent against Anthropic's cloud API. Anthropic is
// always an Open-zone, cloud-kind backend: its data leaves the operator's
// premises by definition.
type Anthropic struct {
	cfg AnthropicConfig
}

func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	return &Anthropic{cfg: cfg}
}

func (a *Anthropic) Name() string { return a.cfg.BackendID }

func (a *Anthropic) Profile() Profile {
	return Profile{
		Kind: KindAnthropic, Zone: ZoneOpen, Tier: a.cfg.Tier,
		Capabilities: map[Capability]bool{},
	}
}

func (a *Anthropic) newRequest(ctx context.Context, path string, body []byte, authOverride string) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodPost, a.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: ErrConfiguration, Op: path, Message: err.Error(), Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	if authOverride != "" {
		req.Header.Set("Authorization", authOverride)
	} else if a.cfg.APIKey != "" {
		req.Header.Set("x-api-key", a.cfg.APIKey)
	}
	return req.WithContext(ctx), nil
}

func (a *Anthropic) HealthCheck(ctx context.Context) (HealthResult, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultHealthTimeout)
	defer cancel()
	payload, _ := json.Marshal(map[string]interface{}{
		"model": "claude-3-haiku-20240307", "max_tokens": 1,
		"messages": []map[string]string{{"role": "user", "content": "ping"}},
	})
	req, err := a.newRequest(ctx, "/v1/messages", payload, "")
	if err != nil {
		return HealthResult{}, err
	}
	resp, err := doRequest(ctx, a.cfg.Client, req, "health_check")
	if err != nil {
		return HealthResult{}, err
	}
	_, err = readAllOrError(resp, "health_check")
	if err != nil {
		return HealthResult{}, err
	}
	return HealthResult{Healthy: true, ModelCount: 0}, nil
}

// ListModels returns a static catalogue: Anthropic has no public discovery
// endpoint equivalent to OpenAI's /v1/models at the time of writing.
func (a *Anthropic) ListModels(ctx context.Context) ([]ModelCapability, error) {
	names := []string{"claude-3-5-sonnet-20241022", "claude-3-opus-20240229", "claude-3-haiku-20240307"}
	out := make([]ModelCapability, 0, len(names))
	for _, n := range names {
		out = append(out, ModelCapability{ID: n, DisplayName: n, ContextLength: 200000, SupportsVision: true, SupportsTools: true})
	}
	return out, nil
}

// anthropicMessagesRequest is the minimal native envelope; messages map
// near-directly since both speak a role/content array.
type anthropicMessagesRequest struct {
	Model     string        `json:"model"`
	Messages  []ChatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
	Stream    bool          `json:"stream"`
}

func (a *Anthropic) translate(cr ChatRequest) []byte {
	req := anthropicMessagesRequest{Model: cr.Model, Messages: cr.Messages, MaxTokens: 4096, Stream: cr.Stream}
	b, _ := json.Marshal(req)
	return b
}

func (a *Anthropic) ChatCompletion(ctx context.Context, cr ChatRequest, authHeader string) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultChatTimeout)
	defer cancel()
	req, err := a.newRequest(ctx, "/v1/messages", a.translate(cr), authHeader)
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

func (a *Anthropic) ChatCompletionStream(ctx context.Context, cr ChatRequest, authHeader string) (StreamReader, error) {
	cr.Stream = true
	streamCtx, cancel := context.WithCancel(ctx)
	req, err := a.newRequest(streamCtx, "/v1/messages", a.translate(cr), authHeader)
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

func (a *Anthropic) Embeddings(ctx context.Context, er EmbeddingsRequest, authHeader string) (*EmbeddingsResponse, error) {
	return nil, Unsupported("embeddings")
}

func (a *Anthropic) LoadModel(ctx context.Context, modelID string) error   { return Unsupported("load_model") }
func (a *Anthropic) UnloadModel(ctx context.Context, modelID string) error { return Unsupported("unload_model") }

func (a *Anthropic) CountTokens(ctx context.Context, modelID, text string) (int, bool, error) {
	return int(math.Ceil(float64(len(text)) / 4.0)), false, nil
}

func (a *Anthropic) ResourceUsage(ctx context.Context) (ResourceUsage, error) {
	return ResourceUsage{}, Unsupported("resource_usage")
}
