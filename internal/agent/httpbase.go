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
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// HTTPClient is the interface every dialect depends on instead of
// *http.Client directly, so tests can substitute a fake transport.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultChatTimeout is the 120s hard timeout assigned to chat_completion.
const DefaultChatTimeout = 120 * time.Second

// DefaultHealthTimeout is the 5s hard timeout assigned to health_check.
const DefaultHealthTimeout = 5 * time.Second

// httpStreamReader adapts a raw http.Response body into the agent.StreamReader
// contract, splitting on newlines the way an SSE body is framed; each
// non-empty line becomes one StreamChunk, copied through untouched.
type httpStreamReader struct {
	resp    *http.Response
	scanner *bufio.Scanner
	cancel  context.CancelFunc
}

func newHTTPStreamReader(resp *http.Response, cancel context.CancelFunc) *httpStreamReader {
	return &httpStreamReader{resp: resp, scanner: bufio.NewScanner(resp.Body), cancel: cancel}
}

func (h *httpStreamReader) Next(ctx context.Context) (StreamChunk, error) {
	for h.scanner.Scan() {
		line := h.scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		out := make([]byte, len(line))
		copy(out, line)
		return StreamChunk{Raw: out}, nil
	}
	if err := h.scanner.Err(); err != nil {
		return StreamChunk{}, &Error{Kind: ErrNetwork, Op: "chat_completion_stream", Message: err.Error(), Cause: err}
	}
	return StreamChunk{}, ErrStreamDone
}

func (h *httpStreamReader) Close() error {
	h.cancel()
	return h.resp.Body.Close()
}

// doRequest issues req with client, translating transport failures into
// the agent error taxonomy (Network vs. Timeout).
func doRequest(ctx context.Context, client HTTPClient, req *http.Request, op string) (*http.Response, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Kind: ErrTimeout, Op: op, Message: ctx.Err().Error(), Cause: err}
		}
		return nil, &Error{Kind: ErrNetwork, Op: op, Message: err.Error(), Cause: err}
	}
	return resp, nil
}

// readAllOrError fully reads resp.Body (non-streaming path) and classifies
// non-2xx statuses as Upstream errors carrying the raw body for passthrough.
func readAllOrError(resp *http.Response, op string) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: ErrNetwork, Op: op, Message: err.Error(), Cause: err}
	}
	if resp.StatusCode >= 300 {
		return nil, &Error{Kind: ErrUpstream, Op: op, StatusCode: resp.StatusCode, Body: body, Message: "upstream returned non-success status"}
	}
	return body, nil
}

func headerMap(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

// modelHeuristics applies name-based capability overrides for when a
// backend's discovery endpoint does not report capabilities structurally:
// "128k" in the name overrides context length, "vision"/"llava" implies
// supports_vision, "hermes"/"functionary" implies supports_tools.
func modelHeuristics(m *ModelCapability) {
	name := m.ID
	if containsFold(name, "128k") {
		m.ContextLength = 131072
	}
	if containsFold(name, "vision") || containsFold(name, "llava") {
		m.SupportsVision = true
	}
	if containsFold(name, "hermes") || containsFold(name, "functionary") {
		m.SupportsTools = true
	}
}

func containsFold(s, substr string) bool {
	return bytes.Contains(bytes.ToLower([]byte(s)), bytes.ToLower([]byte(substr)))
}
