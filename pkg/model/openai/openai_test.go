// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nitish-Garikoti/databahn/pkg/httpclient"
	"github.com/Nitish-Garikoti/databahn/pkg/model"
	"github.com/Nitish-Garikoti/databahn/pkg/tool"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	return newTestClientWithConfig(t, Config{}, handler)
}

func newTestClientWithConfig(t *testing.T, cfg Config, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	cfg.APIKey = "test-key"
	cfg.BaseURL = ts.URL + "/v1"
	cfg.Model = "gpt-4o"
	cfg.HTTPClient = httpclient.New(httpclient.WithMaxRetries(0))
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestGenerateToolCalls(t *testing.T) {
	var captured map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		writeJSON(w, map[string]any{
			"id": "chatcmpl-1",
			"choices": []any{map[string]any{
				"index":         0,
				"finish_reason": "tool_calls",
				"message": map[string]any{
					"role": "assistant",
					"tool_calls": []any{map[string]any{
						"id":   "call_1",
						"type": "function",
						"function": map[string]any{
							"name":      "lookup_cyber_security_data",
							"arguments": `{"sql_query":"SELECT 1"}`,
						},
					}},
				},
			}},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15},
		})
	})

	resp, err := c.Generate(context.Background(), &model.Request{
		System:   "You route questions.",
		Messages: []model.Message{{Role: model.RoleUser, Content: "what CVEs affect WinRAR?"}},
		Tools: []tool.Schema{{
			Name:        "lookup_cyber_security_data",
			Description: "Query",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{"sql_query": map[string]any{"type": "string"}}},
		}},
		Phase: "orchestrator",
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, tool.CallRequest{ID: "call_1", Name: "lookup_cyber_security_data", Arguments: `{"sql_query":"SELECT 1"}`}, resp.ToolCalls[0])
	assert.False(t, resp.HasContent())
	assert.Equal(t, 12, resp.Usage.PromptTokens)

	assert.Equal(t, "auto", captured["tool_choice"])
	msgs := captured["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "what CVEs affect WinRAR?", msgs[1].(map[string]any)["content"])
}

func TestGenerateProseWithoutTools(t *testing.T) {
	var captured map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		writeJSON(w, map[string]any{
			"choices": []any{map[string]any{
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "Two CVEs affect WinRAR."},
			}},
		})
	})

	resp, err := c.Generate(context.Background(), &model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "summarize"}},
		Phase:    "response",
	})
	require.NoError(t, err)
	assert.Equal(t, "Two CVEs affect WinRAR.", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.NotContains(t, captured, "tools")
	assert.NotContains(t, captured, "tool_choice")
}

func TestGenerateSendsTemperature(t *testing.T) {
	tests := []struct {
		name        string
		temperature float64
		want        float64
		delta       float64
	}{
		{"zero stays on the wire", 0, 0, 1e-6},
		{"non-zero forwarded", 0.7, 0.7, 1e-6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured map[string]any
			c := newTestClientWithConfig(t, Config{Temperature: tt.temperature}, func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
				writeJSON(w, map[string]any{
					"choices": []any{map[string]any{
						"finish_reason": "stop",
						"message":       map[string]any{"role": "assistant", "content": "ok"},
					}},
				})
			})

			_, err := c.Generate(context.Background(), &model.Request{
				Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
				Phase:    "orchestrator",
			})
			require.NoError(t, err)
			require.Contains(t, captured, "temperature")
			assert.InDelta(t, tt.want, captured["temperature"], tt.delta)
		})
	}
}

func TestGenerateErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
		{"overloaded", http.StatusServiceUnavailable, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
			})

			_, err := c.Generate(context.Background(), &model.Request{
				Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
			})
			require.Error(t, err)
			var me *model.Error
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tt.retryable, model.IsRetryable(err))
		})
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
