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

package mcptoolset

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nitish-Garikoti/databahn/pkg/config"
	"github.com/Nitish-Garikoti/databahn/pkg/tool"
)

func newTestServer() *server.MCPServer {
	s := server.NewMCPServer("test-provider", "1.0.0", server.WithToolCapabilities(true))
	s.AddTool(
		mcp.NewTool("echo",
			mcp.WithDescription("Echo the input"),
			mcp.WithString("text", mcp.Required(), mcp.Description("Text to echo")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("echo: " + req.GetString("text", "")), nil
		},
	)
	s.AddTool(
		mcp.NewTool("fail",
			mcp.WithDescription("Always fails"),
			mcp.WithString("reason"),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("failed: " + req.GetString("reason", "")), nil
		},
	)
	return s
}

func inProcessSession(t *testing.T, cfg config.ProviderConfig) *Session {
	t.Helper()
	c, err := client.NewInProcessClient(newTestServer())
	require.NoError(t, err)
	s, err := FromClient(context.Background(), cfg, c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionListAndCall(t *testing.T) {
	s := inProcessSession(t, config.ProviderConfig{Name: "test", Command: "unused"})
	ctx := context.Background()

	tools, err := s.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 2)

	byName := map[string]int{}
	for i, tl := range tools {
		byName[tl.Name] = i
	}
	echo := tools[byName["echo"]]
	assert.Equal(t, "Echo the input", echo.Description)
	assert.Equal(t, 1, echo.PropertyCount())

	out, err := s.CallTool(ctx, "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", out.Text())
	assert.False(t, out.IsError)

	out, err = s.CallTool(ctx, "fail", map[string]any{"reason": "nope"})
	require.NoError(t, err)
	assert.True(t, out.IsError)
	assert.Equal(t, "", out.Normalize("c1").Text)
	assert.True(t, s.Serialized())
}

func TestSessionFilter(t *testing.T) {
	no := false
	s := inProcessSession(t, config.ProviderConfig{
		Name: "test", Command: "unused", Filter: []string{"echo"}, Serialize: &no,
	})
	ctx := context.Background()

	tools, err := s.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)

	_, err = s.CallTool(ctx, "fail", map[string]any{"reason": "x"})
	assert.Error(t, err)
	assert.False(t, s.Serialized())
}

// rpcHandler is a minimal streamable-http MCP endpoint.
func rpcHandler(t *testing.T, useSSE bool, sawSession *atomic.Bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int64           `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusOK)
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if req.Method != "initialize" && r.Header.Get("mcp-session-id") == "sess-1" {
			sawSession.Store(true)
		}

		var result any
		switch req.Method {
		case "initialize":
			w.Header().Set("mcp-session-id", "sess-1")
			result = map[string]any{"protocolVersion": protocolVersion, "capabilities": map[string]any{}}
		case "notifications/initialized":
			w.WriteHeader(http.StatusAccepted)
			return
		case "tools/list":
			result = map[string]any{"tools": []any{
				map[string]any{
					"name":        "lookup",
					"description": "Look things up",
					"inputSchema": map[string]any{
						"type":       "object",
						"properties": map[string]any{"q": map[string]any{"type": "string"}},
					},
				},
			}}
		case "tools/call":
			var p struct {
				Arguments map[string]any `json:"arguments"`
			}
			_ = json.Unmarshal(req.Params, &p)
			result = map[string]any{"content": []any{
				map[string]any{"type": "text", "text": fmt.Sprintf("found %v", p.Arguments["q"])},
			}}
		default:
			result = nil
		}

		payload, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
		if useSSE {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprintf(w, "event: message\ndata: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/progress\"}\n\n")
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", payload)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(payload)
	}
}

func TestHTTPSession(t *testing.T) {
	for _, useSSE := range []bool{false, true} {
		t.Run(fmt.Sprintf("sse=%v", useSSE), func(t *testing.T) {
			var sawSession atomic.Bool
			ts := httptest.NewServer(rpcHandler(t, useSSE, &sawSession))
			defer ts.Close()

			s, err := Connect(context.Background(), config.ProviderConfig{
				Name: "remote", Transport: config.TransportStreamableHTTP, URL: ts.URL,
			})
			require.NoError(t, err)
			defer s.Close()

			tools, err := s.ListTools(context.Background())
			require.NoError(t, err)
			require.Len(t, tools, 1)
			assert.Equal(t, "lookup", tools[0].Name)
			assert.Equal(t, 1, tools[0].PropertyCount())

			out, err := s.CallTool(context.Background(), "lookup", map[string]any{"q": "winrar"})
			require.NoError(t, err)
			assert.Equal(t, "found winrar", out.Text())
			assert.True(t, sawSession.Load())
		})
	}
}

func TestPoolSkipsFailedProviders(t *testing.T) {
	var sawSession atomic.Bool
	ts := httptest.NewServer(rpcHandler(t, false, &sawSession))
	defer ts.Close()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer down.Close()

	pool := NewPool()
	assert.False(t, pool.Ready())

	pool.Connect(context.Background(), []config.ProviderConfig{
		{Name: "down", Transport: config.TransportStreamableHTTP, URL: down.URL},
		{Name: "up", Transport: config.TransportStreamableHTTP, URL: ts.URL},
	})

	assert.True(t, pool.Ready())
	require.Equal(t, 1, pool.Len())
	assert.Equal(t, "up", pool.Providers()[0].Name())
	assert.NoError(t, pool.Close())
}

func TestPoolWithNoProvidersIsReady(t *testing.T) {
	pool := NewPool()
	pool.Connect(context.Background(), nil)
	assert.True(t, pool.Ready())
	assert.Empty(t, pool.Providers())
}

type stubConn struct {
	closed atomic.Bool
}

func (c *stubConn) listTools(context.Context) ([]tool.Schema, error) { return nil, nil }

func (c *stubConn) callTool(context.Context, string, map[string]any) (*tool.Outcome, error) {
	return tool.TextOutcome(""), nil
}

func (c *stubConn) close() error {
	c.closed.Store(true)
	return nil
}

func TestPoolClosesSessionsAddedAfterClose(t *testing.T) {
	pool := NewPool()
	pool.MarkReady()
	require.NoError(t, pool.Close())

	conn := &stubConn{}
	pool.Add(newSession(config.ProviderConfig{Name: "late"}, conn))

	assert.True(t, conn.closed.Load())
	assert.Equal(t, 0, pool.Len())
	assert.False(t, pool.Ready())
}

func TestPoolConnectAfterCloseStaysClosed(t *testing.T) {
	var sawSession atomic.Bool
	ts := httptest.NewServer(rpcHandler(t, false, &sawSession))
	defer ts.Close()

	pool := NewPool()
	require.NoError(t, pool.Close())

	pool.Connect(context.Background(), []config.ProviderConfig{
		{Name: "up", Transport: config.TransportStreamableHTTP, URL: ts.URL},
	})

	assert.Equal(t, 0, pool.Len())
	assert.False(t, pool.Ready())
}
