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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Nitish-Garikoti/databahn/pkg/config"
	"github.com/Nitish-Garikoti/databahn/pkg/httpclient"
	"github.com/Nitish-Garikoti/databahn/pkg/tool"
	"github.com/Nitish-Garikoti/databahn/version"
)

// JSON-RPC types
type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *jsonRPCError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// httpConn speaks JSON-RPC over HTTP POST. Responses may be plain JSON or an
// SSE stream; the mcp-session-id header is echoed once the server assigns
// one.
type httpConn struct {
	name    string
	url     string
	headers map[string]string
	client  *httpclient.Client
	nextID  atomic.Int64

	sessionMu sync.RWMutex
	sessionID string
}

func newHTTPConn(cfg config.ProviderConfig) (*httpConn, error) {
	transport, err := httpclient.ConfigureTLS(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", cfg.Name, err)
	}
	return &httpConn{
		name:    cfg.Name,
		url:     cfg.URL,
		headers: cfg.Headers,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Transport: transport}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithBaseDelay(2*time.Second),
			httpclient.WithHeaderParser(func(h http.Header) httpclient.RateLimitInfo {
				return httpclient.RateLimitInfo{RetryAfter: httpclient.ParseRetryAfter(h)}
			}),
		),
	}, nil
}

func (c *httpConn) initialize(ctx context.Context) error {
	_, err := c.call(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo": map[string]any{
			"name":    "databahn",
			"version": version.Version,
		},
		"capabilities": map[string]any{},
	})
	if err != nil {
		return err
	}
	return c.notify(ctx, "notifications/initialized")
}

func (c *httpConn) listTools(ctx context.Context) ([]tool.Schema, error) {
	raw, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	var result struct {
		Tools []struct {
			Name        string         `json:"name"`
			Description string         `json:"description"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unexpected tools/list result: %w", err)
	}

	schemas := make([]tool.Schema, 0, len(result.Tools))
	for _, t := range result.Tools {
		schemas = append(schemas, tool.Schema{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}
	return schemas, nil
}

func (c *httpConn) callTool(ctx context.Context, name string, args map[string]any) (*tool.Outcome, error) {
	raw, err := c.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, fmt.Errorf("MCP call failed: %w", err)
	}

	var outcome tool.Outcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return nil, fmt.Errorf("unexpected tools/call result: %w", err)
	}
	for i, content := range outcome.Content {
		if content.Type != "text" {
			outcome.Content[i] = tool.Content{Type: content.Type}
		}
	}
	return &outcome, nil
}

func (c *httpConn) close() error {
	c.sessionMu.RLock()
	sessionID := c.sessionID
	c.sessionMu.RUnlock()
	if sessionID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

// call sends a request and returns its result.
func (c *httpConn) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	resp, err := c.post(ctx, jsonRPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("HTTP error %d: %s (response: %s)", resp.StatusCode, resp.Status, string(body))
	}

	var rpcResp *jsonRPCResponse
	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		rpcResp, err = readSSEResponse(resp.Body, id)
	} else {
		rpcResp = &jsonRPCResponse{}
		err = json.NewDecoder(resp.Body).Decode(rpcResp)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

func (c *httpConn) notify(ctx context.Context, method string) error {
	resp, err := c.post(ctx, jsonRPCRequest{JSONRPC: "2.0", Method: method})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP error %d on %s", resp.StatusCode, method)
	}
	return nil
}

func (c *httpConn) post(ctx context.Context, rpcReq jsonRPCRequest) (*http.Response, error) {
	body, err := json.Marshal(rpcReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Debug("MCP HTTP request failed", "source", c.name, "method", rpcReq.Method, "error", err)
		return nil, fmt.Errorf("request failed: %w", err)
	}

	slog.Debug("MCP HTTP request completed",
		"source", c.name,
		"method", rpcReq.Method,
		"status_code", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"))

	if sessionID := resp.Header.Get("mcp-session-id"); sessionID != "" {
		c.sessionMu.Lock()
		c.sessionID = sessionID
		c.sessionMu.Unlock()
	}
	return resp, nil
}

func (c *httpConn) setHeaders(req *http.Request) {
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	c.sessionMu.RLock()
	sessionID := c.sessionID
	c.sessionMu.RUnlock()
	if sessionID != "" {
		req.Header.Set("mcp-session-id", sessionID)
	}
}

// readSSEResponse returns the first event carrying the response for id.
// Server notifications interleaved on the stream are skipped.
func readSSEResponse(body io.Reader, id int64) (*jsonRPCResponse, error) {
	reader := bufio.NewReader(body)
	var data strings.Builder

	flush := func() *jsonRPCResponse {
		defer data.Reset()
		if data.Len() == 0 {
			return nil
		}
		var resp jsonRPCResponse
		if err := json.Unmarshal([]byte(data.String()), &resp); err != nil {
			return nil
		}
		if resp.ID != id {
			return nil
		}
		return &resp
	}

	for {
		line, err := reader.ReadString('\n')
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			if resp := flush(); resp != nil {
				return resp, nil
			}
		case strings.HasPrefix(trimmed, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(trimmed, "data:")))
		}
		if err != nil {
			if resp := flush(); resp != nil {
				return resp, nil
			}
			if err == io.EOF {
				return nil, fmt.Errorf("SSE stream ended without complete message")
			}
			return nil, err
		}
	}
}
