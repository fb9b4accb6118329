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

// Package mcptoolset implements provider sessions over MCP (Model Context
// Protocol) servers.
//
// A Session satisfies tool.Provider. Its tool list is fetched from the
// server on every ListTools call, so servers may change their tools between
// turns.
//
// Transport Support:
//   - stdio: mcp-go client driving a subprocess
//   - sse, streamable-http: JSON-RPC over the retrying httpclient
package mcptoolset

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Nitish-Garikoti/databahn/pkg/config"
	"github.com/Nitish-Garikoti/databahn/pkg/tool"
	"github.com/Nitish-Garikoti/databahn/version"
)

const protocolVersion = "2024-11-05"

// conn is the transport-specific half of a session.
type conn interface {
	listTools(ctx context.Context) ([]tool.Schema, error)
	callTool(ctx context.Context, name string, args map[string]any) (*tool.Outcome, error)
	close() error
}

// Session is a live connection to one MCP server.
type Session struct {
	name      string
	transport string
	serialize bool
	filterSet map[string]bool
	conn      conn
}

// Connect establishes a session described by cfg. The connect timeout
// bounds the handshake only; the session itself lives until Close.
func Connect(ctx context.Context, cfg config.ProviderConfig) (*Session, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("provider %q: %w", cfg.Name, err)
	}

	switch cfg.Transport {
	case config.TransportStdio:
		mcpClient, err := client.NewStdioMCPClient(cfg.Command, convertEnv(cfg.Env), cfg.Args...)
		if err != nil {
			return nil, fmt.Errorf("failed to create MCP client: %w", err)
		}
		return FromClient(ctx, cfg, mcpClient)
	default:
		hc, err := newHTTPConn(cfg)
		if err != nil {
			return nil, err
		}
		initCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		if err := hc.initialize(initCtx); err != nil {
			return nil, fmt.Errorf("failed to initialize MCP: %w", err)
		}
		s := newSession(cfg, hc)
		slog.Info("Connected to MCP server (HTTP)", "name", cfg.Name, "url", cfg.URL, "transport", cfg.Transport)
		return s, nil
	}
}

// FromClient wraps an mcp-go client (stdio or in-process), starting and
// initializing it.
func FromClient(ctx context.Context, cfg config.ProviderConfig, mcpClient *client.Client) (*Session, error) {
	cfg.SetDefaults()
	if err := mcpClient.Start(ctx); err != nil {
		_ = mcpClient.Close()
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "databahn",
		Version: version.Version,
	}
	initReq.Params.ProtocolVersion = protocolVersion

	if _, err := mcpClient.Initialize(initCtx, initReq); err != nil {
		_ = mcpClient.Close()
		return nil, fmt.Errorf("failed to initialize MCP: %w", err)
	}

	slog.Info("Connected to MCP server (stdio)", "name", cfg.Name, "command", cfg.Command)
	return newSession(cfg, &clientConn{client: mcpClient}), nil
}

func newSession(cfg config.ProviderConfig, c conn) *Session {
	var filterSet map[string]bool
	if len(cfg.Filter) > 0 {
		filterSet = make(map[string]bool, len(cfg.Filter))
		for _, name := range cfg.Filter {
			filterSet[name] = true
		}
	}
	return &Session{
		name:      cfg.Name,
		transport: cfg.Transport,
		serialize: cfg.IsSerialized(),
		filterSet: filterSet,
		conn:      c,
	}
}

// Name returns the provider name.
func (s *Session) Name() string {
	return s.name
}

// Serialized reports whether calls on this session must not overlap.
func (s *Session) Serialized() bool {
	return s.serialize
}

// ListTools fetches the server's current tools, applying the filter.
func (s *Session) ListTools(ctx context.Context) ([]tool.Schema, error) {
	schemas, err := s.conn.listTools(ctx)
	if err != nil {
		return nil, err
	}
	if s.filterSet == nil {
		return schemas, nil
	}
	out := schemas[:0]
	for _, schema := range schemas {
		if s.filterSet[schema.Name] {
			out = append(out, schema)
		}
	}
	return out, nil
}

// CallTool invokes a tool on the server.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*tool.Outcome, error) {
	if s.filterSet != nil && !s.filterSet[name] {
		return nil, fmt.Errorf("tool %q is not exposed by provider %q", name, s.name)
	}
	return s.conn.callTool(ctx, name, args)
}

// Close tears down the connection.
func (s *Session) Close() error {
	return s.conn.close()
}

// clientConn drives an mcp-go client.
type clientConn struct {
	client *client.Client
}

func (c *clientConn) listTools(ctx context.Context) ([]tool.Schema, error) {
	resp, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	schemas := make([]tool.Schema, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		schemas = append(schemas, tool.Schema{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  convertSchema(t.InputSchema),
		})
	}
	return schemas, nil
}

func (c *clientConn) callTool(ctx context.Context, name string, args map[string]any) (*tool.Outcome, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := c.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("MCP call failed: %w", err)
	}
	return convertResult(resp), nil
}

func (c *clientConn) close() error {
	return c.client.Close()
}

// convertResult keeps content positions so the first item stays first;
// non-text items carry empty text.
func convertResult(resp *mcp.CallToolResult) *tool.Outcome {
	out := &tool.Outcome{IsError: resp.IsError}
	for _, content := range resp.Content {
		switch c := content.(type) {
		case mcp.TextContent:
			out.Content = append(out.Content, tool.Content{Type: "text", Text: c.Text})
		case *mcp.TextContent:
			out.Content = append(out.Content, tool.Content{Type: "text", Text: c.Text})
		default:
			out.Content = append(out.Content, tool.Content{})
		}
	}
	return out
}

// convertSchema converts an MCP input schema to a plain map.
func convertSchema(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// convertEnv converts map to slice of "KEY=VALUE".
func convertEnv(env map[string]string) []string {
	if env == nil {
		return nil
	}
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

var _ tool.Provider = (*Session)(nil)
