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

package main

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Nitish-Garikoti/databahn/version"
)

const defaultTopK = 2

func newServer(ws *webSearch) *server.MCPServer {
	s := server.NewMCPServer("websearch-mcp", version.Version, server.WithToolCapabilities(false))

	s.AddTool(
		mcp.NewTool("internet_search",
			mcp.WithDescription("Search the internet and return the result links, best match first, one per line."),
			mcp.WithString("query", mcp.Required(), mcp.Description("What to search for")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			links, err := ws.Search(ctx, req.GetString("query", ""))
			if err != nil {
				slog.Error("Search failed", "error", err)
				return mcp.NewToolResultError("An error occurred during the search."), nil
			}
			if len(links) == 0 {
				return mcp.NewToolResultText("No search results found."), nil
			}
			return mcp.NewToolResultText(strings.Join(links, "\n")), nil
		},
	)

	s.AddTool(
		mcp.NewTool("perform_internet_search_and_crawl",
			mcp.WithDescription("Search the internet, crawl the top results concurrently and return their main content as Markdown."),
			mcp.WithString("query", mcp.Required(), mcp.Description("What the user wants information about")),
			mcp.WithNumber("top_k_links", mcp.Description("Number of top results to crawl"), mcp.DefaultNumber(defaultTopK)),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			text, err := ws.SearchAndCrawl(ctx, req.GetString("query", ""), req.GetInt("top_k_links", defaultTopK))
			if err != nil {
				slog.Error("Search and crawl failed", "error", err)
				return mcp.NewToolResultError("An error occurred during the search and crawl process."), nil
			}
			return mcp.NewToolResultText(text), nil
		},
	)
	return s
}
