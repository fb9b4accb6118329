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
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeWeb(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var base string

	mux.HandleFunc("/html/", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("q") == "nothing" {
			fmt.Fprint(w, `<html><body><div class="no-results"></div></body></html>`)
			return
		}
		fmt.Fprintf(w, `<html><body>
			<div class="result"><a class="result__a" href="//duckduckgo.com/l/?uddg=%s&rut=x">First</a></div>
			<div class="result"><a class="result__a" href="%s/page2">Second</a></div>
			<div class="result"><a class="result__a" href="%s/missing">Third</a></div>
		</body></html>`, url.QueryEscape(base+"/page1"), base, base)
	})
	mux.HandleFunc("/page1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><nav>menu</nav><article><h1>WinRAR CVE</h1><p>Patch <a href="/fix">now</a>.</p></article></body></html>`)
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><main><p>Second page</p></main><script>alert(1)</script></body></html>`)
	})

	srv := httptest.NewServer(mux)
	base = srv.URL
	t.Cleanup(srv.Close)
	return srv
}

func TestSearch(t *testing.T) {
	srv := fakeWeb(t)
	ws := newWebSearch(srv.URL+"/html/", 5*time.Second)

	links, err := ws.Search(context.Background(), "winrar cve")
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/page1", srv.URL + "/page2", srv.URL + "/missing"}, links)

	links, err = ws.Search(context.Background(), "  ")
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestCrawl(t *testing.T) {
	srv := fakeWeb(t)
	ws := newWebSearch(srv.URL+"/html/", 5*time.Second)

	page := ws.Crawl(context.Background(), srv.URL+"/page1")
	assert.True(t, strings.HasPrefix(page, "--- Content from "+srv.URL+"/page1 ---\n\n"))
	assert.Contains(t, page, "# WinRAR CVE")
	assert.Contains(t, page, "("+srv.URL+"/fix)")
	assert.NotContains(t, page, "menu")

	page = ws.Crawl(context.Background(), srv.URL+"/page2")
	assert.Contains(t, page, "Second page")
	assert.NotContains(t, page, "alert")

	assert.Equal(t, "Error: Could not retrieve content from "+srv.URL+"/missing.",
		ws.Crawl(context.Background(), srv.URL+"/missing"))
}

func TestSearchAndCrawl(t *testing.T) {
	srv := fakeWeb(t)
	ws := newWebSearch(srv.URL+"/html/", 5*time.Second)

	out, err := ws.SearchAndCrawl(context.Background(), "winrar cve", 2)
	require.NoError(t, err)
	parts := strings.Split(out, "\n\n--- Content from ")
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0], "WinRAR CVE")
	assert.Contains(t, parts[1], "Second page")
	assert.NotContains(t, out, "/missing")

	out, err = ws.SearchAndCrawl(context.Background(), "nothing", 2)
	require.NoError(t, err)
	assert.Equal(t, "No search results found.", out)
}

func TestServerTools(t *testing.T) {
	srv := fakeWeb(t)
	c, err := client.NewInProcessClient(newServer(newWebSearch(srv.URL+"/html/", 5*time.Second)))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	_, err = c.Initialize(ctx, initReq)
	require.NoError(t, err)
	defer c.Close()

	list, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	require.NoError(t, err)
	require.Len(t, list.Tools, 2)

	req := mcp.CallToolRequest{}
	req.Params.Name = "internet_search"
	req.Params.Arguments = map[string]any{"query": "winrar cve"}
	res, err := c.CallTool(ctx, req)
	require.NoError(t, err)
	tc, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	assert.Equal(t, 3, len(strings.Split(tc.Text, "\n")))
}
