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
	"database/sql"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nitish-Garikoti/databahn/pkg/index"
)

func seed(t *testing.T, withMetadata bool) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE vulnerability (cve_id TEXT, product TEXT, cvss_score TEXT);
		INSERT INTO vulnerability VALUES ('CVE-2023-38831', 'WinRAR', '7.8'), ('CVE-2024-3400', 'PAN-OS', '10.0');
		CREATE TABLE darkweb (forum TEXT, cve_id TEXT);`)
	require.NoError(t, err)
	if withMetadata {
		_, err = db.Exec(`CREATE TABLE metadata (table_name TEXT, column_name TEXT, column_description TEXT);
			INSERT INTO metadata VALUES ('vulnerability', 'cve_id', 'CVE identifier');`)
		require.NoError(t, err)
	}
	return db
}

func connect(t *testing.T, db *sql.DB, tables []index.TableDescriptor) *client.Client {
	t.Helper()
	c, err := client.NewInProcessClient(newServer(db, tables, 0))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	_, err = c.Initialize(ctx, initReq)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func call(t *testing.T, c *client.Client, sqlQuery string) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = map[string]any{"sql_query": sqlQuery}
	res, err := c.CallTool(context.Background(), req)
	require.NoError(t, err)
	return res
}

func text(res *mcp.CallToolResult) string {
	if len(res.Content) == 0 {
		return ""
	}
	if tc, ok := mcp.AsTextContent(res.Content[0]); ok {
		return tc.Text
	}
	return ""
}

func TestDescribeTablesPrefersMetadata(t *testing.T) {
	tables, err := describeTables(context.Background(), seed(t, true))
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "vulnerability", tables[0].Name)
}

func TestDescribeTablesFallsBackToSchema(t *testing.T) {
	tables, err := describeTables(context.Background(), seed(t, false))
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "darkweb", tables[0].Name)
	assert.Equal(t, []index.Column{{Name: "cve_id"}, {Name: "product"}, {Name: "cvss_score"}}, tables[1].Columns)
}

func TestToolAdvertisesTables(t *testing.T) {
	db := seed(t, true)
	tables, err := describeTables(context.Background(), db)
	require.NoError(t, err)
	c := connect(t, db, tables)

	list, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})
	require.NoError(t, err)
	require.Len(t, list.Tools, 1)
	assert.Equal(t, toolName, list.Tools[0].Name)
	assert.True(t, strings.HasSuffix(list.Tools[0].Description,
		`<table_descriptions>{"vulnerability": {"cve_id":"CVE identifier"}}</table_descriptions>`))
}

func TestToolRunsQueries(t *testing.T) {
	db := seed(t, true)
	c := connect(t, db, nil)

	res := call(t, c, `SELECT cve_id, product FROM vulnerability ORDER BY cve_id`)
	assert.False(t, res.IsError)
	assert.Equal(t, "[\"CVE-2023-38831\",\"WinRAR\"]\n[\"CVE-2024-3400\",\"PAN-OS\"]", text(res))

	res = call(t, c, `SELECT * FROM nope`)
	assert.True(t, res.IsError)
	assert.Contains(t, text(res), "no such table")
}
