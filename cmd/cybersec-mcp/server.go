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
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Nitish-Garikoti/databahn/pkg/index"
	"github.com/Nitish-Garikoti/databahn/pkg/tool/sqltool"
	"github.com/Nitish-Garikoti/databahn/version"
)

const toolName = "get_cyber_security_info"

const toolDescription = "Run a SQL query against the cyber security intelligence database. " +
	"Tables can be joined on cve_id when the answer needs more than one of them. " +
	"When a country is given for a region, match the region of that country loosely. " +
	"The available tables and their columns are listed in <table_descriptions>."

func newServer(db *sql.DB, tables []index.TableDescriptor, maxRows int) *server.MCPServer {
	s := server.NewMCPServer("cybersec-mcp", version.Version, server.WithToolCapabilities(false))
	s.AddTool(
		mcp.NewTool(toolName,
			mcp.WithDescription(toolDescription+"\n<table_descriptions>"+index.Encode(tables)+"</table_descriptions>"),
			mcp.WithString("sql_query", mcp.Required(), mcp.Description("A single SQL SELECT statement")),
		),
		queryHandler(db, maxRows),
	)
	return s
}

func queryHandler(db *sql.DB, maxRows int) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("sql_query", "")
		if query == "" {
			return mcp.NewToolResultError("sql_query is required"), nil
		}
		slog.Debug("Executing query", "sql", query)

		rows, err := db.QueryContext(ctx, query)
		if err != nil {
			slog.Warn("Query failed", "error", err)
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}
		defer rows.Close()

		text, err := sqltool.Render(rows, maxRows)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read rows: %v", err)), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

// describeTables prefers the metadata table. Without one, every user table
// is listed with its columns and empty descriptions.
func describeTables(ctx context.Context, db *sql.DB) ([]index.TableDescriptor, error) {
	tables, err := index.LoadTableMetadata(ctx, db)
	if err == nil && len(tables) > 0 {
		return tables, nil
	}
	if err != nil {
		slog.Debug("No metadata table, describing schema", "error", err)
	}
	return schemaTables(ctx, db)
}

func schemaTables(ctx context.Context, db *sql.DB) ([]index.TableDescriptor, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name != ? ORDER BY name`,
		index.MetadataTable)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return nil, err
		}
		names = append(names, name)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]index.TableDescriptor, 0, len(names))
	for _, name := range names {
		cols, err := tableColumns(ctx, db, name)
		if err != nil {
			return nil, err
		}
		out = append(out, index.TableDescriptor{Name: name, Columns: cols})
	}
	return out, nil
}

func tableColumns(ctx context.Context, db *sql.DB, table string) ([]index.Column, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to describe %s: %w", table, err)
	}
	defer rows.Close()

	var cols []index.Column
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, index.Column{Name: name})
	}
	return cols, rows.Err()
}
