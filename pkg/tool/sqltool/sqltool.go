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

// Package sqltool provides the local tool that runs model-written SQL
// against the security data database.
package sqltool

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Nitish-Garikoti/databahn/pkg/tool"
	"github.com/Nitish-Garikoti/databahn/pkg/tool/functiontool"
)

// Name is the tool name advertised to the model.
const Name = "lookup_cyber_security_data"

const description = "Query the cyber security database with a SQL statement. " +
	"Use only the tables and columns listed in the table descriptions below. " +
	"Each result row is returned as a JSON array on its own line."

// Args are the tool's arguments.
type Args struct {
	SQLQuery string `json:"sql_query" jsonschema:"required,description=A single SQL SELECT statement to run against the security database"`
}

// Config tunes the lookup tool.
type Config struct {
	// MaxRows caps the number of rendered rows. Zero means unlimited.
	MaxRows int
	// Timeout bounds a single query. Zero means no extra deadline.
	Timeout time.Duration
}

// New creates the lookup tool over db.
func New(db *sql.DB, cfg Config) (tool.Local, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	l := &lookup{db: db, cfg: cfg}
	return functiontool.NewWithValidation(
		functiontool.Config{Name: Name, Description: description},
		l.run,
		func(a Args) error {
			if strings.TrimSpace(a.SQLQuery) == "" {
				return fmt.Errorf("sql_query is empty")
			}
			return nil
		},
	)
}

type lookup struct {
	db  *sql.DB
	cfg Config
}

func (l *lookup) run(ctx context.Context, args Args) (*tool.Outcome, error) {
	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}

	slog.Debug("Running lookup query", "sql", args.SQLQuery)

	rows, err := l.db.QueryContext(ctx, args.SQLQuery)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	text, err := Render(rows, l.cfg.MaxRows)
	if err != nil {
		return nil, err
	}
	return tool.TextOutcome(text), nil
}

// Render formats every row as a JSON array, one per line.
func Render(rows *sql.Rows, maxRows int) (string, error) {
	cols, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("failed to read columns: %w", err)
	}

	var lines []string
	for rows.Next() {
		if maxRows > 0 && len(lines) >= maxRows {
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		line, err := json.Marshal(values)
		if err != nil {
			return "", fmt.Errorf("failed to encode row: %w", err)
		}
		lines = append(lines, string(line))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("failed to read rows: %w", err)
	}
	return strings.Join(lines, "\n"), nil
}
