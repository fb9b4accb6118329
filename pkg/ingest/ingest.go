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

// Package ingest loads tabular files into a SQL database.
//
// Every column is created as TEXT. CSV files become one table named after
// the file; XLSX workbooks become one table per sheet. Rows whose column
// count differs from the header are skipped.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Nitish-Garikoti/databahn/pkg/index"
)

// Result reports what one table received.
type Result struct {
	Table    string
	Inserted int
	Skipped  int
}

// sheet is one header-plus-rows source.
type sheet struct {
	table  string
	header []string
	rows   func(yield func(line int, row []string) error) error
}

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// SanitizeName turns a header or file name into an SQL identifier: runs of
// characters other than letters, digits and underscores become one
// underscore, and a leading digit gets an underscore prefix.
func SanitizeName(name string) string {
	s := nonIdent.ReplaceAllString(strings.TrimSpace(name), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "col"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "_" + s
	}
	return s
}

// TableName derives a table name from a file path.
func TableName(path string) string {
	base := filepath.Base(path)
	return SanitizeName(strings.TrimSuffix(base, filepath.Ext(base)))
}

// Ingester writes files into db.
type Ingester struct {
	db *sql.DB
}

// New creates an ingester.
func New(db *sql.DB) *Ingester {
	return &Ingester{db: db}
}

// Files ingests each path, replacing tables of the same name. A file that
// cannot be read is reported and the rest continue.
func (i *Ingester) Files(ctx context.Context, paths ...string) ([]Result, error) {
	var (
		results []Result
		errs    []error
	)
	for _, path := range paths {
		res, err := i.File(ctx, path)
		if err != nil {
			slog.Error("Failed to ingest file", "path", path, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		results = append(results, res...)
	}
	return results, errors.Join(errs...)
}

// File ingests one CSV or XLSX file.
func (i *Ingester) File(ctx context.Context, path string) ([]Result, error) {
	var sheets []sheet
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		var s sheet
		s, err = csvSheet(path)
		sheets = []sheet{s}
	case ".xlsx", ".xlsm":
		sheets, err = xlsxSheets(path)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(sheets))
	for _, s := range sheets {
		res, err := i.load(ctx, s)
		if err != nil {
			return results, fmt.Errorf("table %s: %w", s.table, err)
		}
		slog.Info("Table loaded", "table", res.Table, "inserted", res.Inserted, "skipped", res.Skipped)
		results = append(results, res)
	}
	return results, nil
}

// Metadata loads a column description file into the metadata table. The
// header must name table_name, column_name and a description column
// (column_description or description).
func (i *Ingester) Metadata(ctx context.Context, path string) (Result, error) {
	s, err := csvSheet(path)
	if err != nil {
		return Result{}, err
	}

	pos := map[string]int{}
	for idx, col := range s.header {
		pos[strings.ToLower(SanitizeName(col))] = idx
	}
	tableIdx, ok1 := pos["table_name"]
	columnIdx, ok2 := pos["column_name"]
	descIdx, ok3 := pos["column_description"]
	if !ok3 {
		descIdx, ok3 = pos["description"]
	}
	if !ok1 || !ok2 || !ok3 {
		return Result{}, fmt.Errorf("metadata header must contain table_name, column_name and column_description")
	}

	width := len(s.header)
	rows := s.rows
	s = sheet{
		table:  index.MetadataTable,
		header: []string{"table_name", "column_name", "column_description"},
		rows: func(yield func(int, []string) error) error {
			return rows(func(line int, row []string) error {
				if len(row) != width {
					return yield(line, nil)
				}
				return yield(line, []string{row[tableIdx], row[columnIdx], row[descIdx]})
			})
		},
	}
	return i.load(ctx, s)
}

// load replaces s.table with the sheet's contents in one transaction.
func (i *Ingester) load(ctx context.Context, s sheet) (Result, error) {
	res := Result{Table: s.table}
	if len(s.header) == 0 {
		return res, fmt.Errorf("missing header row")
	}

	// Duplicate names are compared case-insensitively.
	columns := make([]string, len(s.header))
	seen := map[string]int{}
	for idx, h := range s.header {
		name := SanitizeName(h)
		key := strings.ToLower(name)
		if n := seen[key]; n > 0 {
			seen[key] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			seen[key] = 1
		}
		columns[idx] = quote(name)
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(s.table)); err != nil {
		return res, fmt.Errorf("failed to drop table: %w", err)
	}
	defs := make([]string, len(columns))
	for idx, c := range columns {
		defs[idx] = c + " TEXT"
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quote(s.table), strings.Join(defs, ", "))); err != nil {
		return res, fmt.Errorf("failed to create table: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", quote(s.table), placeholders))
	if err != nil {
		return res, err
	}
	defer func() { _ = stmt.Close() }()

	err = s.rows(func(line int, row []string) error {
		if len(row) == 0 {
			res.Skipped++
			return nil
		}
		if len(row) != len(columns) {
			slog.Warn("Skipping malformed row", "table", s.table, "line", line, "expected", len(columns), "found", len(row))
			res.Skipped++
			return nil
		}
		args := make([]any, len(row))
		for idx, v := range row {
			args[idx] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			slog.Warn("Skipping row", "table", s.table, "line", line, "error", err)
			res.Skipped++
			return nil
		}
		res.Inserted++
		return ctx.Err()
	})
	if err != nil {
		return res, err
	}
	return res, tx.Commit()
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
