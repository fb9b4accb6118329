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

package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

func csvSheet(path string) (sheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return sheet{}, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return sheet{}, fmt.Errorf("empty file")
		}
		return sheet{}, fmt.Errorf("failed to read header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	// Unparseable lines are kept as nil rows so they are counted as skipped.
	var records [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return sheet{}, err
			}
			row = nil
		}
		records = append(records, row)
	}

	return sheet{
		table:  TableName(path),
		header: header,
		rows: func(yield func(int, []string) error) error {
			for idx, row := range records {
				if err := yield(idx+2, row); err != nil {
					return err
				}
			}
			return nil
		},
	}, nil
}

// xlsxSheets yields every non-empty sheet. A workbook with one sheet maps to
// a table named after the file; otherwise tables are file_sheet.
func xlsxSheets(path string) ([]sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	names := f.GetSheetList()
	base := TableName(path)
	var sheets []sheet
	for _, name := range names {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", name, err)
		}
		if len(rows) == 0 {
			continue
		}
		table := base
		if len(names) > 1 {
			table = base + "_" + SanitizeName(name)
		}
		header, body := rows[0], rows[1:]
		width := len(header)
		sheets = append(sheets, sheet{
			table:  table,
			header: header,
			rows: func(yield func(int, []string) error) error {
				for idx, row := range body {
					// GetRows trims trailing empty cells.
					if len(row) > 0 && len(row) < width {
						row = append(row, make([]string, width-len(row))...)
					}
					if err := yield(idx+2, row); err != nil {
						return err
					}
				}
				return nil
			},
		})
	}
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no data")
	}
	return sheets, nil
}
