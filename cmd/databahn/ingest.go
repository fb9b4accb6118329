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

	"github.com/Nitish-Garikoti/databahn/pkg/config"
	"github.com/Nitish-Garikoti/databahn/pkg/ingest"
)

// IngestCmd loads tabular files into a SQLite database.
type IngestCmd struct {
	DB       string   `help:"SQLite database file to write." default:"data/security_logs.db" type:"path"`
	Metadata string   `help:"CSV of table_name, column_name, column_description rows." type:"existingfile"`
	Files    []string `arg:"" optional:"" help:"CSV or XLSX files; each becomes a table." type:"existingfile"`
}

func (c *IngestCmd) Run() error {
	if len(c.Files) == 0 && c.Metadata == "" {
		return fmt.Errorf("nothing to ingest: pass files and/or --metadata")
	}
	ctx := context.Background()

	dbCfg := config.DatabaseConfig{Driver: "sqlite", Database: c.DB}
	dbCfg.SetDefaults()
	pool := config.NewDBPool()
	defer func() { _ = pool.Close() }()
	db, err := pool.Get(ctx, &dbCfg)
	if err != nil {
		return err
	}
	ing := ingest.New(db)

	results, err := ing.Files(ctx, c.Files...)
	for _, r := range results {
		fmt.Printf("%-30s inserted %d, skipped %d\n", r.Table, r.Inserted, r.Skipped)
	}
	if c.Metadata != "" {
		r, merr := ing.Metadata(ctx, c.Metadata)
		if merr != nil {
			return fmt.Errorf("metadata: %w", merr)
		}
		fmt.Printf("%-30s inserted %d, skipped %d\n", r.Table, r.Inserted, r.Skipped)
	}
	return err
}
