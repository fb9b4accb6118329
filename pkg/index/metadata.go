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

package index

import (
	"context"
	"database/sql"
	"fmt"
)

// MetadataTable is the table holding column descriptions.
const MetadataTable = "metadata"

// LoadTableMetadata reads (table_name, column_name, column_description)
// rows and groups them into descriptors. Tables and columns keep the order
// in which they first appear.
func LoadTableMetadata(ctx context.Context, db *sql.DB) ([]TableDescriptor, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT table_name, column_name, column_description FROM "+MetadataTable)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", MetadataTable, err)
	}
	defer rows.Close()

	var tables []TableDescriptor
	pos := make(map[string]int)

	for rows.Next() {
		var table, column string
		var desc sql.NullString
		if err := rows.Scan(&table, &column, &desc); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", MetadataTable, err)
		}

		i, ok := pos[table]
		if !ok {
			i = len(tables)
			pos[table] = i
			tables = append(tables, TableDescriptor{Name: table})
		}
		tables[i].Columns = append(tables[i].Columns, Column{Name: column, Description: desc.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", MetadataTable, err)
	}

	return tables, nil
}
