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

package sqltool

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE vulnerability (cve_id TEXT, severity TEXT, score REAL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO vulnerability VALUES
		('CVE-2024-0001', 'critical', 9.8),
		('CVE-2024-0002', 'low', 2.1),
		('CVE-2024-0003', 'critical', NULL)`)
	require.NoError(t, err)
	return db
}

func TestLookupRendersRowsAsJSONLines(t *testing.T) {
	lt, err := New(openDB(t), Config{})
	require.NoError(t, err)
	assert.Equal(t, Name, lt.Schema().Name)
	assert.Equal(t, 1, lt.Schema().PropertyCount())

	out, err := lt.Invoke(context.Background(), map[string]any{
		"sql_query": "SELECT cve_id, score FROM vulnerability WHERE severity = 'critical' ORDER BY cve_id",
	})
	require.NoError(t, err)
	assert.Equal(t, "[\"CVE-2024-0001\",9.8]\n[\"CVE-2024-0003\",null]", out.Text())
}

func TestLookupNoRows(t *testing.T) {
	lt, err := New(openDB(t), Config{})
	require.NoError(t, err)

	out, err := lt.Invoke(context.Background(), map[string]any{
		"sql_query": "SELECT cve_id FROM vulnerability WHERE severity = 'medium'",
	})
	require.NoError(t, err)
	assert.Equal(t, "", out.Text())
}

func TestLookupMaxRows(t *testing.T) {
	lt, err := New(openDB(t), Config{MaxRows: 1})
	require.NoError(t, err)

	out, err := lt.Invoke(context.Background(), map[string]any{
		"sql_query": "SELECT cve_id FROM vulnerability ORDER BY cve_id",
	})
	require.NoError(t, err)
	assert.Equal(t, `["CVE-2024-0001"]`, out.Text())
}

func TestLookupErrors(t *testing.T) {
	lt, err := New(openDB(t), Config{})
	require.NoError(t, err)

	_, err = lt.Invoke(context.Background(), map[string]any{"sql_query": "SELECT * FROM nope"})
	assert.Error(t, err)

	_, err = lt.Invoke(context.Background(), map[string]any{"sql_query": "  "})
	assert.Error(t, err)

	_, err = New(nil, Config{})
	assert.Error(t, err)
}
