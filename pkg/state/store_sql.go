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

package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const createStateTableSQL = `
CREATE TABLE IF NOT EXISTS conversation_state (
    thread_id VARCHAR(255) NOT NULL PRIMARY KEY,
    state TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

// SQLStore persists states as JSON in a conversation_state table.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLStore creates the table if needed. dialect is postgres, mysql or
// sqlite.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(initCtx, createStateTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create conversation_state table: %w", err)
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

func (s *SQLStore) Get(ctx context.Context, threadID string) (*State, error) {
	query := `SELECT state FROM conversation_state WHERE thread_id = ?`
	if s.dialect == "postgres" {
		query = `SELECT state FROM conversation_state WHERE thread_id = $1`
	}

	var raw string
	err := s.db.QueryRowContext(ctx, query, threadID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query state: %w", err)
	}

	st := New()
	if err := json.Unmarshal([]byte(raw), st); err != nil {
		return nil, fmt.Errorf("failed to decode state for thread %s: %w", threadID, err)
	}
	return st, nil
}

func (s *SQLStore) Put(ctx context.Context, threadID string, st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	var query string
	switch s.dialect {
	case "postgres":
		query = `
			INSERT INTO conversation_state (thread_id, state, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (thread_id)
			DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`
	case "mysql":
		query = `
			INSERT INTO conversation_state (thread_id, state, updated_at)
			VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE state = VALUES(state), updated_at = VALUES(updated_at)`
	default:
		query = `
			INSERT INTO conversation_state (thread_id, state, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT (thread_id)
			DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`
	}

	if _, err := s.db.ExecContext(ctx, query, threadID, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to store state: %w", err)
	}
	return nil
}
