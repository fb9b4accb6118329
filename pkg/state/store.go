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
	"errors"
	"fmt"
	"sync"

	"github.com/Nitish-Garikoti/databahn/pkg/config"
)

// ErrNotFound is returned by Get for unknown thread ids.
var ErrNotFound = errors.New("state not found")

// Store persists conversation state by thread id.
//
// Concurrent turns on the same thread id are not coordinated: each turn
// loads, mutates and puts its own copy, and the last Put wins.
type Store interface {
	Get(ctx context.Context, threadID string) (*State, error)
	Put(ctx context.Context, threadID string, s *State) error
}

// Load returns the stored state for threadID, or a new state when none is
// stored.
func Load(ctx context.Context, store Store, threadID string) (*State, error) {
	s, err := store.Get(ctx, threadID)
	if errors.Is(err, ErrNotFound) {
		return New(), nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewStore builds the store selected by cfg. SQL stores draw their
// connection from pool.
func NewStore(ctx context.Context, cfg config.StateConfig, pool *config.DBPool) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sql":
		db, err := pool.Get(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("state database: %w", err)
		}
		return NewSQLStore(ctx, db, cfg.Database.Dialect())
	default:
		return nil, fmt.Errorf("unsupported state backend: %s", cfg.Backend)
	}
}

// MemoryStore keeps states in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*State
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*State)}
}

func (m *MemoryStore) Get(_ context.Context, threadID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Put(_ context.Context, threadID string, s *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[threadID] = s.Clone()
	return nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLStore)(nil)
)
