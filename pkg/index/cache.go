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
	"errors"
	"fmt"
	"log/slog"

	"github.com/philippgille/chromem-go"
)

const cacheCollection = "table_embeddings"

var errNoEmbedding = errors.New("embedding cache never computes embeddings")

// Cache persists table embeddings between runs. An entry is reused only
// when the stored text matches the current table text exactly.
type Cache struct {
	col *chromem.Collection
}

// OpenCache opens (or creates) a persistent cache directory.
func OpenCache(path string) (*Cache, error) {
	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache %s: %w", path, err)
	}
	return NewCache(db)
}

// NewCache uses an existing chromem database.
func NewCache(db *chromem.DB) (*Cache, error) {
	col, err := db.GetOrCreateCollection(cacheCollection, nil, func(context.Context, string) ([]float32, error) {
		return nil, errNoEmbedding
	})
	if err != nil {
		return nil, fmt.Errorf("open cache collection: %w", err)
	}
	return &Cache{col: col}, nil
}

// Get returns the cached vector for table if its text is unchanged.
func (c *Cache) Get(ctx context.Context, table, text string) ([]float32, bool) {
	doc, err := c.col.GetByID(ctx, table)
	if err != nil || doc.Content != text || len(doc.Embedding) == 0 {
		return nil, false
	}
	return doc.Embedding, true
}

// Put stores the vector for table. Failures are logged, not returned.
func (c *Cache) Put(ctx context.Context, table, text string, vec []float32) {
	err := c.col.AddDocument(ctx, chromem.Document{
		ID:        table,
		Content:   text,
		Embedding: vec,
	})
	if err != nil {
		slog.Warn("Failed to cache table embedding", "table", table, "error", err)
	}
}
