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

// Package index ranks data tables by semantic similarity to a query.
//
// The index is built once at startup from table metadata and is read-only
// afterwards, so queries need no locking.
package index

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/Nitish-Garikoti/databahn/pkg/embedder"
)

// Record pairs a table with its embedding.
type Record struct {
	Descriptor TableDescriptor
	Vector     []float32
}

// Index answers nearest-neighbor queries over table descriptors.
type Index struct {
	embedder embedder.Embedder
	records  []Record
}

// Option configures Build.
type Option func(*buildOptions)

type buildOptions struct {
	cache *Cache
}

// WithCache reuses embeddings stored in cache and records new ones.
func WithCache(cache *Cache) Option {
	return func(o *buildOptions) {
		o.cache = cache
	}
}

// Build embeds every table. Tables that cannot be embedded (empty text,
// embedding error, duplicate name) are skipped with a warning.
func Build(ctx context.Context, emb embedder.Embedder, tables []TableDescriptor, opts ...Option) *Index {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	ix := &Index{embedder: emb}
	seen := make(map[string]bool, len(tables))

	for _, table := range tables {
		if seen[table.Name] {
			slog.Warn("Skipping duplicate table", "table", table.Name)
			continue
		}
		seen[table.Name] = true

		text := table.Text()
		if strings.TrimSpace(text) == "" || len(table.Columns) == 0 {
			slog.Warn("Skipping table with no column descriptions", "table", table.Name)
			continue
		}

		if o.cache != nil {
			if vec, ok := o.cache.Get(ctx, table.Name, text); ok {
				ix.records = append(ix.records, Record{Descriptor: table, Vector: vec})
				continue
			}
		}

		vec, err := emb.Embed(ctx, text)
		if err != nil || len(vec) == 0 {
			slog.Warn("Skipping table, embedding failed", "table", table.Name, "error", err)
			continue
		}

		if o.cache != nil {
			o.cache.Put(ctx, table.Name, text, vec)
		}
		ix.records = append(ix.records, Record{Descriptor: table, Vector: vec})
	}

	slog.Info("Table index built", "tables", len(ix.records), "skipped", len(tables)-len(ix.records))
	return ix
}

// Len returns the number of indexed tables.
func (ix *Index) Len() int {
	return len(ix.records)
}

// Tables returns the indexed descriptors in insertion order.
func (ix *Index) Tables() []TableDescriptor {
	out := make([]TableDescriptor, len(ix.records))
	for i, r := range ix.records {
		out[i] = r.Descriptor
	}
	return out
}

// Query returns up to topK descriptors ordered from most to least similar.
// Ties keep insertion order. Empty queries and embedding failures yield an
// empty result.
func (ix *Index) Query(ctx context.Context, text string, topK int) []TableDescriptor {
	if strings.TrimSpace(text) == "" || topK <= 0 || len(ix.records) == 0 {
		return nil
	}

	qv, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		slog.Warn("Query embedding failed", "error", err)
		return nil
	}

	type scored struct {
		pos   int
		score float64
	}
	ranked := make([]scored, len(ix.records))
	for i, r := range ix.records {
		ranked[i] = scored{pos: i, score: CosineSimilarity(qv, r.Vector)}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].score > ranked[b].score
	})

	if topK > len(ranked) {
		topK = len(ranked)
	}
	out := make([]TableDescriptor, topK)
	for i := 0; i < topK; i++ {
		out[i] = ix.records[ranked[i].pos].Descriptor
	}
	return out
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
