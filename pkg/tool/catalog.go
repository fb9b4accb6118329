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

package tool

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"github.com/Nitish-Garikoti/databahn/pkg/index"
)

// Retriever ranks data tables for a query.
type Retriever interface {
	Query(ctx context.Context, text string, topK int) []index.TableDescriptor
}

// Catalog assembles the tool list offered to the model for one turn.
type Catalog struct {
	registry  *Registry
	retriever Retriever
	topK      int

	listTimeout time.Duration
}

// NewCatalog creates a catalog. retriever may be nil, in which case local
// tools carry an empty table list.
func NewCatalog(registry *Registry, retriever Retriever, topK int) *Catalog {
	return &Catalog{registry: registry, retriever: retriever, topK: topK}
}

// WithListTimeout bounds each provider's tool listing. Zero leaves it
// unbounded.
func (c *Catalog) WithListTimeout(d time.Duration) *Catalog {
	c.listTimeout = d
	return c
}

// Registry returns the local tool registry.
func (c *Catalog) Registry() *Registry {
	return c.registry
}

// LocalTools returns copies of the local tool schemas whose descriptions
// list the tables most relevant to query.
func (c *Catalog) LocalTools(ctx context.Context, query string) []Schema {
	var tables []index.TableDescriptor
	if c.retriever != nil {
		tables = c.retriever.Query(ctx, query, c.topK)
	}
	block := "<table_descriptions>" + index.Encode(tables) + "</table_descriptions>"

	local := c.registry.Tools()
	out := make([]Schema, 0, len(local))
	for _, t := range local {
		s := t.Schema()
		s.Provenance = ProvenanceLocal
		s.Parameters = maps.Clone(s.Parameters)
		if s.Description != "" {
			s.Description += "\n"
		}
		s.Description += block
		out = append(out, s)
	}
	return out
}

// RemoteTools lists every provider's tools in provider order. Tools
// declaring no parameters are dropped; a provider that fails to list is
// skipped.
func (c *Catalog) RemoteTools(ctx context.Context, providers []Provider) []Schema {
	var out []Schema
	for _, p := range providers {
		schemas, err := ListWithTimeout(ctx, p, c.listTimeout)
		if err != nil {
			slog.Warn("Failed to list provider tools", "provider", p.Name(), "error", err)
			continue
		}
		for _, s := range schemas {
			if s.PropertyCount() == 0 {
				slog.Debug("Skipping tool without parameters", "provider", p.Name(), "tool", s.Name)
				continue
			}
			s.Provenance = ProvenanceRemote
			s.Provider = p.Name()
			out = append(out, s)
		}
	}
	return out
}

// Tools builds the merged catalog for query.
func (c *Catalog) Tools(ctx context.Context, query string, providers []Provider) []Schema {
	return Merge(c.LocalTools(ctx, query), c.RemoteTools(ctx, providers))
}

// Merge deduplicates by name. Local tools win over remote ones and earlier
// entries win over later ones; the result lists local tools first, then
// the surviving remote tools, each in input order.
func Merge(local, remote []Schema) []Schema {
	seen := make(map[string]bool, len(local)+len(remote))
	out := make([]Schema, 0, len(local)+len(remote))
	for _, group := range [][]Schema{local, remote} {
		for _, s := range group {
			if seen[s.Name] {
				continue
			}
			seen[s.Name] = true
			out = append(out, s)
		}
	}
	return out
}
