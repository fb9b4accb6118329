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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nitish-Garikoti/databahn/pkg/index"
)

type stubLocal struct {
	schema Schema
}

func (s *stubLocal) Schema() Schema { return s.schema }

func (s *stubLocal) Invoke(context.Context, map[string]any) (*Outcome, error) {
	return TextOutcome("ok"), nil
}

type stubProvider struct {
	name  string
	tools []Schema
	err   error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) ListTools(context.Context) ([]Schema, error) {
	return p.tools, p.err
}

func (p *stubProvider) CallTool(context.Context, string, map[string]any) (*Outcome, error) {
	return TextOutcome(p.name), nil
}

type hangingProvider struct{ stubProvider }

func (p *hangingProvider) ListTools(ctx context.Context) ([]Schema, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type stubRetriever struct {
	tables []index.TableDescriptor
	topK   int
}

func (r *stubRetriever) Query(_ context.Context, _ string, topK int) []index.TableDescriptor {
	r.topK = topK
	return r.tables
}

func oneParam(name string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{name: map[string]any{"type": "string"}},
	}
}

func lookupTool() *stubLocal {
	return &stubLocal{schema: Schema{
		Name:        "lookup_cyber_security_data",
		Description: "Run SQL against the security database.",
		Parameters:  oneParam("sql_query"),
	}}
}

func TestLocalToolsAnnotatesRelevantTables(t *testing.T) {
	reg, err := NewRegistry(lookupTool())
	require.NoError(t, err)

	retriever := &stubRetriever{tables: []index.TableDescriptor{{
		Name:    "vulnerability",
		Columns: []index.Column{{Name: "cve_id", Description: "CVE identifier"}},
	}}}
	cat := NewCatalog(reg, retriever, 5)

	tools := cat.LocalTools(context.Background(), "Show me critical CVEs")
	require.Len(t, tools, 1)
	assert.Equal(t, 5, retriever.topK)
	assert.Equal(t, ProvenanceLocal, tools[0].Provenance)
	assert.True(t, strings.HasPrefix(tools[0].Description, "Run SQL against the security database.\n<table_descriptions>"))
	assert.Contains(t, tools[0].Description, `"vulnerability": {"cve_id":"CVE identifier"}`)
	assert.True(t, strings.HasSuffix(tools[0].Description, "</table_descriptions>"))
}

func TestLocalToolsDoesNotMutateRegisteredSchema(t *testing.T) {
	lt := lookupTool()
	reg, err := NewRegistry(lt)
	require.NoError(t, err)
	cat := NewCatalog(reg, &stubRetriever{}, 5)

	first := cat.LocalTools(context.Background(), "a")
	second := cat.LocalTools(context.Background(), "b")

	assert.Equal(t, "Run SQL against the security database.", lt.schema.Description)
	assert.Equal(t, first[0].Description, second[0].Description)
	assert.Equal(t, 1, strings.Count(second[0].Description, "<table_descriptions>"))
}

func TestLocalToolsWithoutRetriever(t *testing.T) {
	reg, err := NewRegistry(lookupTool())
	require.NoError(t, err)

	tools := NewCatalog(reg, nil, 5).LocalTools(context.Background(), "anything")
	require.Len(t, tools, 1)
	assert.Contains(t, tools[0].Description, "<table_descriptions>{}</table_descriptions>")
}

func TestRemoteToolsSkipsParameterlessAndFailingProviders(t *testing.T) {
	providers := []Provider{
		&stubProvider{name: "broken", err: errors.New("connection reset")},
		&stubProvider{name: "accounts", tools: []Schema{
			{Name: "accounts_list", Parameters: map[string]any{"type": "object"}},
			{Name: "list_findings", Parameters: oneParam("severity")},
		}},
	}

	tools := NewCatalog(nil, nil, 5).RemoteTools(context.Background(), providers)
	require.Len(t, tools, 1)
	assert.Equal(t, "list_findings", tools[0].Name)
	assert.Equal(t, ProvenanceRemote, tools[0].Provenance)
	assert.Equal(t, "accounts", tools[0].Provider)
}

func TestRemoteToolsBoundsListing(t *testing.T) {
	providers := []Provider{
		&hangingProvider{stubProvider{name: "stalled"}},
		&stubProvider{name: "accounts", tools: []Schema{
			{Name: "list_findings", Parameters: oneParam("severity")},
		}},
	}
	cat := NewCatalog(nil, nil, 5).WithListTimeout(20 * time.Millisecond)

	done := make(chan []Schema, 1)
	go func() { done <- cat.RemoteTools(context.Background(), providers) }()

	select {
	case tools := <-done:
		require.Len(t, tools, 1)
		assert.Equal(t, "list_findings", tools[0].Name)
		assert.Equal(t, "accounts", tools[0].Provider)
	case <-time.After(2 * time.Second):
		t.Fatal("RemoteTools did not return while a provider's listing hung")
	}
}

func TestToolsDeduplicatesByName(t *testing.T) {
	reg, err := NewRegistry(lookupTool())
	require.NoError(t, err)

	providers := []Provider{
		&stubProvider{name: "first", tools: []Schema{
			{Name: "lookup", Parameters: oneParam("q")},
			{Name: "lookup_cyber_security_data", Parameters: oneParam("q")},
		}},
		&stubProvider{name: "second", tools: []Schema{
			{Name: "lookup", Parameters: oneParam("q")},
		}},
	}

	tools := NewCatalog(reg, nil, 5).Tools(context.Background(), "q", providers)
	require.Len(t, tools, 2)

	assert.Equal(t, "lookup_cyber_security_data", tools[0].Name)
	assert.Equal(t, ProvenanceLocal, tools[0].Provenance)
	assert.Equal(t, "lookup", tools[1].Name)
	assert.Equal(t, "first", tools[1].Provider)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(lookupTool(), lookupTool())
	assert.Error(t, err)

	reg, err := NewRegistry()
	require.NoError(t, err)
	_, ok := reg.Lookup("missing")
	assert.False(t, ok)
}

func TestOutcomeNormalize(t *testing.T) {
	assert.Equal(t, Result{CallID: "c1", Text: "rows"}, TextOutcome("rows").Normalize("c1"))
	assert.Equal(t, Result{CallID: "c2"}, (&Outcome{Content: []Content{{Text: "boom"}}, IsError: true}).Normalize("c2"))
	assert.Equal(t, Result{CallID: "c3"}, (*Outcome)(nil).Normalize("c3"))
	assert.Equal(t, Result{CallID: "c4"}, (&Outcome{}).Normalize("c4"))
}
