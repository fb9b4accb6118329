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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigBytesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadConfigBytes(nil)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 4096, cfg.LLM.MaxTokens)
	assert.Equal(t, float64(0), cfg.LLM.Temperature)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedder.Model)
	assert.Equal(t, "sk-test", cfg.Embedder.APIKey)
	assert.Equal(t, 5, cfg.Index.TopK)
	assert.Equal(t, 200, cfg.Index.MaxRows)
	assert.Equal(t, 5, cfg.State.HistoryLimit)
	assert.Equal(t, "memory", cfg.State.Backend)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.True(t, cfg.Data.IsReadOnly())
	assert.Equal(t, "file:data/security_logs.db?mode=ro", cfg.Data.DSN())
	assert.True(t, cfg.Recovery.IsEnabled())
	assert.Equal(t, "No currently active accountId", cfg.Recovery.Marker)
	assert.Equal(t, "accounts_list", cfg.Recovery.ListTool)
}

func TestLoadConfigBytesExpandsEnv(t *testing.T) {
	t.Setenv("DATABAHN_KEY", "sk-env")
	t.Setenv("DATABAHN_PORT", "9100")

	yaml := `
llm:
  api_key: ${DATABAHN_KEY}
  timeout: 15s
server:
  port: ${DATABAHN_PORT}
index:
  top_k: ${DATABAHN_TOPK:-3}
  max_rows: 50
providers:
  - name: websearch
    command: ./websearch-mcp
  - name: cloudflare
    url: https://example.com/mcp
    serialize: false
`
	cfg, err := LoadConfigBytes([]byte(yaml))
	require.NoError(t, err)

	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Index.TopK)
	assert.Equal(t, 50, cfg.Index.MaxRows)

	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, TransportStdio, cfg.Providers[0].Transport)
	assert.True(t, cfg.Providers[0].IsSerialized())
	assert.Equal(t, TransportStreamableHTTP, cfg.Providers[1].Transport)
	assert.False(t, cfg.Providers[1].IsSerialized())
}

func TestValidateErrors(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad state backend", "state:\n  backend: redis\n", "invalid backend"},
		{"duplicate provider", "providers:\n  - {name: a, command: x}\n  - {name: a, command: y}\n", "duplicate name"},
		{"stdio without command", "providers:\n  - {name: a, transport: stdio}\n", "command is required"},
		{"bad log level", "logger:\n  level: loud\n", "invalid log level"},
		{"negative max rows", "index:\n  max_rows: -1\n", "max_rows must not be negative"},
		{"postgres without host", "data:\n  driver: postgres\n  database: sec\n", "host is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigBytes([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := LoadConfigBytes(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key is required")
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	path := filepath.Join(t.TempDir(), "databahn.yaml")
	require.NoError(t, os.WriteFile(path, []byte("index:\n  top_k: 7\n"), 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Index.TopK)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoggerResolve(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("LOG_FILE", "")

	base := LoggerConfig{Level: "debug", Format: "verbose"}

	got := base.Resolve("", "", "")
	assert.Equal(t, "warn", got.Level)
	assert.Equal(t, "verbose", got.Format)

	got = base.Resolve("error", "out.log", "")
	assert.Equal(t, "error", got.Level)
	assert.Equal(t, "out.log", got.File)
}

func TestDBPoolSharesSQLiteHandle(t *testing.T) {
	cfg := &DatabaseConfig{Driver: "sqlite", Database: filepath.Join(t.TempDir(), "pool.db")}
	cfg.SetDefaults()

	pool := NewDBPool()
	defer pool.Close()

	a, err := pool.Get(t.Context(), cfg)
	require.NoError(t, err)
	b, err := pool.Get(t.Context(), cfg)
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = a.Exec("CREATE TABLE t (x TEXT)")
	assert.NoError(t, err)
}
