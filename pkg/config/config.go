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

// Package config loads and validates the databahn configuration file.
//
// Pipeline: read → YAML parse → env expansion → mapstructure decode →
// SetDefaults → Validate.
//
// Example:
//
//	llm:
//	  model: gpt-4o
//	  api_key: ${OPENAI_API_KEY}
//	data:
//	  driver: sqlite
//	  database: data/security_logs.db
//	providers:
//	  - name: cloudflare
//	    command: npx
//	    args: [mcp-remote, https://observability.mcp.cloudflare.com/sse]
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/Nitish-Garikoti/databahn/pkg/observability"
)

// Config is the root configuration.
type Config struct {
	Logger        LoggerConfig         `yaml:"logger,omitempty"`
	Server        ServerConfig         `yaml:"server,omitempty"`
	LLM           LLMConfig            `yaml:"llm,omitempty"`
	Embedder      EmbedderConfig       `yaml:"embedder,omitempty"`
	Index         IndexConfig          `yaml:"index,omitempty"`
	Data          DatabaseConfig       `yaml:"data,omitempty"`
	State         StateConfig          `yaml:"state,omitempty"`
	Prompts       PromptsConfig        `yaml:"prompts,omitempty"`
	Providers     []ProviderConfig     `yaml:"providers,omitempty"`
	Dispatch      DispatchConfig       `yaml:"dispatch,omitempty"`
	Recovery      RecoveryConfig       `yaml:"recovery,omitempty"`
	Observability observability.Config `yaml:"observability,omitempty"`
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	Host            string        `yaml:"host,omitempty"`
	Port            int           `yaml:"port,omitempty"`
	ReadTimeout     time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout    time.Duration `yaml:"write_timeout,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// Address returns host:port.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LLMConfig configures the chat-completion model used by both phases.
type LLMConfig struct {
	Provider    string        `yaml:"provider,omitempty"`
	Model       string        `yaml:"model,omitempty"`
	APIKey      string        `yaml:"api_key,omitempty"`
	BaseURL     string        `yaml:"base_url,omitempty"`
	MaxTokens   int           `yaml:"max_tokens,omitempty"`
	Temperature float64       `yaml:"temperature,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	MaxRetries  int           `yaml:"max_retries,omitempty"`
}

// EmbedderConfig configures the embedding model used by the table index.
type EmbedderConfig struct {
	Provider       string        `yaml:"provider,omitempty"`
	Model          string        `yaml:"model,omitempty"`
	APIKey         string        `yaml:"api_key,omitempty"`
	BaseURL        string        `yaml:"base_url,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty"`
	MaxInputTokens int           `yaml:"max_input_tokens,omitempty"`
}

// IndexConfig configures table retrieval.
type IndexConfig struct {
	TopK int `yaml:"top_k,omitempty"`

	// CachePath enables the persistent embedding cache when set.
	CachePath string `yaml:"cache_path,omitempty"`

	// MaxRows caps the rows the local lookup tool returns per query.
	MaxRows int `yaml:"max_rows,omitempty"`
}

// StateConfig selects the conversation state store.
type StateConfig struct {
	// Backend is "memory" or "sql".
	Backend      string         `yaml:"backend,omitempty"`
	Database     DatabaseConfig `yaml:"database,omitempty"`
	HistoryLimit int            `yaml:"history_limit,omitempty"`
}

// PromptsConfig points at an optional prompt directory.
type PromptsConfig struct {
	Dir   string `yaml:"dir,omitempty"`
	Watch bool   `yaml:"watch,omitempty"`
}

// DispatchConfig bounds tool dispatch.
type DispatchConfig struct {
	MaxConcurrency int           `yaml:"max_concurrency,omitempty"`
	CallTimeout    time.Duration `yaml:"call_timeout,omitempty"`
}

// RecoveryConfig describes the active-account recovery sequence.
type RecoveryConfig struct {
	Enabled       *bool  `yaml:"enabled,omitempty"`
	Marker        string `yaml:"marker,omitempty"`
	ListTool      string `yaml:"list_tool,omitempty"`
	SetTool       string `yaml:"set_tool,omitempty"`
	SetParam      string `yaml:"set_param,omitempty"`
	AccountsField string `yaml:"accounts_field,omitempty"`
	IDField       string `yaml:"id_field,omitempty"`
}

// IsEnabled reports whether recovery is on (default true).
func (c *RecoveryConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.Logger.SetDefaults()
	c.Server.SetDefaults()
	c.LLM.SetDefaults()
	c.Embedder.SetDefaults(&c.LLM)
	c.Index.SetDefaults()
	if c.Data.Driver == "" {
		c.Data.Driver = "sqlite"
	}
	if c.Data.Database == "" {
		c.Data.Database = "data/security_logs.db"
	}
	if c.Data.ReadOnly == nil {
		ro := true
		c.Data.ReadOnly = &ro
	}
	c.Data.SetDefaults()
	c.State.SetDefaults()
	for i := range c.Providers {
		c.Providers[i].SetDefaults()
	}
	c.Dispatch.SetDefaults()
	c.Recovery.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks the configuration after defaults are applied.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Logger.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logger: %w", err))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server: invalid port %d", c.Server.Port))
	}
	if err := c.LLM.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("llm: %w", err))
	}
	if c.Embedder.Provider != "openai" {
		errs = append(errs, fmt.Errorf("embedder: unsupported provider %q (valid: openai)", c.Embedder.Provider))
	}
	if c.Index.TopK <= 0 {
		errs = append(errs, fmt.Errorf("index: top_k must be positive"))
	}
	if c.Index.MaxRows < 0 {
		errs = append(errs, fmt.Errorf("index: max_rows must not be negative"))
	}
	if err := c.Data.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("data: %w", err))
	}
	if err := c.State.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("state: %w", err))
	}

	seen := make(map[string]bool, len(c.Providers))
	for i := range c.Providers {
		p := &c.Providers[i]
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("providers[%d]: %w", i, err))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("providers[%d]: duplicate name %q", i, p.Name))
		}
		seen[p.Name] = true
	}

	if c.Dispatch.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("dispatch: max_concurrency must be at least 1"))
	}
	if err := c.Observability.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("observability: %w", err))
	}

	return errors.Join(errs...)
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
}

func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Model == "" {
		c.Model = "gpt-4o"
	}
	if c.APIKey == "" {
		c.APIKey = GetProviderAPIKey(c.Provider)
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

func (c *LLMConfig) Validate() error {
	if c.Provider != "openai" {
		return fmt.Errorf("unsupported provider %q (valid: openai)", c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required (set OPENAI_API_KEY)")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be positive")
	}
	return nil
}

// SetDefaults fills unset embedder fields, inheriting credentials from llm.
func (c *EmbedderConfig) SetDefaults(llm *LLMConfig) {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.APIKey == "" && llm != nil {
		c.APIKey = llm.APIKey
	}
	if c.BaseURL == "" && llm != nil {
		c.BaseURL = llm.BaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxInputTokens == 0 {
		c.MaxInputTokens = 8191
	}
}

func (c *IndexConfig) SetDefaults() {
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.MaxRows == 0 {
		c.MaxRows = 200
	}
}

func (c *StateConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = 5
	}
	if c.Backend == "sql" {
		if c.Database.Driver == "" {
			c.Database.Driver = "sqlite"
		}
		if c.Database.Database == "" {
			c.Database.Database = "data/state.db"
		}
		c.Database.SetDefaults()
	}
}

func (c *StateConfig) Validate() error {
	switch c.Backend {
	case "memory":
	case "sql":
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	default:
		return fmt.Errorf("invalid backend %q (valid: memory, sql)", c.Backend)
	}
	if c.HistoryLimit < 1 {
		return fmt.Errorf("history_limit must be positive")
	}
	return nil
}

func (c *DispatchConfig) SetDefaults() {
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = 8
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = 60 * time.Second
	}
}

func (c *RecoveryConfig) SetDefaults() {
	if c.Marker == "" {
		c.Marker = "No currently active accountId"
	}
	if c.ListTool == "" {
		c.ListTool = "accounts_list"
	}
	if c.SetTool == "" {
		c.SetTool = "set_active_account"
	}
	if c.SetParam == "" {
		c.SetParam = "activeAccountIdParam"
	}
	if c.AccountsField == "" {
		c.AccountsField = "accounts"
	}
	if c.IDField == "" {
		c.IDField = "id"
	}
}
