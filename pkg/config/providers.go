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
	"fmt"
	"time"

	"github.com/Nitish-Garikoti/databahn/pkg/httpclient"
)

// Provider transports.
const (
	TransportStdio          = "stdio"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"
)

// ProviderConfig describes one MCP provider session.
//
// Example:
//
//	providers:
//	  - name: websearch
//	    command: ./bin/websearch-mcp
//	  - name: cloudflare
//	    transport: streamable-http
//	    url: https://observability.mcp.cloudflare.com/mcp
type ProviderConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport,omitempty"`
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`

	// Filter limits which advertised tools are exposed.
	Filter []string `yaml:"filter,omitempty"`

	// Serialize guards the session with a mutex. Defaults to true.
	Serialize *bool `yaml:"serialize,omitempty"`

	MaxRetries int                   `yaml:"max_retries,omitempty"`
	TLS        *httpclient.TLSConfig `yaml:"tls,omitempty"`

	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty"`
}

// IsSerialized reports whether calls on this session must not overlap.
func (c *ProviderConfig) IsSerialized() bool {
	return c.Serialize == nil || *c.Serialize
}

func (c *ProviderConfig) SetDefaults() {
	if c.Transport == "" {
		if c.Command != "" {
			c.Transport = TransportStdio
		} else {
			c.Transport = TransportStreamableHTTP
		}
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
}

func (c *ProviderConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch c.Transport {
	case TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("command is required for stdio transport")
		}
	case TransportSSE, TransportStreamableHTTP:
		if c.URL == "" {
			return fmt.Errorf("url is required for %s transport", c.Transport)
		}
	default:
		return fmt.Errorf("invalid transport %q (valid: stdio, sse, streamable-http)", c.Transport)
	}
	return nil
}
