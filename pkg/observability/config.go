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

package observability

import (
	"fmt"
	"time"
)

// Config configures tracing and metrics.
type Config struct {
	Tracing TracingConfig `yaml:"tracing,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`

	// Exporter is "otlp" (gRPC, default) or "stdout".
	Exporter string `yaml:"exporter,omitempty"`

	// Endpoint is the OTLP collector address, e.g. "localhost:4317".
	Endpoint string `yaml:"endpoint,omitempty"`

	// SamplingRate ranges from 0.0 (none) to 1.0 (all). Default: 1.0
	SamplingRate float64 `yaml:"sampling_rate,omitempty"`

	ServiceName    string            `yaml:"service_name,omitempty"`
	ServiceVersion string            `yaml:"service_version,omitempty"`
	Insecure       *bool             `yaml:"insecure,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"`
	Timeout        time.Duration     `yaml:"timeout,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`

	// Endpoint is the HTTP path. Default: "/metrics"
	Endpoint string `yaml:"endpoint,omitempty"`
}

func (c *Config) SetDefaults() {
	c.Tracing.SetDefaults()
	c.Metrics.SetDefaults()
}

func (c *Config) Validate() error {
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	return nil
}

func (c *TracingConfig) SetDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = DefaultSamplingRate
	}
	if c.Exporter == "" {
		c.Exporter = "otlp"
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultOTLPEndpoint
	}
	if c.Insecure == nil {
		insecure := true
		c.Insecure = &insecure
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

func (c *TracingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling_rate must be between 0 and 1, got %f", c.SamplingRate)
	}
	switch c.Exporter {
	case "otlp":
		if c.Endpoint == "" {
			return fmt.Errorf("endpoint is required for the otlp exporter")
		}
	case "stdout":
	default:
		return fmt.Errorf("invalid exporter %q (valid: otlp, stdout)", c.Exporter)
	}
	return nil
}

// IsInsecure reports whether the OTLP connection skips TLS.
func (c *TracingConfig) IsInsecure() bool {
	return c.Insecure == nil || *c.Insecure
}

func (c *MetricsConfig) SetDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultMetricsPath
	}
}
