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
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics records pipeline measurements.
type Metrics interface {
	RecordTurn(ctx context.Context, outcome string, duration time.Duration)
	RecordLLMCall(ctx context.Context, phase, outcome string, duration time.Duration, inputTokens, outputTokens int)
	RecordToolCall(ctx context.Context, tool, provenance, outcome string, duration time.Duration)
	RecordRecovery(ctx context.Context, outcome string)
	RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordTurn(context.Context, string, time.Duration) {}
func (NoopMetrics) RecordLLMCall(context.Context, string, string, time.Duration, int, int) {
}
func (NoopMetrics) RecordToolCall(context.Context, string, string, string, time.Duration) {}
func (NoopMetrics) RecordRecovery(context.Context, string)                                {}
func (NoopMetrics) RecordHTTPRequest(context.Context, string, string, int, time.Duration) {}

// PrometheusMetrics records through an OpenTelemetry meter backed by a
// Prometheus exporter on a private registry.
type PrometheusMetrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	turns        metric.Int64Counter
	turnDuration metric.Float64Histogram
	llmCalls     metric.Int64Counter
	llmDuration  metric.Float64Histogram
	llmTokens    metric.Int64Counter
	toolCalls    metric.Int64Counter
	toolDuration metric.Float64Histogram
	recoveries   metric.Int64Counter
	httpRequests metric.Int64Counter
	httpDuration metric.Float64Histogram
}

// NewPrometheusMetrics creates the instruments.
func NewPrometheusMetrics() (*PrometheusMetrics, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(instrumentationName)

	m := &PrometheusMetrics{registry: registry, provider: provider}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.turns, "databahn_turns", "Conversation turns processed"},
		{&m.llmCalls, "databahn_llm_calls", "Language model calls"},
		{&m.llmTokens, "databahn_llm_tokens", "Language model tokens"},
		{&m.toolCalls, "databahn_tool_calls", "Dispatched tool calls"},
		{&m.recoveries, "databahn_recoveries", "Active-account recovery attempts"},
		{&m.httpRequests, "databahn_http_requests", "HTTP requests served"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&m.turnDuration, "databahn_turn_duration_seconds", "Turn duration in seconds"},
		{&m.llmDuration, "databahn_llm_duration_seconds", "Language model call duration in seconds"},
		{&m.toolDuration, "databahn_tool_duration_seconds", "Tool call duration in seconds"},
		{&m.httpDuration, "databahn_http_duration_seconds", "HTTP request duration in seconds"},
	}
	for _, h := range histograms {
		if *h.dst, err = meter.Float64Histogram(h.name, metric.WithDescription(h.desc), metric.WithUnit("s")); err != nil {
			return nil, fmt.Errorf("failed to create %s histogram: %w", h.name, err)
		}
	}

	return m, nil
}

// Handler serves the registry in Prometheus text format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes the meter provider.
func (m *PrometheusMetrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

func (m *PrometheusMetrics) RecordTurn(ctx context.Context, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.turns.Add(ctx, 1, attrs)
	m.turnDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, phase, outcome string, duration time.Duration, inputTokens, outputTokens int) {
	m.llmCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("phase", phase), attribute.String("outcome", outcome)))
	m.llmDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("phase", phase)))
	if inputTokens > 0 {
		m.llmTokens.Add(ctx, int64(inputTokens), metric.WithAttributes(attribute.String("direction", "input")))
	}
	if outputTokens > 0 {
		m.llmTokens.Add(ctx, int64(outputTokens), metric.WithAttributes(attribute.String("direction", "output")))
	}
}

func (m *PrometheusMetrics) RecordToolCall(ctx context.Context, tool, provenance, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("provenance", provenance),
		attribute.String("outcome", outcome),
	)
	m.toolCalls.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("tool", tool)))
}

func (m *PrometheusMetrics) RecordRecovery(ctx context.Context, outcome string) {
	m.recoveries.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *PrometheusMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
}
