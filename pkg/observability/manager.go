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
	"errors"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// Manager owns the tracer provider and metrics for the process.
type Manager struct {
	config Config

	mu             sync.RWMutex
	tracerProvider trace.TracerProvider
	metrics        Metrics
	prom           *PrometheusMetrics
}

func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg, metrics: NoopMetrics{}}
}

func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tp, err := InitTracer(ctx, m.config.Tracing)
	if err != nil {
		return err
	}
	m.tracerProvider = tp

	if m.config.Metrics.Enabled {
		prom, err := NewPrometheusMetrics()
		if err != nil {
			return err
		}
		m.prom = prom
		m.metrics = prom
	}

	return nil
}

func (m *Manager) Metrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// MetricsHandler returns the Prometheus handler, or nil when metrics are off.
func (m *Manager) MetricsHandler() http.Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.prom == nil {
		return nil
	}
	return m.prom.Handler()
}

// MetricsPath is the configured metrics route.
func (m *Manager) MetricsPath() string {
	return m.config.Metrics.Endpoint
}

func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if spt, ok := m.tracerProvider.(interface{ Shutdown(context.Context) error }); ok {
		errs = append(errs, spt.Shutdown(ctx))
	}
	if m.prom != nil {
		errs = append(errs, m.prom.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
