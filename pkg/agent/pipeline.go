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

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Nitish-Garikoti/databahn/pkg/dispatch"
	"github.com/Nitish-Garikoti/databahn/pkg/model"
	"github.com/Nitish-Garikoti/databahn/pkg/observability"
	"github.com/Nitish-Garikoti/databahn/pkg/state"
	"github.com/Nitish-Garikoti/databahn/pkg/tool"
)

// ErrNotReady is returned while provider sessions are still being
// established.
var ErrNotReady = errors.New("provider sessions are not ready")

// ProviderSource supplies the live provider sessions.
// *mcptoolset.Pool satisfies it.
type ProviderSource interface {
	Ready() bool
	Providers() []tool.Provider
}

// PipelineConfig wires a Pipeline.
type PipelineConfig struct {
	LLM        model.LLM
	Prompts    PromptSource
	Catalog    *tool.Catalog
	Dispatcher *dispatch.Dispatcher
	Providers  ProviderSource
	Store      state.Store

	// HistoryLimit caps each phase's history when a turn begins.
	HistoryLimit int

	Metrics observability.Metrics
}

// Pipeline runs complete turns.
type Pipeline struct {
	orchestrator *Orchestrator
	responder    *Responder
	dispatcher   *dispatch.Dispatcher
	providers    ProviderSource
	store        state.Store
	historyLimit int
	metrics      observability.Metrics
}

// NewPipeline builds a pipeline from cfg.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = state.DefaultHistoryLimit
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	return &Pipeline{
		orchestrator: NewOrchestrator(cfg.LLM, cfg.Prompts, cfg.Catalog),
		responder:    NewResponder(cfg.LLM, cfg.Prompts),
		dispatcher:   cfg.Dispatcher,
		providers:    cfg.Providers,
		store:        cfg.Store,
		historyLimit: cfg.HistoryLimit,
		metrics:      cfg.Metrics,
	}
}

// Ready reports whether provider sessions are established.
func (p *Pipeline) Ready() bool {
	return p.providers == nil || p.providers.Ready()
}

// ProcessQuery runs one turn for threadID: the stored state is loaded
// (fresh when none exists), bounded, processed and written back. Concurrent
// turns on one thread are not coordinated; the last write wins.
func (p *Pipeline) ProcessQuery(ctx context.Context, query, threadID string) (string, *state.State, error) {
	if !p.Ready() {
		return "", nil, ErrNotReady
	}

	st, err := state.Load(ctx, p.store, threadID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load state: %w", err)
	}
	st.BeginTurn(query, p.historyLimit)

	ctx, span := observability.Tracer().Start(ctx, observability.SpanTurn,
		trace.WithAttributes(attribute.String(observability.AttrThreadID, threadID)),
	)
	defer span.End()

	answer := p.Run(ctx, st)

	if err := p.store.Put(ctx, threadID, st); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "state store failed")
		return "", nil, fmt.Errorf("failed to store state: %w", err)
	}
	return answer, st, nil
}

// Run executes one turn against st, which must already hold the user
// message. It always returns an answer.
func (p *Pipeline) Run(ctx context.Context, st *state.State) string {
	start := time.Now()
	outcome := observability.OutcomeSuccess
	defer func() {
		p.metrics.RecordTurn(ctx, outcome, time.Since(start))
	}()

	var providers []tool.Provider
	if p.providers != nil {
		providers = p.providers.Providers()
	}

	decision, err := p.orchestrator.Decide(ctx, st, providers)
	if err != nil {
		if errors.Is(err, ErrNoModelOutput) {
			slog.Warn("Orchestrator returned no output")
		} else {
			slog.Error("Orchestrator phase failed", "retryable", model.IsRetryable(err), "error", err)
		}
		outcome = observability.OutcomeFallback
		return FallbackMessage
	}

	if decision.Terminal() {
		slog.Info("Orchestrator answered directly")
		return decision.Text
	}

	slog.Info("Dispatching tool calls", "count", len(decision.Calls))
	st.Orchestrator.Results = p.dispatcher.Invoke(ctx, decision.Calls, providers)

	answer, ok := p.responder.Respond(ctx, st)
	if !ok {
		outcome = observability.OutcomeFallback
	}
	return answer
}
