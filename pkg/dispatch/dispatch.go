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

// Package dispatch executes the tool calls requested by the orchestrator.
//
// Invoke always returns one result per request, in request order. Every
// failure (malformed arguments, unknown tool, tool error, timeout, panic)
// is absorbed into an empty-text result and logged once.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Nitish-Garikoti/databahn/pkg/config"
	"github.com/Nitish-Garikoti/databahn/pkg/observability"
	"github.com/Nitish-Garikoti/databahn/pkg/tool"
)

// Config tunes a Dispatcher.
type Config struct {
	// MaxConcurrency bounds concurrently running calls in one batch.
	MaxConcurrency int

	// CallTimeout bounds each individual tool or provider call. Zero
	// disables the bound.
	CallTimeout time.Duration

	Recovery Recovery
	Metrics  observability.Metrics
}

// FromConfig builds a dispatcher config from the loaded configuration.
func FromConfig(d config.DispatchConfig, r config.RecoveryConfig, metrics observability.Metrics) Config {
	return Config{
		MaxConcurrency: d.MaxConcurrency,
		CallTimeout:    d.CallTimeout,
		Recovery:       RecoveryFromConfig(r),
		Metrics:        metrics,
	}
}

// serializer is implemented by providers that report whether their
// transport tolerates overlapping calls. Providers without it are
// serialized.
type serializer interface {
	Serialized() bool
}

// Dispatcher routes tool calls to local tools and provider sessions.
type Dispatcher struct {
	registry *tool.Registry
	cfg      Config
	metrics  observability.Metrics

	locksMu sync.Mutex
	locks   map[tool.Provider]*sync.Mutex
}

// New creates a dispatcher over the local registry.
func New(registry *tool.Registry, cfg Config) *Dispatcher {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Dispatcher{
		registry: registry,
		cfg:      cfg,
		metrics:  metrics,
		locks:    make(map[tool.Provider]*sync.Mutex),
	}
}

// route is the resolved owner of one remote tool name.
type route struct {
	provider tool.Provider
}

// batch is the routing state of one Invoke call.
type batch struct {
	routes map[string]route

	// recovery is the provider advertising the account-listing tool, if any.
	recovery tool.Provider
}

// Invoke executes calls and returns their results aligned to calls.
func (d *Dispatcher) Invoke(ctx context.Context, calls []tool.CallRequest, providers []tool.Provider) []tool.Result {
	results := make([]tool.Result, len(calls))
	for i, call := range calls {
		results[i] = tool.Result{CallID: call.ID}
	}
	if len(calls) == 0 {
		return results
	}

	b := d.buildRoutes(ctx, providers)

	g := new(errgroup.Group)
	g.SetLimit(d.cfg.MaxConcurrency)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = d.invokeOne(ctx, b, call)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// buildRoutes lists every provider once, each bounded by the call timeout.
// When two providers advertise the same name, the one listed first owns it.
func (d *Dispatcher) buildRoutes(ctx context.Context, providers []tool.Provider) *batch {
	b := &batch{routes: make(map[string]route)}
	for _, p := range providers {
		schemas, err := tool.ListWithTimeout(ctx, p, d.cfg.CallTimeout)
		if err != nil {
			slog.Warn("Failed to list provider tools for routing", "provider", p.Name(), "error", err)
			continue
		}
		for _, s := range schemas {
			if existing, dup := b.routes[s.Name]; dup {
				if existing.provider != p {
					slog.Debug("Tool advertised by several providers, keeping first",
						"tool", s.Name, "kept", existing.provider.Name(), "ignored", p.Name())
				}
				continue
			}
			b.routes[s.Name] = route{provider: p}
		}
	}
	if d.cfg.Recovery.Enabled {
		if r, ok := b.routes[d.cfg.Recovery.ListTool]; ok {
			b.recovery = r.provider
		}
	}
	return b
}

func (d *Dispatcher) invokeOne(ctx context.Context, b *batch, call tool.CallRequest) (result tool.Result) {
	start := time.Now()
	provenance := "unknown"
	outcome := observability.OutcomeError

	ctx, span := observability.Tracer().Start(ctx, observability.SpanToolCall,
		trace.WithAttributes(
			attribute.String(observability.AttrToolName, call.Name),
			attribute.String(observability.AttrToolCallID, call.ID),
		),
	)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Tool call panicked", "call_id", call.ID, "tool", call.Name, "panic", r)
			span.SetStatus(codes.Error, fmt.Sprint(r))
			result = tool.Result{CallID: call.ID}
			outcome = observability.OutcomeError
		}
		span.SetAttributes(attribute.String(observability.AttrProvenance, provenance))
		span.End()
		d.metrics.RecordToolCall(ctx, call.Name, provenance, outcome, time.Since(start))
	}()

	args, err := parseArguments(call.Arguments)
	if err != nil {
		slog.Warn("Invalid tool arguments, skipping call", "call_id", call.ID, "tool", call.Name, "error", err)
		span.SetStatus(codes.Error, "invalid arguments")
		return tool.Result{CallID: call.ID}
	}

	var out *tool.Outcome
	if local, ok := d.registry.Lookup(call.Name); ok {
		provenance = tool.ProvenanceLocal.String()
		out, err = d.invokeLocal(ctx, local, args)
	} else if r, ok := b.routes[call.Name]; ok {
		provenance = tool.ProvenanceRemote.String()
		span.SetAttributes(attribute.String(observability.AttrProvider, r.provider.Name()))
		out, err = d.invokeRemote(ctx, b, r.provider, call, args)
	} else {
		slog.Warn("No provider declares tool", "call_id", call.ID, "tool", call.Name)
		span.SetStatus(codes.Error, "unknown tool")
		return tool.Result{CallID: call.ID}
	}

	if err != nil {
		slog.Error("Tool call failed", "call_id", call.ID, "tool", call.Name, "provenance", provenance, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return tool.Result{CallID: call.ID}
	}

	result = out.Normalize(call.ID)
	switch {
	case out.IsError:
		slog.Warn("Tool reported an error", "call_id", call.ID, "tool", call.Name, "provenance", provenance)
		span.SetStatus(codes.Error, "tool reported an error")
	case result.Text == "":
		outcome = observability.OutcomeEmpty
	default:
		outcome = observability.OutcomeSuccess
	}
	return result
}

func (d *Dispatcher) invokeLocal(ctx context.Context, local tool.Local, args map[string]any) (*tool.Outcome, error) {
	ctx, cancel := d.callContext(ctx)
	defer cancel()
	return local.Invoke(ctx, args)
}

func (d *Dispatcher) invokeRemote(ctx context.Context, b *batch, p tool.Provider, call tool.CallRequest, args map[string]any) (*tool.Outcome, error) {
	recoverable := b.recovery != nil && p == b.recovery

	if recoverable || isSerialized(p) {
		mu := d.lockFor(p)
		mu.Lock()
		defer mu.Unlock()
	}

	out, err := d.callProvider(ctx, p, call.Name, args)
	if err != nil || !recoverable || !d.cfg.Recovery.Matches(out) {
		return out, err
	}

	return d.recover(ctx, p, call, args, out), nil
}

func (d *Dispatcher) callProvider(ctx context.Context, p tool.Provider, name string, args map[string]any) (*tool.Outcome, error) {
	ctx, cancel := d.callContext(ctx)
	defer cancel()
	return p.CallTool(ctx, name, args)
}

func (d *Dispatcher) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.CallTimeout > 0 {
		return context.WithTimeout(ctx, d.cfg.CallTimeout)
	}
	return context.WithCancel(ctx)
}

func (d *Dispatcher) lockFor(p tool.Provider) *sync.Mutex {
	d.locksMu.Lock()
	defer d.locksMu.Unlock()
	mu, ok := d.locks[p]
	if !ok {
		mu = &sync.Mutex{}
		d.locks[p] = mu
	}
	return mu
}

func isSerialized(p tool.Provider) bool {
	if s, ok := p.(serializer); ok {
		return s.Serialized()
	}
	return true
}

// parseArguments decodes a JSON object. "null" decodes to no arguments.
func parseArguments(raw string) (map[string]any, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
