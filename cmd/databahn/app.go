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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Nitish-Garikoti/databahn/pkg/agent"
	"github.com/Nitish-Garikoti/databahn/pkg/config"
	"github.com/Nitish-Garikoti/databahn/pkg/dispatch"
	"github.com/Nitish-Garikoti/databahn/pkg/embedder"
	"github.com/Nitish-Garikoti/databahn/pkg/index"
	"github.com/Nitish-Garikoti/databahn/pkg/model/openai"
	"github.com/Nitish-Garikoti/databahn/pkg/observability"
	"github.com/Nitish-Garikoti/databahn/pkg/prompt"
	"github.com/Nitish-Garikoti/databahn/pkg/state"
	"github.com/Nitish-Garikoti/databahn/pkg/tool"
	"github.com/Nitish-Garikoti/databahn/pkg/tool/mcptoolset"
	"github.com/Nitish-Garikoti/databahn/pkg/tool/sqltool"
)

// app holds everything a running pipeline needs.
type app struct {
	cfg           *config.Config
	observability *observability.Manager
	dbPool        *config.DBPool
	pool          *mcptoolset.Pool
	prompts       *prompt.Store
	pipeline      *agent.Pipeline
	tables        int
}

type appOptions struct {
	// store overrides the configured state store.
	store state.Store
}

// buildApp wires the pipeline from cfg. Provider sessions are connected in
// the background; the pipeline reports not ready until they are.
func buildApp(ctx context.Context, cfg *config.Config, opts appOptions) (_ *app, err error) {
	a := &app{
		cfg:           cfg,
		observability: observability.NewManager(cfg.Observability),
		dbPool:        config.NewDBPool(),
		pool:          mcptoolset.NewPool(),
	}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	if err := a.observability.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}
	metrics := a.observability.Metrics()

	dataDB, err := a.dbPool.Get(ctx, &cfg.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to open data database: %w", err)
	}

	emb, err := embedder.NewOpenAI(embedder.OpenAIConfig{
		APIKey:         cfg.Embedder.APIKey,
		BaseURL:        cfg.Embedder.BaseURL,
		Model:          cfg.Embedder.Model,
		Timeout:        cfg.Embedder.Timeout,
		MaxInputTokens: cfg.Embedder.MaxInputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	tables, err := index.LoadTableMetadata(ctx, dataDB)
	if err != nil {
		return nil, fmt.Errorf("failed to load table metadata: %w", err)
	}
	var indexOpts []index.Option
	if cfg.Index.CachePath != "" {
		cache, err := index.OpenCache(cfg.Index.CachePath)
		if err != nil {
			slog.Warn("Embedding cache unavailable, embedding every table", "error", err)
		} else {
			indexOpts = append(indexOpts, index.WithCache(cache))
		}
	}
	ix := index.Build(ctx, emb, tables, indexOpts...)
	a.tables = ix.Len()

	lookup, err := sqltool.New(dataDB, lookupConfig(cfg))
	if err != nil {
		return nil, err
	}
	registry, err := tool.NewRegistry(lookup)
	if err != nil {
		return nil, err
	}

	llm, err := openai.New(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		MaxRetries:  cfg.LLM.MaxRetries,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM: %w", err)
	}

	a.prompts, err = prompt.NewStore(cfg.Prompts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}

	store := opts.store
	if store == nil {
		store, err = state.NewStore(ctx, cfg.State, a.dbPool)
		if err != nil {
			return nil, fmt.Errorf("failed to create state store: %w", err)
		}
	}

	a.pipeline = agent.NewPipeline(agent.PipelineConfig{
		LLM:          llm,
		Prompts:      a.prompts,
		Catalog:      tool.NewCatalog(registry, ix, cfg.Index.TopK).WithListTimeout(cfg.Dispatch.CallTimeout),
		Dispatcher:   dispatch.New(registry, dispatch.FromConfig(cfg.Dispatch, cfg.Recovery, metrics)),
		Providers:    a.pool,
		Store:        store,
		HistoryLimit: cfg.State.HistoryLimit,
		Metrics:      metrics,
	})
	return a, nil
}

// lookupConfig bounds the local lookup tool by the configured row cap and
// the dispatch call timeout.
func lookupConfig(cfg *config.Config) sqltool.Config {
	return sqltool.Config{
		MaxRows: cfg.Index.MaxRows,
		Timeout: cfg.Dispatch.CallTimeout,
	}
}

// Start connects provider sessions in the background and starts prompt
// watching when configured.
func (a *app) Start(ctx context.Context) {
	go a.pool.Connect(ctx, a.cfg.Providers)

	if a.cfg.Prompts.Watch && a.cfg.Prompts.Dir != "" {
		changes, err := a.prompts.Watch(ctx)
		if err != nil {
			slog.Warn("Prompt watching disabled", "error", err)
			return
		}
		go func() {
			for range changes {
				slog.Info("Prompt templates reloaded", "dir", a.cfg.Prompts.Dir)
			}
		}()
	}
}

// Close releases sessions, databases and telemetry.
func (a *app) Close(ctx context.Context) {
	var errs []error
	if err := a.pool.Close(); err != nil {
		errs = append(errs, fmt.Errorf("providers: %w", err))
	}
	if err := a.dbPool.Close(); err != nil {
		errs = append(errs, fmt.Errorf("databases: %w", err))
	}
	if err := a.observability.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("observability: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("Shutdown errors", "error", err)
	}
}
