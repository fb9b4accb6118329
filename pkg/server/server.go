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

// Package server exposes the question answering pipeline over HTTP.
//
// Routes:
//   - POST /query   run one turn: {query, thread_id} -> {response, state}
//   - GET  /health  liveness, always 200
//   - GET  /ready   200 once provider sessions are established, else 503
//   - GET  /metrics Prometheus metrics, when a metrics handler is set
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Nitish-Garikoti/databahn/pkg/config"
	"github.com/Nitish-Garikoti/databahn/pkg/observability"
	"github.com/Nitish-Garikoti/databahn/pkg/state"
)

// Pipeline runs turns. *agent.Pipeline satisfies it.
type Pipeline interface {
	Ready() bool
	ProcessQuery(ctx context.Context, query, threadID string) (string, *state.State, error)
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request metrics.
func WithMetrics(metrics observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithMetricsHandler serves handler at path.
func WithMetricsHandler(path string, handler http.Handler) Option {
	return func(s *Server) {
		s.metricsPath = path
		s.metricsHandler = handler
	}
}

// Server is the HTTP front end.
type Server struct {
	cfg            config.ServerConfig
	pipeline       Pipeline
	metrics        observability.Metrics
	metricsPath    string
	metricsHandler http.Handler

	server   *http.Server
	listener net.Listener
}

// New creates a server. Call Start to listen.
func New(cfg config.ServerConfig, pipeline Pipeline, opts ...Option) *Server {
	cfg.SetDefaults()
	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		metrics:  observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the routed handler with its middleware chain.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Order: request id -> recoverer -> logging -> observability -> routes
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware)
	r.Use(observability.HTTPMiddleware(s.metrics))

	r.Post("/query", s.handleQuery)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	if s.metricsHandler != nil {
		r.Handle(s.metricsPath, s.metricsHandler)
		slog.Info("Metrics endpoint enabled", "path", s.metricsPath)
	}
	return r
}

// Start listens and serves until ctx is cancelled, then shuts down.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.listener = ln
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("HTTP server starting", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	slog.Info("HTTP server shutting down")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	return nil
}

// Addr returns the bound address once serving.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Address()
}
