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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Nitish-Garikoti/databahn/pkg/server"
)

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Port int `help:"Port to listen on (overrides config)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, cleanup, err := loadConfig(cli)
	defer cleanup()
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	a, err := buildApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	a.Start(ctx)

	var opts []server.Option
	opts = append(opts, server.WithMetrics(a.observability.Metrics()))
	if h := a.observability.MetricsHandler(); h != nil {
		opts = append(opts, server.WithMetricsHandler(a.observability.MetricsPath(), h))
	}
	srv := server.New(cfg.Server, a.pipeline, opts...)

	slog.Info("Server ready",
		"address", cfg.Server.Address(),
		"tables", a.tables,
		"providers", len(cfg.Providers),
		"state", cfg.State.Backend)
	fmt.Printf("\ndatabahn listening on http://%s\n", cfg.Server.Address())
	fmt.Printf("   Query:   POST http://%s/query\n", cfg.Server.Address())
	fmt.Printf("   Health:  http://%s/health\n", cfg.Server.Address())
	fmt.Printf("   Ready:   http://%s/ready\n", cfg.Server.Address())
	if cfg.Observability.Metrics.Enabled {
		fmt.Printf("   Metrics: http://%s%s\n", cfg.Server.Address(), a.observability.MetricsPath())
	}
	fmt.Println("\nPress Ctrl+C to stop")

	return srv.Start(ctx)
}
