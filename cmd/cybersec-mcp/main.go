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

// Command cybersec-mcp serves a SQLite security database as an MCP tool
// over stdio.
//
// Usage:
//
//	cybersec-mcp --db data/cybersecurity_mcp.db
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Nitish-Garikoti/databahn/pkg/config"
	"github.com/Nitish-Garikoti/databahn/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	DB       string `help:"SQLite database file." default:"data/cybersecurity_mcp.db" type:"existingfile"`
	MaxRows  int    `help:"Maximum rows returned per query (0 = unlimited)." default:"200"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("cybersec-mcp"),
		kong.Description("MCP server exposing a cyber security SQLite database"),
		kong.UsageOnError(),
	)

	// stdout carries the protocol.
	level, _ := logger.ParseLevel(cli.LogLevel)
	logger.Init(level, os.Stderr, logger.FormatSimple)

	if err := run(context.Background(), cli); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cli CLI) error {
	dbCfg := config.DatabaseConfig{Driver: "sqlite", Database: cli.DB}
	dbCfg.SetDefaults()
	pool := config.NewDBPool()
	defer func() { _ = pool.Close() }()

	db, err := pool.Get(ctx, &dbCfg)
	if err != nil {
		return err
	}

	tables, err := describeTables(ctx, db)
	if err != nil {
		return err
	}
	slog.Info("Serving security database", "db", cli.DB, "tables", len(tables))

	return server.ServeStdio(newServer(db, tables, cli.MaxRows))
}
