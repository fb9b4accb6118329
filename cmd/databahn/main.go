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

// Command databahn answers security questions over a local database and
// remote tool providers.
//
// Usage:
//
//	databahn serve --config databahn.yaml
//	databahn chat
//	databahn ingest --db data/security_logs.db --metadata data/metadata.csv data/*.csv
//	databahn validate --config databahn.yaml
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/Nitish-Garikoti/databahn/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP server."`
	Chat     ChatCmd     `cmd:"" help:"Ask questions interactively."`
	Ingest   IngestCmd   `cmd:"" help:"Load CSV or XLSX files into a SQLite database."`
	Validate ValidateCmd `cmd:"" help:"Validate the configuration file."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to config file." type:"path" default:"databahn.yaml"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, or custom)."`
}

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("databahn"),
		kong.Description("Security question answering over SQL data and MCP tool providers"),
		kong.UsageOnError(),
	)

	// Config file settings are applied later by commands that load one.
	cleanup, err := initLogger(config.LoggerConfig{}, &cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { cleanup() }()

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
