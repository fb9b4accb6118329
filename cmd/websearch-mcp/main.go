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

// Command websearch-mcp serves internet search and page crawling as MCP
// tools over stdio.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Nitish-Garikoti/databahn/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	SearchURL string        `help:"DuckDuckGo HTML endpoint." default:"https://html.duckduckgo.com/html/"`
	Timeout   time.Duration `help:"Per-request timeout." default:"10s"`
	LogLevel  string        `help:"Log level (debug, info, warn, error)." default:"info"`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("websearch-mcp"),
		kong.Description("MCP server for internet search and crawling"),
		kong.UsageOnError(),
	)

	// stdout carries the protocol.
	level, _ := logger.ParseLevel(cli.LogLevel)
	logger.Init(level, os.Stderr, logger.FormatSimple)

	ws := newWebSearch(cli.SearchURL, cli.Timeout)
	if err := server.ServeStdio(newServer(ws)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
