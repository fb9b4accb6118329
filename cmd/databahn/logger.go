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
	"fmt"
	"io"
	"os"

	"github.com/Nitish-Garikoti/databahn/pkg/config"
	"github.com/Nitish-Garikoti/databahn/pkg/logger"
)

// initLogger installs the logger from CLI flags, environment variables and
// the config file section, in that priority order. The returned cleanup is
// never nil.
func initLogger(section config.LoggerConfig, cli *CLI) (func(), error) {
	resolved := section.Resolve(cli.LogLevel, cli.LogFile, cli.LogFormat)

	level, err := logger.ParseLevel(resolved.Level)
	if err != nil {
		return func() {}, fmt.Errorf("invalid log level: %w", err)
	}

	var output io.Writer = os.Stderr
	cleanup := func() {}
	if resolved.File != "" {
		file, closeFn, err := logger.OpenLogFile(resolved.File)
		if err != nil {
			return cleanup, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		cleanup = closeFn
	}

	logger.Init(level, output, resolved.Format)
	return cleanup, nil
}

// loadConfig loads the config file and re-initializes the logger with its
// logger section.
func loadConfig(cli *CLI) (*config.Config, func(), error) {
	cfg, err := config.LoadConfigFile(cli.Config)
	if err != nil {
		return nil, func() {}, err
	}
	cleanup, err := initLogger(cfg.Logger, cli)
	if err != nil {
		return nil, cleanup, err
	}
	return cfg, cleanup, nil
}
