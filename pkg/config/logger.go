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

package config

import (
	"fmt"
	"os"
	"strings"
)

// LoggerConfig configures logging.
//
// Priority (highest first): CLI flags, environment (LOG_LEVEL, LOG_FILE,
// LOG_FORMAT), this section, defaults (info, stderr, simple).
type LoggerConfig struct {
	Level  string `yaml:"level,omitempty"`
	File   string `yaml:"file,omitempty"`
	Format string `yaml:"format,omitempty"`
}

func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

func (c *LoggerConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "", "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", c.Level)
	}
}

// Resolve merges CLI values and the environment over this section.
// Empty CLI values fall through to the next source.
func (c LoggerConfig) Resolve(cliLevel, cliFile, cliFormat string) LoggerConfig {
	pick := func(cli, env, file string) string {
		if cli != "" {
			return cli
		}
		if v := os.Getenv(env); v != "" {
			return v
		}
		return file
	}
	out := LoggerConfig{
		Level:  pick(cliLevel, "LOG_LEVEL", c.Level),
		File:   pick(cliFile, "LOG_FILE", c.File),
		Format: pick(cliFormat, "LOG_FORMAT", c.Format),
	}
	out.SetDefaults()
	return out
}
