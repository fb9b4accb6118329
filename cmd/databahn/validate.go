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

	"gopkg.in/yaml.v3"

	"github.com/Nitish-Garikoti/databahn/pkg/config"
)

// ValidateCmd validates a configuration file.
type ValidateCmd struct {
	PrintConfig bool `short:"p" name:"print-config" help:"Print the expanded configuration (with defaults applied and env vars resolved)."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := config.LoadConfigFile(cli.Config)
	if err != nil {
		fmt.Printf("✗ %s\n", cli.Config)
		return err
	}

	if c.PrintConfig {
		redacted := *cfg
		redacted.LLM.APIKey = mask(redacted.LLM.APIKey)
		redacted.Embedder.APIKey = mask(redacted.Embedder.APIKey)
		out, err := yaml.Marshal(&redacted)
		if err != nil {
			return fmt.Errorf("failed to render config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	}

	fmt.Printf("✓ %s is valid (%d providers)\n", cli.Config, len(cfg.Providers))
	return nil
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}
