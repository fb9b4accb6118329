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
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var (
	envWithDefault = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`)
	envBraced      = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)
	envSimple      = regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`)
)

// expandEnvString expands ${VAR:-default}, ${VAR} and $VAR.
func expandEnvString(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	s = envWithDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envWithDefault.FindStringSubmatch(match)
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})
	s = envBraced.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envBraced.FindStringSubmatch(match)[1])
	})
	s = envSimple.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envSimple.FindStringSubmatch(match)[1])
	})

	return s
}

// parseValue turns an expanded scalar back into a typed value so that
// "port: ${PORT:-8000}" decodes as an int.
func parseValue(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if intVal, err := strconv.Atoi(value); err == nil {
		return intVal
	}
	if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
		return floatVal
	}
	return value
}

// ExpandEnvVarsInData walks parsed YAML and expands env references in strings.
func ExpandEnvVarsInData(data any) any {
	switch v := data.(type) {
	case string:
		expanded := expandEnvString(v)
		if expanded != v {
			return parseValue(expanded)
		}
		return expanded

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			result[key] = ExpandEnvVarsInData(value)
		}
		return result

	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = ExpandEnvVarsInData(item)
		}
		return result

	default:
		return v
	}
}

// LoadEnvFiles loads .env.local then .env, ignoring missing files.
// Variables already set in the process environment win.
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// GetProviderAPIKey returns the conventional API key variable for a provider.
func GetProviderAPIKey(providerType string) string {
	switch providerType {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	default:
		return ""
	}
}
