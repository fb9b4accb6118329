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

// Package prompt renders the prompt templates of both pipeline phases.
//
// Templates contain placeholders of the form {key}. Only keys named in the
// caller's key list are replaced; every other brace expression is left as
// literal text. A dotted key walks nested state:
//
//	{user_message}          - state["user_message"]
//	{orchestrator.results}  - state["orchestrator"]["results"]
//
// Resolved values are JSON-encoded before insertion.
package prompt

import (
	"encoding/json"
	"regexp"
	"slices"
	"strings"
)

// Substitution keys per phase.
var (
	OrchestratorKeys = []string{"user_message"}
	ResponseKeys     = []string{"user_message", "orchestrator.results"}
)

var placeholderRegex = regexp.MustCompile(`{[^{}]*}`)

// Substitute replaces {key} placeholders for each key in keys.
//
// Keys are resolved in order. A key that cannot be resolved (missing plain
// key, missing or non-object path segment) takes the value resolved for
// the previous key; the value before the first key is the empty string.
// Replacement happens in a single pass, so inserted values are never
// rescanned for placeholders.
func Substitute(template string, state map[string]any, keys []string) string {
	if template == "" || len(keys) == 0 {
		return template
	}

	encoded := make(map[string]string, len(keys))
	var val any = ""
	for _, key := range keys {
		if v, ok := lookup(state, key); ok {
			val = v
		}
		b, err := json.Marshal(val)
		if err != nil {
			b = []byte(`""`)
		}
		encoded[key] = string(b)
	}

	return placeholderRegex.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.TrimSpace(strings.Trim(match, "{}"))
		if !slices.Contains(keys, name) {
			return match
		}
		return encoded[name]
	})
}

func lookup(state map[string]any, key string) (any, bool) {
	var cur any = state
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := m[part]
		if !ok || next == nil {
			return nil, false
		}
		cur = next
	}
	return cur, true
}
