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

package functiontool

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// generateSchema reflects an object schema from Args.
//
// Supported tags:
//   - json:"name"                      parameter name
//   - jsonschema:"required"            mark as required
//   - jsonschema:"description=..."     parameter description
//   - jsonschema:"default=...,enum=.." defaults and allowed values
func generateSchema[Args any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	raw, err := json.Marshal(reflector.Reflect(new(Args)))
	if err != nil {
		return nil, err
	}

	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}

	if schema["type"] != "object" {
		return nil, fmt.Errorf("arguments must be a struct, got schema type %v", schema["type"])
	}

	out := map[string]any{
		"type":       "object",
		"properties": schema["properties"],
	}
	if out["properties"] == nil {
		out["properties"] = map[string]any{}
	}
	if required, ok := schema["required"]; ok {
		out["required"] = required
	}
	if addProps, ok := schema["additionalProperties"]; ok {
		out["additionalProperties"] = addProps
	}
	return out, nil
}
